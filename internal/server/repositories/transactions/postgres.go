package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/common"
	"github.com/dmitrijs2005/happypaisa/internal/dbx"
	"github.com/dmitrijs2005/happypaisa/internal/money"
	"github.com/dmitrijs2005/happypaisa/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const columns = `id, user_id, kind, amount_milli, amount_inr, counterparty, correlation_id, status, chain_hash, category, description, attempt, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*models.Transaction, error) {
	var (
		t      models.Transaction
		amount int64
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Kind, &amount, &t.AmountINR, &t.Counterparty, &t.CorrelationID,
		&t.Status, &t.ChainHash, &t.Category, &t.Description, &t.Attempt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Amount = money.FromMilli(amount)
	return &t, nil
}

func (r *PostgresRepository) queryOne(ctx context.Context, query string, args ...any) (*models.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) queryMany(ctx context.Context, query string, args ...any) ([]*models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var res []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return res, nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func (r *PostgresRepository) Insert(ctx context.Context, t *models.Transaction) error {
	query :=
		`INSERT INTO transactions (` + columns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	created := timeOrNow(t.CreatedAt)
	updated := timeOrNow(t.UpdatedAt)

	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.UserID, string(t.Kind), t.Amount.Milli(), t.AmountINR, t.Counterparty, t.CorrelationID,
		string(t.Status), t.ChainHash, t.Category, t.Description, t.Attempt, created, updated)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return common.ErrDuplicateTransaction
		}
		return fmt.Errorf("db error: %w", err)
	}
	t.CreatedAt, t.UpdatedAt = created, updated
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Transaction, error) {
	return r.queryOne(ctx, `SELECT `+columns+` FROM transactions WHERE id = $1`, id)
}

func (r *PostgresRepository) Replace(ctx context.Context, t *models.Transaction) error {
	query :=
		`UPDATE transactions
		 SET kind = $2, amount_milli = $3, amount_inr = $4, counterparty = $5, correlation_id = $6, status = $7,
		     chain_hash = $8, category = $9, description = $10, attempt = $11, updated_at = now()
		 WHERE id = $1 AND status = 'failed'`

	res, err := r.db.ExecContext(ctx, query,
		t.ID, string(t.Kind), t.Amount.Milli(), t.AmountINR, t.Counterparty, t.CorrelationID,
		string(t.Status), t.ChainHash, t.Category, t.Description, t.Attempt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrDuplicateTransaction
	}
	return nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, from, to models.TxStatus, chainHash string) error {
	query :=
		`UPDATE transactions
		 SET status = $3, chain_hash = COALESCE(NULLIF($4::text, ''), chain_hash), updated_at = now()
		 WHERE id = $1 AND status = $2`

	res, err := r.db.ExecContext(ctx, query, id, string(from), string(to), chainHash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s is no longer %s", common.ErrInvalidTransition, id, from)
	}
	return nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Transaction, error) {
	query :=
		`SELECT ` + columns + ` FROM transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC, seq DESC
		 LIMIT $2 OFFSET $3`
	return r.queryMany(ctx, query, userID, limit, offset)
}

func (r *PostgresRepository) FindByChainHash(ctx context.Context, userID, hash string) (*models.Transaction, error) {
	return r.queryOne(ctx, `SELECT `+columns+` FROM transactions WHERE user_id = $1 AND chain_hash = $2`, userID, hash)
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, status models.TxStatus, limit int) ([]*models.Transaction, error) {
	query :=
		`SELECT ` + columns + ` FROM transactions
		 WHERE status = $1
		 ORDER BY seq
		 LIMIT $2`
	return r.queryMany(ctx, query, string(status), limit)
}

func (r *PostgresRepository) SpendingByCategory(ctx context.Context, userID string, since time.Time) ([]models.CategorySpending, error) {
	query :=
		`SELECT category, SUM(amount_milli) FROM transactions
		 WHERE user_id = $1 AND kind IN ('debit', 'transfer_out', 'conversion_out') AND status <> 'failed' AND created_at >= $2
		 GROUP BY category
		 ORDER BY category`

	rows, err := r.db.QueryContext(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var res []models.CategorySpending
	for rows.Next() {
		var (
			c     models.CategorySpending
			total int64
		)
		if err := rows.Scan(&c.Category, &total); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		c.Total = money.FromMilli(total)
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return res, nil
}
