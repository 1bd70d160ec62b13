package wallets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/happypaisa/internal/common"
	"github.com/dmitrijs2005/happypaisa/internal/dbx"
	"github.com/dmitrijs2005/happypaisa/internal/money"
	"github.com/dmitrijs2005/happypaisa/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const columns = `user_id, balance_milli, owed_milli, chain_address, archived, last_synced_at, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWallet(row scanner) (*models.Wallet, error) {
	var (
		w       models.Wallet
		balance int64
		owed    int64
		synced  sql.NullTime
	)
	if err := row.Scan(&w.UserID, &balance, &owed, &w.ChainAddress, &w.Archived, &synced, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.Balance = money.FromMilli(balance)
	w.Owed = money.FromMilli(owed)
	if synced.Valid {
		t := synced.Time
		w.LastSyncedAt = &t
	}
	return &w, nil
}

func (r *PostgresRepository) get(ctx context.Context, query, userID string) (*models.Wallet, error) {
	w, err := scanWallet(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return w, nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.Wallet, error) {
	return r.get(ctx, `SELECT `+columns+` FROM wallets WHERE user_id = $1`, userID)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, userID string) (*models.Wallet, error) {
	return r.get(ctx, `SELECT `+columns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID)
}

func (r *PostgresRepository) Create(ctx context.Context, w *models.Wallet) (*models.Wallet, error) {
	query :=
		`INSERT INTO wallets (user_id, chain_address)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING ` + columns

	created, err := scanWallet(r.db.QueryRowContext(ctx, query, w.UserID, w.ChainAddress))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) Update(ctx context.Context, w *models.Wallet) error {
	query :=
		`UPDATE wallets
		 SET balance_milli = $2, owed_milli = $3, chain_address = $4, archived = $5, last_synced_at = $6, updated_at = now()
		 WHERE user_id = $1`

	var synced sql.NullTime
	if w.LastSyncedAt != nil {
		synced = sql.NullTime{Time: *w.LastSyncedAt, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, query, w.UserID, w.Balance.Milli(), w.Owed.Milli(), w.ChainAddress, w.Archived, synced)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" {
			return common.ErrInsufficientBalance
		}
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM wallets WHERE NOT archived ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return ids, nil
}
