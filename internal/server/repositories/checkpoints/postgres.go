package checkpoints

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/happypaisa/internal/common"
	"github.com/dmitrijs2005/happypaisa/internal/dbx"
	"github.com/dmitrijs2005/happypaisa/internal/money"
	"github.com/dmitrijs2005/happypaisa/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*models.SyncCheckpoint, error) {
	query :=
		`SELECT user_id, last_block, last_hash, chain_balance_milli, reconciled_at
		 FROM sync_checkpoints
		 WHERE user_id = $1`

	var (
		cp      models.SyncCheckpoint
		balance int64
	)
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&cp.UserID, &cp.LastBlock, &cp.LastHash, &balance, &cp.ReconciledAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	cp.ChainBalance = money.FromMilli(balance)
	return &cp, nil
}

// Upsert never moves a checkpoint backwards.
func (r *PostgresRepository) Upsert(ctx context.Context, cp *models.SyncCheckpoint) error {
	query :=
		`INSERT INTO sync_checkpoints (user_id, last_block, last_hash, chain_balance_milli, reconciled_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE
		 SET last_block = EXCLUDED.last_block, last_hash = EXCLUDED.last_hash,
		     chain_balance_milli = EXCLUDED.chain_balance_milli, reconciled_at = EXCLUDED.reconciled_at
		 WHERE sync_checkpoints.last_block <= EXCLUDED.last_block`

	_, err := r.db.ExecContext(ctx, query, cp.UserID, cp.LastBlock, cp.LastHash, cp.ChainBalance.Milli(), cp.ReconciledAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
