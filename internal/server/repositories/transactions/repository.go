// Package transactions persists the append-only ledger.
package transactions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/server/models"
)

type Repository interface {
	// Insert fails with common.ErrDuplicateTransaction when the id exists.
	Insert(ctx context.Context, t *models.Transaction) error
	Get(ctx context.Context, id string) (*models.Transaction, error)
	// Replace overwrites a failed entry with a new attempt of the same id.
	Replace(ctx context.Context, t *models.Transaction) error
	// UpdateStatus moves id from one status to another, failing with
	// common.ErrInvalidTransition when the current status is not from.
	UpdateStatus(ctx context.Context, id string, from, to models.TxStatus, chainHash string) error
	// ListByUser returns entries newest first.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Transaction, error)
	FindByChainHash(ctx context.Context, userID, hash string) (*models.Transaction, error)
	// ListByStatus returns entries oldest first.
	ListByStatus(ctx context.Context, status models.TxStatus, limit int) ([]*models.Transaction, error)
	// SpendingByCategory sums value-decreasing, non-failed entries created at
	// or after since.
	SpendingByCategory(ctx context.Context, userID string, since time.Time) ([]models.CategorySpending, error)
}
