// Package wallets persists the per-user balance records.
package wallets

import (
	"context"

	"github.com/dmitrijs2005/happypaisa/internal/server/models"
)

type Repository interface {
	// Get returns common.ErrorNotFound for unknown users.
	Get(ctx context.Context, userID string) (*models.Wallet, error)
	// GetForUpdate is Get plus a row lock held until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, userID string) (*models.Wallet, error)
	// Create inserts w unless the user already has a wallet, and returns the
	// stored row either way.
	Create(ctx context.Context, w *models.Wallet) (*models.Wallet, error)
	Update(ctx context.Context, w *models.Wallet) error
	ListUserIDs(ctx context.Context) ([]string, error)
}
