// Package checkpoints persists how far each user's chain history has been
// reconciled.
package checkpoints

import (
	"context"

	"github.com/dmitrijs2005/happypaisa/internal/server/models"
)

type Repository interface {
	// Get returns common.ErrorNotFound before the first reconciliation.
	Get(ctx context.Context, userID string) (*models.SyncCheckpoint, error)
	Upsert(ctx context.Context, cp *models.SyncCheckpoint) error
}
