package memory

import (
	"context"

	"github.com/dmitrijs2005/happypaisa/internal/common"
	"github.com/dmitrijs2005/happypaisa/internal/server/models"
)

type checkpointRepo struct {
	exec exec
}

func (r *checkpointRepo) Get(_ context.Context, userID string) (*models.SyncCheckpoint, error) {
	var out *models.SyncCheckpoint
	err := r.exec(func(st *state) error {
		cp, ok := st.checkpoints[userID]
		if !ok {
			return common.ErrorNotFound
		}
		out = &cp
		return nil
	})
	return out, err
}

func (r *checkpointRepo) Upsert(_ context.Context, cp *models.SyncCheckpoint) error {
	return r.exec(func(st *state) error {
		if existing, ok := st.checkpoints[cp.UserID]; ok && existing.LastBlock > cp.LastBlock {
			return nil
		}
		put(st, st.checkpoints, cp.UserID, *cp)
		return nil
	})
}
