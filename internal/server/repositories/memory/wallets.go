package memory

import (
	"context"
	"slices"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/common"
	"github.com/dmitrijs2005/happypaisa/internal/server/models"
)

type walletRepo struct {
	exec exec
	now  func() time.Time
}

func (r *walletRepo) Get(_ context.Context, userID string) (*models.Wallet, error) {
	var out *models.Wallet
	err := r.exec(func(st *state) error {
		w, ok := st.wallets[userID]
		if !ok {
			return common.ErrorNotFound
		}
		out = &w
		return nil
	})
	return out, err
}

// GetForUpdate needs no row lock: transactions are already serialised.
func (r *walletRepo) GetForUpdate(ctx context.Context, userID string) (*models.Wallet, error) {
	return r.Get(ctx, userID)
}

func (r *walletRepo) Create(_ context.Context, w *models.Wallet) (*models.Wallet, error) {
	var out *models.Wallet
	err := r.exec(func(st *state) error {
		existing, ok := st.wallets[w.UserID]
		if !ok {
			now := r.now()
			existing = models.Wallet{UserID: w.UserID, ChainAddress: w.ChainAddress, CreatedAt: now, UpdatedAt: now}
			put(st, st.wallets, w.UserID, existing)
		}
		out = &existing
		return nil
	})
	return out, err
}

func (r *walletRepo) Update(_ context.Context, w *models.Wallet) error {
	return r.exec(func(st *state) error {
		existing, ok := st.wallets[w.UserID]
		if !ok {
			return common.ErrorNotFound
		}
		if w.Balance < 0 || w.Owed < 0 {
			return common.ErrInsufficientBalance
		}
		updated := *w
		updated.CreatedAt = existing.CreatedAt
		updated.UpdatedAt = r.now()
		if w.LastSyncedAt != nil {
			t := *w.LastSyncedAt
			updated.LastSyncedAt = &t
		}
		put(st, st.wallets, w.UserID, updated)
		return nil
	})
}

func (r *walletRepo) ListUserIDs(_ context.Context) ([]string, error) {
	var ids []string
	err := r.exec(func(st *state) error {
		for id, w := range st.wallets {
			if !w.Archived {
				ids = append(ids, id)
			}
		}
		return nil
	})
	slices.Sort(ids)
	return ids, err
}
