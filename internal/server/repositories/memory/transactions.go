package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/common"
	"github.com/dmitrijs2005/happypaisa/internal/server/models"
)

type txRepo struct {
	exec exec
	now  func() time.Time
}

func (r *txRepo) Insert(_ context.Context, t *models.Transaction) error {
	return r.exec(func(st *state) error {
		if _, ok := st.txs[t.ID]; ok {
			return common.ErrDuplicateTransaction
		}
		if t.ChainHash != "" && findByHash(st, t.UserID, t.ChainHash) != nil {
			return common.ErrDuplicateTransaction
		}
		now := r.now()
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = now
		}
		put(st, st.seq, t.ID, st.bumpSeq())
		put(st, st.txs, t.ID, *t)
		return nil
	})
}

func (r *txRepo) Get(_ context.Context, id string) (*models.Transaction, error) {
	var out *models.Transaction
	err := r.exec(func(st *state) error {
		t, ok := st.txs[id]
		if !ok {
			return common.ErrorNotFound
		}
		out = &t
		return nil
	})
	return out, err
}

func (r *txRepo) Replace(_ context.Context, t *models.Transaction) error {
	return r.exec(func(st *state) error {
		existing, ok := st.txs[t.ID]
		if !ok || existing.Status != models.StatusFailed {
			return common.ErrDuplicateTransaction
		}
		replaced := *t
		replaced.CreatedAt = existing.CreatedAt
		replaced.UpdatedAt = r.now()
		put(st, st.txs, t.ID, replaced)
		return nil
	})
}

func (r *txRepo) UpdateStatus(_ context.Context, id string, from, to models.TxStatus, chainHash string) error {
	return r.exec(func(st *state) error {
		t, ok := st.txs[id]
		if !ok || t.Status != from {
			return fmt.Errorf("%w: %s is no longer %s", common.ErrInvalidTransition, id, from)
		}
		t.Status = to
		if chainHash != "" {
			t.ChainHash = chainHash
		}
		t.UpdatedAt = r.now()
		put(st, st.txs, id, t)
		return nil
	})
}

// sorted returns the entries matching keep, newest first.
func sorted(st *state, keep func(*models.Transaction) bool) []*models.Transaction {
	var res []*models.Transaction
	for id := range st.txs {
		t := st.txs[id]
		if keep(&t) {
			res = append(res, &t)
		}
	}
	slices.SortFunc(res, func(a, b *models.Transaction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return int(st.seq[b.ID] - st.seq[a.ID])
	})
	return res
}

func (r *txRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]*models.Transaction, error) {
	var res []*models.Transaction
	err := r.exec(func(st *state) error {
		all := sorted(st, func(t *models.Transaction) bool { return t.UserID == userID })
		if offset >= len(all) {
			return nil
		}
		end := min(len(all), offset+limit)
		res = all[offset:end]
		return nil
	})
	return res, err
}

func findByHash(st *state, userID, hash string) *models.Transaction {
	for id := range st.txs {
		t := st.txs[id]
		if t.UserID == userID && t.ChainHash == hash {
			return &t
		}
	}
	return nil
}

func (r *txRepo) FindByChainHash(_ context.Context, userID, hash string) (*models.Transaction, error) {
	var out *models.Transaction
	err := r.exec(func(st *state) error {
		out = findByHash(st, userID, hash)
		if out == nil {
			return common.ErrorNotFound
		}
		return nil
	})
	return out, err
}

func (r *txRepo) ListByStatus(_ context.Context, status models.TxStatus, limit int) ([]*models.Transaction, error) {
	var res []*models.Transaction
	err := r.exec(func(st *state) error {
		for id := range st.txs {
			t := st.txs[id]
			if t.Status == status {
				res = append(res, &t)
			}
		}
		slices.SortFunc(res, func(a, b *models.Transaction) int {
			return int(st.seq[a.ID] - st.seq[b.ID])
		})
		if len(res) > limit {
			res = res[:limit]
		}
		return nil
	})
	return res, err
}

func (r *txRepo) SpendingByCategory(_ context.Context, userID string, since time.Time) ([]models.CategorySpending, error) {
	totals := make(map[string]models.CategorySpending)
	err := r.exec(func(st *state) error {
		for _, t := range st.txs {
			if t.UserID != userID || t.Status == models.StatusFailed || t.CreatedAt.Before(since) {
				continue
			}
			switch t.Kind {
			case models.KindDebit, models.KindTransferOut, models.KindConversionOut:
				c := totals[t.Category]
				c.Category = t.Category
				c.Total += t.Amount
				totals[t.Category] = c
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := make([]models.CategorySpending, 0, len(totals))
	for _, c := range totals {
		res = append(res, c)
	}
	slices.SortFunc(res, func(a, b models.CategorySpending) int {
		switch {
		case a.Category < b.Category:
			return -1
		case a.Category > b.Category:
			return 1
		}
		return 0
	})
	return res, nil
}
