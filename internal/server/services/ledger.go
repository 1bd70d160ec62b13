package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/happypaisa/internal/common"
	"github.com/dmitrijs2005/happypaisa/internal/logging"
	"github.com/dmitrijs2005/happypaisa/internal/server/metrics"
	"github.com/dmitrijs2005/happypaisa/internal/server/models"
	"github.com/dmitrijs2005/happypaisa/internal/server/repositories/repomanager"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Ledger is the append-only transaction history. Entries change only in
// status and chain hash, along the allowed transitions.
type Ledger struct {
	repomanager repomanager.RepositoryManager
	metrics     *metrics.WalletMetrics
	logger      logging.Logger
}

func NewLedger(m repomanager.RepositoryManager, mt *metrics.WalletMetrics, l logging.Logger) *Ledger {
	return &Ledger{repomanager: m, metrics: mt, logger: l.With("module", "ledger")}
}

// Append stores t inside the caller's transaction. Replaying an id with the
// same payload returns the stored entry with created=false; a different
// payload is ErrDuplicateTransaction. An id whose previous attempt failed is
// taken over by t as the next attempt.
func (l *Ledger) Append(ctx context.Context, r repomanager.Repositories, t *models.Transaction) (*models.Transaction, bool, error) {
	if err := t.Validate(); err != nil {
		return nil, false, err
	}

	existing, err := r.Transactions.Get(ctx, t.ID)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		if err := r.Transactions.Insert(ctx, t); err != nil {
			return nil, false, err
		}
		l.metrics.TransactionAppended(string(t.Kind))
		return t, true, nil
	case err != nil:
		return nil, false, err
	}

	if existing.Status == models.StatusFailed {
		t.Attempt = existing.Attempt + 1
		if err := r.Transactions.Replace(ctx, t); err != nil {
			return nil, false, err
		}
		l.metrics.TransactionAppended(string(t.Kind))
		return t, true, nil
	}
	if !existing.SamePayload(t) {
		return nil, false, fmt.Errorf("%w: %s", common.ErrDuplicateTransaction, t.ID)
	}
	return existing, false, nil
}

// Transition moves an entry along the status machine. It fails with
// ErrInvalidTransition when the move is not allowed or the entry is no
// longer in from.
func (l *Ledger) Transition(ctx context.Context, r repomanager.Repositories, id string, from, to models.TxStatus, chainHash string) error {
	if !models.CanTransition(from, to) {
		l.logger.Error(ctx, "illegal status transition", "transaction_id", id, "from", string(from), "to", string(to))
		return fmt.Errorf("%w: %s -> %s", common.ErrInvalidTransition, from, to)
	}
	err := r.Transactions.UpdateStatus(ctx, id, from, to, chainHash)
	if errors.Is(err, common.ErrInvalidTransition) {
		l.logger.Error(ctx, "status moved before transition", "transaction_id", id, "from", string(from), "to", string(to), "error", err)
	}
	return err
}

// Get looks an entry up by id.
func (l *Ledger) Get(ctx context.Context, id string) (*models.Transaction, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: transaction id is required", common.ErrInvalidRequest)
	}
	return l.repomanager.Repositories().Transactions.Get(ctx, id)
}

// List returns the user's entries newest first. limit is clamped to
// [1, MaxListLimit], zero meaning DefaultListLimit.
func (l *Ledger) List(ctx context.Context, userID string, limit, offset int) ([]*models.Transaction, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	return l.repomanager.Repositories().Transactions.ListByUser(ctx, userID, clampLimit(limit), offset)
}

func clampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultListLimit
	case limit < 1:
		return 1
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}
