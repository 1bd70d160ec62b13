package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/common"
	"github.com/dmitrijs2005/happypaisa/internal/keylock"
	"github.com/dmitrijs2005/happypaisa/internal/logging"
	"github.com/dmitrijs2005/happypaisa/internal/money"
	"github.com/dmitrijs2005/happypaisa/internal/server/events"
	"github.com/dmitrijs2005/happypaisa/internal/server/gateway"
	"github.com/dmitrijs2005/happypaisa/internal/server/metrics"
	"github.com/dmitrijs2005/happypaisa/internal/server/models"
	"github.com/dmitrijs2005/happypaisa/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const maxHistoryPage = 1 << 16

type SyncOptions struct {
	// PageSize is the first page fetched from the chain; it doubles until
	// the checkpoint is reached.
	PageSize int
	// WaitTimeout bounds how long a pass waits for the user's chain work to
	// settle before giving up with ErrSyncConflict.
	WaitTimeout time.Duration
	// Workers bounds parallel passes in ReconcileAll.
	Workers int
}

func (o SyncOptions) withDefaults() SyncOptions {
	if o.PageSize < 1 {
		o.PageSize = 50
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = 30 * time.Second
	}
	if o.Workers < 1 {
		o.Workers = 4
	}
	return o
}

type SyncReport struct {
	UserID       string
	PriorBalance money.HP
	NewBalance   money.HP
	ChainBalance money.HP
	Imported     int
	Confirmed    int
	LastBlock    int64
	// Adjustment is the correcting entry, if the balances disagreed.
	Adjustment *models.Transaction
}

// Reconciler aligns local wallets with the chain, which is authoritative.
type Reconciler struct {
	repomanager repomanager.RepositoryManager
	gateway     gateway.Gateway
	ledger      *Ledger
	balances    *BalanceService
	locks       *keylock.Locker
	inflight    *InFlight
	bus         *events.Bus
	metrics     *metrics.WalletMetrics
	logger      logging.Logger
	opts        SyncOptions
	now         func() time.Time
	newID       func() string
}

func NewReconciler(m repomanager.RepositoryManager, g gateway.Gateway, ledger *Ledger, balances *BalanceService,
	locks *keylock.Locker, inflight *InFlight, bus *events.Bus, mt *metrics.WalletMetrics, opts SyncOptions, l logging.Logger) *Reconciler {
	return &Reconciler{
		repomanager: m,
		gateway:     g,
		ledger:      ledger,
		balances:    balances,
		locks:       locks,
		inflight:    inflight,
		bus:         bus,
		metrics:     mt,
		logger:      l.With("module", "reconciler"),
		opts:        opts.withDefaults(),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return uuid.NewString() },
	}
}

// Reconcile merges the user's new chain history into the ledger and, if the
// resulting chain balance differs from the local one, overwrites the local
// balance with a single adjustment entry. The checkpoint moves only when the
// whole pass succeeds.
func (r *Reconciler) Reconcile(ctx context.Context, userID string) (*SyncReport, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}

	report, err := r.reconcile(ctx, userID)
	switch {
	case err != nil:
		r.metrics.Reconciled("error")
	case report.Adjustment != nil:
		r.metrics.Reconciled("adjusted")
	default:
		r.metrics.Reconciled("ok")
	}
	return report, err
}

func (r *Reconciler) reconcile(ctx context.Context, userID string) (*SyncReport, error) {
	unlock, err := r.acquire(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	addr, err := r.gateway.GetOrCreateAddress(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error resolving chain address: %w", err)
	}

	cp, err := r.repomanager.Repositories().Checkpoints.Get(ctx, userID)
	if errors.Is(err, common.ErrorNotFound) {
		cp, err = &models.SyncCheckpoint{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading checkpoint: %w", err)
	}

	txs, err := r.history(ctx, userID, cp.LastBlock)
	if err != nil {
		return nil, err
	}

	var (
		report SyncReport
		wallet *models.Wallet
	)
	err = r.repomanager.InTx(ctx, func(ctx context.Context, repos repomanager.Repositories) error {
		report = SyncReport{UserID: userID, LastBlock: cp.LastBlock}
		w, err := r.balances.load(ctx, repos, userID)
		if err != nil {
			return err
		}
		wallet = w
		report.PriorBalance = w.Balance

		next := *cp
		chainBalance := cp.ChainBalance
		for _, tx := range txs {
			delta := tx.DeltaFor(addr)
			chainBalance += delta
			next.LastBlock, next.LastHash = tx.Block, tx.Hash

			existing, err := repos.Transactions.FindByChainHash(ctx, userID, tx.Hash)
			switch {
			case errors.Is(err, common.ErrorNotFound):
				if delta == 0 {
					continue
				}
				counterparty := tx.From
				if delta < 0 {
					counterparty = tx.To
				}
				imp, err := models.NewChainImport(userID, tx.Hash, delta, counterparty, tx.Timestamp)
				if err != nil {
					return err
				}
				if _, _, err := r.ledger.Append(ctx, repos, imp); err != nil {
					return err
				}
				report.Imported++
			case err != nil:
				return err
			case existing.Status == models.StatusSubmitted:
				if err := r.ledger.Transition(ctx, repos, existing.ID, models.StatusSubmitted, models.StatusConfirmed, tx.Hash); err != nil {
					return err
				}
				report.Confirmed++
			}
		}

		now := r.now()
		w.LastSyncedAt = &now
		if w.ChainAddress == "" {
			w.ChainAddress = addr
		}
		if chainBalance != w.Balance {
			diff := chainBalance - w.Balance
			adj, err := models.NewAdjustment("adj-"+r.newID(), userID, diff,
				fmt.Sprintf("chain balance %s, local balance %s", chainBalance, w.Balance))
			if err != nil {
				return err
			}
			if _, _, err := r.ledger.Append(ctx, repos, adj); err != nil {
				return err
			}
			report.Adjustment = adj
			if err := r.balances.overwrite(ctx, repos, w, chainBalance); err != nil {
				return err
			}
		} else if err := repos.Wallets.Update(ctx, w); err != nil {
			return err
		}

		next.UserID = userID
		next.ChainBalance = chainBalance
		next.ReconciledAt = now
		report.NewBalance = w.Balance
		report.ChainBalance = chainBalance
		report.LastBlock = next.LastBlock
		return repos.Checkpoints.Upsert(ctx, &next)
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", userID, err)
	}

	r.balances.remember(ctx, wallet)
	r.bus.Publish(events.TopicReconciled, events.Reconciled{
		UserID:       userID,
		PriorBalance: report.PriorBalance,
		NewBalance:   report.NewBalance,
		Imported:     report.Imported,
		Confirmed:    report.Confirmed,
		Adjusted:     report.Adjustment != nil,
	})
	if report.Adjustment != nil {
		r.logger.Warn(ctx, "balance overwritten from chain", "user_id", userID,
			"prior", report.PriorBalance.String(), "new", report.NewBalance.String())
	}
	return &report, nil
}

// acquire waits for the user's chain work to settle and takes the user's
// lock. New work cannot start while the lock is held, so the check under it
// is final.
func (r *Reconciler) acquire(ctx context.Context, userID string) (func(), error) {
	wctx, cancel := context.WithTimeout(ctx, r.opts.WaitTimeout)
	defer cancel()

	conflict := func(err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s still has chain work in flight: %v", common.ErrSyncConflict, userID, err)
	}

	for {
		if err := r.inflight.WaitIdle(wctx, userID); err != nil {
			return nil, conflict(err)
		}
		unlock, err := r.locks.Lock(wctx, userID)
		if err != nil {
			return nil, conflict(err)
		}
		if r.inflight.Count(userID) == 0 {
			return unlock, nil
		}
		unlock()
	}
}

// history returns the user's included chain transfers above lastBlock,
// oldest first.
func (r *Reconciler) history(ctx context.Context, userID string, lastBlock int64) ([]gateway.ChainTx, error) {
	limit := r.opts.PageSize
	var page []gateway.ChainTx
	for {
		var err error
		page, err = r.gateway.Transactions(ctx, userID, limit)
		if err != nil {
			return nil, fmt.Errorf("error fetching chain history: %w", err)
		}
		if len(page) < limit || reaches(page, lastBlock) {
			break
		}
		if limit >= maxHistoryPage {
			return nil, fmt.Errorf("chain history of %s exceeds %d transfers past the checkpoint", userID, maxHistoryPage)
		}
		limit *= 2
	}

	var res []gateway.ChainTx
	for _, tx := range page {
		if tx.State == gateway.TxIncluded && tx.Block > lastBlock {
			res = append(res, tx)
		}
	}
	slices.Reverse(res)
	slices.SortStableFunc(res, func(a, b gateway.ChainTx) int {
		switch {
		case a.Block < b.Block:
			return -1
		case a.Block > b.Block:
			return 1
		}
		return 0
	})
	return res, nil
}

// reaches reports whether page goes back as far as lastBlock.
func reaches(page []gateway.ChainTx, lastBlock int64) bool {
	if lastBlock == 0 {
		return false
	}
	for _, tx := range page {
		if tx.State == gateway.TxIncluded && tx.Block <= lastBlock {
			return true
		}
	}
	return false
}

// ReconcileAll reconciles every active wallet. A failing user does not stop
// the others; their errors are joined.
func (r *Reconciler) ReconcileAll(ctx context.Context) ([]*SyncReport, error) {
	ids, err := r.repomanager.Repositories().Wallets.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing wallets: %w", err)
	}

	var (
		mu      sync.Mutex
		reports []*SyncReport
		errs    []error
	)
	var g errgroup.Group
	g.SetLimit(r.opts.Workers)
	for _, id := range ids {
		g.Go(func() error {
			rep, err := r.Reconcile(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			reports = append(reports, rep)
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(reports, func(a, b *SyncReport) int {
		switch {
		case a.UserID < b.UserID:
			return -1
		case a.UserID > b.UserID:
			return 1
		}
		return 0
	})
	return reports, errors.Join(errs...)
}
