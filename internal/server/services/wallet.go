// Package services implements the wallet: balances, the ledger, transfers
// and their chain submission, currency conversion and reconciliation.
package services

import (
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/keylock"
	"github.com/dmitrijs2005/happypaisa/internal/logging"
	"github.com/dmitrijs2005/happypaisa/internal/money"
	"github.com/dmitrijs2005/happypaisa/internal/server/cache"
	"github.com/dmitrijs2005/happypaisa/internal/server/events"
	"github.com/dmitrijs2005/happypaisa/internal/server/gateway"
	"github.com/dmitrijs2005/happypaisa/internal/server/metrics"
	"github.com/dmitrijs2005/happypaisa/internal/server/repositories/repomanager"
)

type Deps struct {
	Repositories repomanager.RepositoryManager
	Gateway      gateway.Gateway
	Cache        cache.BalanceCache
	Bus          *events.Bus
	Metrics      *metrics.WalletMetrics
	Logger       logging.Logger

	Options      Options
	Sync         SyncOptions
	SyncInterval time.Duration
	LowBalance   money.HP
}

// Wallet is the set of services sharing one store, one gateway and one lock
// table.
type Wallet struct {
	Balances    *BalanceService
	Ledger      *Ledger
	Coordinator *Coordinator
	Submitter   *Submitter
	Converter   *Converter
	Reconciler  *Reconciler
	Scheduler   *Scheduler
	Summary     *SummaryService
	Health      *HealthService
	InFlight    *InFlight
}

func New(d Deps) *Wallet {
	if d.Bus == nil {
		d.Bus = events.NewBus()
	}
	locks := keylock.New()
	inflight := NewInFlight()

	balances := NewBalanceService(d.Repositories, d.Gateway, d.Cache, d.Bus, d.LowBalance, d.Logger)
	ledger := NewLedger(d.Repositories, d.Metrics, d.Logger)
	submitter := NewSubmitter(d.Gateway, d.Repositories, ledger, balances, locks, inflight, d.Bus, d.Metrics, d.Options, d.Logger)
	coordinator := NewCoordinator(d.Repositories, ledger, balances, locks, submitter, d.Bus, d.Logger)
	reconciler := NewReconciler(d.Repositories, d.Gateway, ledger, balances, locks, inflight, d.Bus, d.Metrics, d.Sync, d.Logger)

	return &Wallet{
		Balances:    balances,
		Ledger:      ledger,
		Coordinator: coordinator,
		Submitter:   submitter,
		Converter:   NewConverter(coordinator),
		Reconciler:  reconciler,
		Scheduler:   NewScheduler(reconciler, d.SyncInterval, d.Logger),
		Summary:     NewSummaryService(d.Repositories, balances, ledger),
		Health:      NewHealthService(d.Gateway, submitter, 0),
		InFlight:    inflight,
	}
}
