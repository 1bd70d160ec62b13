package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/logging"
	"github.com/dmitrijs2005/happypaisa/internal/money"
	"github.com/dmitrijs2005/happypaisa/internal/server/cache"
	"github.com/dmitrijs2005/happypaisa/internal/server/events"
	"github.com/dmitrijs2005/happypaisa/internal/server/gateway"
	"github.com/dmitrijs2005/happypaisa/internal/server/gateway/mockchain"
	"github.com/dmitrijs2005/happypaisa/internal/server/models"
	"github.com/dmitrijs2005/happypaisa/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/require"
)

var fastRetry = gateway.RetryPolicy{
	MaxAttempts:    3,
	BaseDelay:      time.Millisecond,
	MaxDelay:       2 * time.Millisecond,
	AttemptTimeout: time.Second,
}

type envConfig struct {
	chainOpts []mockchain.Option
	wrap      func(gateway.Gateway) gateway.Gateway
	options   Options
	sync      SyncOptions
	cache     cache.BalanceCache
	noRun     bool
}

type envOption func(*envConfig)

func withChain(opts ...mockchain.Option) envOption {
	return func(c *envConfig) { c.chainOpts = append(c.chainOpts, opts...) }
}

func withGateway(wrap func(gateway.Gateway) gateway.Gateway) envOption {
	return func(c *envConfig) { c.wrap = wrap }
}

func withOptions(o Options) envOption {
	return func(c *envConfig) { c.options = o }
}

func withSync(o SyncOptions) envOption {
	return func(c *envConfig) { c.sync = o }
}

func withCache(c cache.BalanceCache) envOption {
	return func(cfg *envConfig) { cfg.cache = c }
}

// withoutSubmitter leaves the submitter stopped.
func withoutSubmitter() envOption {
	return func(c *envConfig) { c.noRun = true }
}

type env struct {
	*Wallet
	chain   *mockchain.Chain
	gateway gateway.Gateway
	repos   *repomanager.MemoryRepositoryManager
	bus     *events.Bus
	stop    func()
}

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()
	cfg := envConfig{
		options: Options{
			MaxInFlightPerUser: 1,
			SubmitTimeout:      2 * time.Second,
			ConfirmTimeout:     2 * time.Second,
			ConfirmPoll:        2 * time.Millisecond,
		},
		sync: SyncOptions{PageSize: 2, WaitTimeout: 2 * time.Second},
	}
	for _, o := range opts {
		o(&cfg)
	}

	chain := mockchain.New(cfg.chainOpts...)
	var g gateway.Gateway = chain
	if cfg.wrap != nil {
		g = cfg.wrap(g)
	}
	g = gateway.WithRetry(g, fastRetry, logging.Discard())

	e := &env{
		chain:   chain,
		gateway: g,
		repos:   repomanager.NewMemoryRepositoryManager(),
		bus:     events.NewBus(),
		stop:    func() {},
	}
	e.Wallet = New(Deps{
		Repositories: e.repos,
		Gateway:      g,
		Bus:          e.bus,
		Cache:        cfg.cache,
		Logger:       logging.Discard(),
		Options:      cfg.options,
		Sync:         cfg.sync,
		LowBalance:   money.FromWhole(1),
	})
	if !cfg.noRun {
		e.start(t)
	}
	t.Cleanup(func() {
		e.stop()
		e.bus.Wait()
	})
	return e
}

// start runs the submitter until the test ends or stop is called.
func (e *env) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Submitter.Run(ctx)
	}()
	e.stop = func() {
		cancel()
		<-done
	}
}

func settle(t *testing.T, p *Pending) (models.TxStatus, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := p.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "pending %s never settled", p.Reference)
	return status, err
}

// fund credits userID and waits for the chain to confirm it.
func (e *env) fund(t *testing.T, userID string, amount money.HP) {
	t.Helper()
	res, err := e.Coordinator.CreateTransaction(context.Background(), CreateRequest{
		UserID: userID, Kind: models.KindCredit, Amount: amount, Category: "topup",
	})
	require.NoError(t, err)
	status, err := settle(t, res.Pending)
	require.NoError(t, err)
	require.Equal(t, models.StatusConfirmed, status)
}

func (e *env) balance(t *testing.T, userID string) money.HP {
	t.Helper()
	w, err := e.repos.Repositories().Wallets.Get(context.Background(), userID)
	require.NoError(t, err)
	return w.Balance
}

func (e *env) wallet(t *testing.T, userID string) *models.Wallet {
	t.Helper()
	w, err := e.repos.Repositories().Wallets.Get(context.Background(), userID)
	require.NoError(t, err)
	return w
}

func (e *env) entry(t *testing.T, id string) *models.Transaction {
	t.Helper()
	tx, err := e.Ledger.Get(context.Background(), id)
	require.NoError(t, err)
	return tx
}

func (e *env) chainBalance(t *testing.T, userID string) money.HP {
	t.Helper()
	addr, err := e.chain.GetOrCreateAddress(context.Background(), userID)
	require.NoError(t, err)
	return e.chain.Balance(addr)
}

// eventually polls cond until it holds or a second passes.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 2*time.Millisecond, msg)
}

// holdGateway stalls submissions of one reference until the test answers.
type holdGateway struct {
	gateway.Gateway
	ref     string
	reached chan struct{}
	answer  chan error
}

func newHoldGateway(g gateway.Gateway, ref string) *holdGateway {
	return &holdGateway{Gateway: g, ref: ref, reached: make(chan struct{}, 1), answer: make(chan error, 1)}
}

func (h *holdGateway) SubmitTransfer(ctx context.Context, t gateway.Transfer) (gateway.Submission, error) {
	if t.Reference != h.ref {
		return h.Gateway.SubmitTransfer(ctx, t)
	}
	select {
	case h.reached <- struct{}{}:
	default:
	}
	select {
	case err := <-h.answer:
		if err != nil {
			return gateway.Submission{}, err
		}
		return h.Gateway.SubmitTransfer(ctx, t)
	case <-ctx.Done():
		return gateway.Submission{}, ctx.Err()
	}
}
