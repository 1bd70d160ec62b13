// Package server assembles the wallet from configuration and runs it: the
// chain submitter, the reconciliation schedule, the gRPC API and the ops
// HTTP endpoints, until the context ends.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/happypaisa/internal/logging"
	"github.com/dmitrijs2005/happypaisa/internal/server/cache"
	"github.com/dmitrijs2005/happypaisa/internal/server/config"
	"github.com/dmitrijs2005/happypaisa/internal/server/events"
	"github.com/dmitrijs2005/happypaisa/internal/server/gateway"
	"github.com/dmitrijs2005/happypaisa/internal/server/gateway/mockchain"
	"github.com/dmitrijs2005/happypaisa/internal/server/gateway/rpcchain"
	"github.com/dmitrijs2005/happypaisa/internal/server/metrics"
	"github.com/dmitrijs2005/happypaisa/internal/server/ops"
	"github.com/dmitrijs2005/happypaisa/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/happypaisa/internal/server/services"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/happypaisa/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	bus     *events.Bus
	wallet  *services.Wallet
	grpc    *gs.GRPCServer
	ops     *ops.Server
	closers []io.Closer
}

func newStorage(ctx context.Context, c *config.Config) (repomanager.RepositoryManager, error) {
	var rm repomanager.RepositoryManager
	switch c.StorageMode {
	case config.StoragePostgres:
		pg, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		rm = pg
	default:
		rm = repomanager.NewMemoryRepositoryManager()
	}
	if err := rm.RunMigrations(ctx); err != nil {
		_ = rm.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}
	return rm, nil
}

func newGateway(c *config.Config, l logging.Logger) gateway.Gateway {
	var g gateway.Gateway
	switch c.GatewayMode {
	case config.GatewayRPC:
		g = rpcchain.New(rpcchain.Options{
			Endpoint:  c.RPCEndpoint,
			AuthToken: c.RPCToken,
			RateLimit: c.RPCRateLimit,
			Burst:     c.RPCBurst,
			Timeout:   c.RPCTimeout,
		})
	default:
		g = mockchain.New(mockchain.WithNetwork(c.MockNetwork))
	}
	return gateway.WithRetry(g, gateway.RetryPolicy{
		MaxAttempts:    c.RetryAttempts,
		BaseDelay:      c.RetryBaseDelay,
		MaxDelay:       c.RetryMaxDelay,
		AttemptTimeout: c.RetryAttemptTimeout,
	}, l)
}

// NewApp wires every component from c. Close releases what it opened.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, logCloser, err := logging.New(logging.Options{
		Backend:    c.LogBackend,
		Format:     c.LogFormat,
		Level:      c.LogLevel,
		File:       c.LogFile,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 28,
	})
	if err != nil {
		return nil, err
	}
	app := &App{config: c, logger: logger, closers: []io.Closer{logCloser}}

	rm, err := newStorage(ctx, c)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.closers = append(app.closers, rm)

	bc, err := cache.New(ctx, cache.Options{Mode: c.CacheMode, TTL: c.CacheTTL, RedisAddr: c.RedisAddr, RedisDB: c.RedisDB})
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("cache init error: %w", err)
	}
	app.closers = append(app.closers, bc)

	app.bus = events.NewBus()
	if _, err := events.NewNotifier(app.bus, logger); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("notifier init error: %w", err)
	}

	mt := metrics.Wallet()
	app.wallet = services.New(services.Deps{
		Repositories: rm,
		Gateway:      newGateway(c, logger),
		Cache:        bc,
		Bus:          app.bus,
		Metrics:      mt,
		Logger:       logger,
		Options: services.Options{
			MaxInFlightPerUser: c.MaxInFlightPerUser,
			SubmitTimeout:      c.SubmitTimeout,
			ConfirmTimeout:     c.ConfirmTimeout,
			ConfirmPoll:        c.ConfirmPoll,
		},
		Sync: services.SyncOptions{
			PageSize:    c.SyncPageSize,
			WaitTimeout: c.SyncWaitTimeout,
			Workers:     c.SyncWorkers,
		},
		SyncInterval: c.SyncInterval,
		LowBalance:   c.LowBalance,
	})

	app.grpc = gs.NewGRPCServer(c.GRPCAddr, logger, app.wallet, mt)
	if c.OpsAddr != "" {
		app.ops = ops.NewServer(c.OpsAddr, app.wallet.Health, logger)
	}
	return app, nil
}

// Run re-queues chain work left open by an earlier process and serves until
// ctx ends or a component fails.
func (app *App) Run(ctx context.Context) error {
	app.logger.Info(ctx, "Starting app...",
		"storage", app.config.StorageMode, "gateway", app.config.GatewayMode, "cache", app.config.CacheMode)

	n, err := app.wallet.Submitter.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recovery error: %w", err)
	}
	if n > 0 {
		app.logger.Info(ctx, "Recovered open entries", "count", n)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.wallet.Submitter.Run(ctx) })
	g.Go(func() error { return app.wallet.Scheduler.Run(ctx) })
	g.Go(func() error { return app.grpc.Run(ctx) })
	if app.ops != nil {
		g.Go(func() error { return app.ops.Run(ctx) })
	}

	err = g.Wait()
	app.bus.Wait()
	app.logger.Info(context.Background(), "App stopped")
	return err
}

func (app *App) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil
	return errors.Join(errs...)
}
