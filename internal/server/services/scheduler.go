package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/happypaisa/internal/logging"
)

// Scheduler runs ReconcileAll on a fixed interval.
type Scheduler struct {
	reconciler *Reconciler
	interval   time.Duration
	logger     logging.Logger
}

func NewScheduler(r *Reconciler, interval time.Duration, l logging.Logger) *Scheduler {
	return &Scheduler{reconciler: r, interval: interval, logger: l.With("module", "scheduler")}
}

// Run blocks until ctx ends. A non-positive interval disables the schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	reports, err := s.reconciler.ReconcileAll(ctx)
	if err != nil && ctx.Err() == nil {
		s.logger.Warn(ctx, "scheduled reconciliation incomplete", "error", err)
	}
	adjusted := 0
	for _, r := range reports {
		if r.Adjustment != nil {
			adjusted++
		}
	}
	s.logger.Debug(ctx, "scheduled reconciliation done", "wallets", len(reports), "adjusted", adjusted)
}
