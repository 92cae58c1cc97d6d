package scheduler

import (
	"context"
	"log/slog"
	"time"

	"news_ingest/internal/domain"
	"news_ingest/internal/service"
)

// Syncer defines the interface for sync operations.
type Syncer interface {
	SyncAllSources(ctx context.Context, opts service.Options) (domain.SyncRunRecord, error)
}

// Scheduler triggers a sync run on a fixed interval, supplying each run
// with a wall-clock deadline derived from the configured time budget.
type Scheduler struct {
	syncer    Syncer
	interval  time.Duration
	runBudget time.Duration
	opts      service.Options
	logger    *slog.Logger
}

func NewScheduler(syncer Syncer, interval, runBudget time.Duration, opts service.Options, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:    syncer,
		interval:  interval,
		runBudget: runBudget,
		opts:      opts,
		logger:    logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "run_budget", s.runBudget)

	s.runSync(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runSync(ctx)
		}
	}
}

// runSync passes the budget as a wall-clock deadline only. No context
// timeout is added: the deadline stops new sources from starting, a source
// that already started runs to completion on its own per-call timeouts, and
// the audit writes after the last source need a live context.
func (s *Scheduler) runSync(ctx context.Context) {
	opts := s.opts
	opts.Deadline = time.Now().Add(s.runBudget)
	opts.Schedule = "interval"

	if _, err := s.syncer.SyncAllSources(ctx, opts); err != nil {
		s.logger.Error("sync run failed", "error", err)
	}
}
