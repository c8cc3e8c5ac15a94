package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/docforge/docforge-api/internal/store"
)

// Messages written by the sweep when it forces rows into terminal failure.
const (
	msgInterrupted = "interrupted by restart"
	msgNeverStart  = "never started"
	msgTimedOut    = "timed out"
)

// SweeperConfig holds the staleness and retention tunables of the
// self-healing sweep.
type SweeperConfig struct {
	// DocumentStaleAge is how old a running document task may be before
	// the periodic sweep declares it timed out.
	DocumentStaleAge time.Duration

	// BatchStaleAge is the equivalent threshold for batches. Batches are
	// slower in aggregate than a single multi-stage task, so the two
	// thresholds are distinct.
	BatchStaleAge time.Duration

	// Retention is how long rows are kept before being hard-deleted.
	Retention time.Duration

	// Interval is how often the periodic sweep runs. If zero, defaults to
	// 5 minutes.
	Interval time.Duration
}

// DefaultSweeperConfig returns a SweeperConfig with reasonable defaults.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		DocumentStaleAge: 30 * time.Minute,
		BatchStaleAge:    2 * time.Hour,
		Retention:        7 * 24 * time.Hour,
		Interval:         5 * time.Minute,
	}
}

// Sweeper forces non-terminal persisted rows into terminal failure when
// they can no longer be making progress, and prunes expired rows. It runs
// once at startup, before any new work is accepted, and periodically
// thereafter.
type Sweeper struct {
	tasks   store.DocumentTaskStore
	batches store.BatchStore
	config  SweeperConfig
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a sweeper over the given stores.
func NewSweeper(tasks store.DocumentTaskStore, batches store.BatchStore,
	config SweeperConfig, logger *slog.Logger) *Sweeper {
	if config.Interval == 0 {
		config.Interval = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Sweeper{
		tasks:   tasks,
		batches: batches,
		config:  config,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// RecoverAtStartup forces every row a crashed process left behind into
// terminal failure: running rows were interrupted by the restart, and
// pending rows surviving to the next start mean the dispatcher crashed
// before beginning work. Idempotent: a second pass changes nothing.
func (s *Sweeper) RecoverAtStartup(ctx context.Context) error {
	interrupted, err := s.tasks.FailRunning(ctx, msgInterrupted)
	if err != nil {
		return fmt.Errorf("failed to recover running document tasks: %w", err)
	}

	neverStarted, err := s.tasks.FailPending(ctx, msgNeverStart)
	if err != nil {
		return fmt.Errorf("failed to recover pending document tasks: %w", err)
	}

	batchInterrupted, err := s.batches.FailRunning(ctx, msgInterrupted)
	if err != nil {
		return fmt.Errorf("failed to recover running batches: %w", err)
	}

	batchNeverStarted, err := s.batches.FailPending(ctx, msgNeverStart)
	if err != nil {
		return fmt.Errorf("failed to recover pending batches: %w", err)
	}

	s.logger.Info("startup recovery complete",
		"tasks_interrupted", interrupted,
		"tasks_never_started", neverStarted,
		"batches_interrupted", batchInterrupted,
		"batches_never_started", batchNeverStarted)

	return nil
}

// SweepStale forces running rows older than the per-type staleness
// threshold into failure. This catches genuinely stuck work, such as a
// hung upstream call, without a crash having occurred.
func (s *Sweeper) SweepStale(ctx context.Context) {
	if n, err := s.tasks.FailStale(ctx, s.config.DocumentStaleAge, msgTimedOut); err != nil {
		s.logger.Error("failed to sweep stale document tasks", "error", err)
	} else if n > 0 {
		s.logger.Info("timed out stale document tasks", "count", n)
	}

	if n, err := s.batches.FailStale(ctx, s.config.BatchStaleAge, msgTimedOut); err != nil {
		s.logger.Error("failed to sweep stale batches", "error", err)
	} else if n > 0 {
		s.logger.Info("timed out stale batches", "count", n)
	}
}

// SweepExpired hard-deletes rows older than the retention window. Pure
// housekeeping: it bounds storage growth and is not correctness-critical.
func (s *Sweeper) SweepExpired(ctx context.Context) {
	if n, err := s.tasks.DeleteExpired(ctx, s.config.Retention); err != nil {
		s.logger.Error("failed to prune expired document tasks", "error", err)
	} else if n > 0 {
		s.logger.Info("pruned expired document tasks", "count", n)
	}

	if n, err := s.batches.DeleteExpired(ctx, s.config.Retention); err != nil {
		s.logger.Error("failed to prune expired batches", "error", err)
	} else if n > 0 {
		s.logger.Info("pruned expired batches", "count", n)
	}
}

// Start launches the periodic sweep goroutine.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.SweepStale(s.ctx)
				s.SweepExpired(s.ctx)
			}
		}
	}()
}

// Stop shuts the periodic sweep down and waits for it to exit.
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
}
