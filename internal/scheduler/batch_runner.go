package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/docforge/docforge-api/internal/domain"
	"github.com/docforge/docforge-api/internal/store"
)

// BatchRunnerConfig holds configuration for the batch runner.
type BatchRunnerConfig struct {
	// ItemConcurrency bounds how many items of one batch run at once.
	ItemConcurrency int

	// MaxRunningBatches caps concurrently running batches process-wide.
	// Submissions beyond the cap are rejected synchronously, trading
	// throughput for predictable resource usage under the work executor.
	MaxRunningBatches int
}

// DefaultBatchRunnerConfig returns a BatchRunnerConfig with reasonable defaults.
func DefaultBatchRunnerConfig() BatchRunnerConfig {
	return BatchRunnerConfig{
		ItemConcurrency:   3,
		MaxRunningBatches: 1,
	}
}

// itemKey identifies one batch item for the retry mutual-exclusion set.
type itemKey struct {
	batchID uuid.UUID
	itemNo  int
}

// BatchRunner executes batch tasks: it fans each batch's items through a
// fresh Pool, persists per-item outcomes with arithmetic counter updates on
// the parent, and supports cooperative stop plus single-item retry.
type BatchRunner struct {
	batches  store.BatchStore
	exec     ItemExecutor
	registry *Registry
	config   BatchRunnerConfig
	logger   *slog.Logger

	// mu guards the running-batch counter and the retry in-flight set,
	// the only shared mutable state outside the persisted store.
	mu             sync.Mutex
	runningBatches int
	retryInFlight  map[itemKey]struct{}

	wg sync.WaitGroup
}

// NewBatchRunner creates a batch runner over the given store and item
// executor.
func NewBatchRunner(batches store.BatchStore, exec ItemExecutor, registry *Registry,
	config BatchRunnerConfig, logger *slog.Logger) *BatchRunner {
	if config.ItemConcurrency < 1 {
		config.ItemConcurrency = 1
	}
	if config.MaxRunningBatches < 1 {
		config.MaxRunningBatches = 1
	}

	return &BatchRunner{
		batches:       batches,
		exec:          exec,
		registry:      registry,
		config:        config,
		logger:        logger,
		retryInFlight: make(map[itemKey]struct{}),
	}
}

// Submit accepts a pending batch for execution and returns immediately.
// It returns ErrBatchCapacity, without queueing, when the process-wide
// running-batch cap is already reached.
func (r *BatchRunner) Submit(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	if r.runningBatches >= r.config.MaxRunningBatches {
		r.mu.Unlock()
		return ErrBatchCapacity
	}
	r.runningBatches++
	r.mu.Unlock()

	token, err := r.registry.Register(id)
	if err != nil {
		r.mu.Lock()
		r.runningBatches--
		r.mu.Unlock()
		return fmt.Errorf("failed to register cancellation token: %w", err)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			// The counter and token go away regardless of outcome.
			r.mu.Lock()
			r.runningBatches--
			r.mu.Unlock()
			r.registry.Deregister(id)
		}()

		runCtx := context.Background()
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("batch run panicked", "batch_id", id, "panic", p)
				r.persistFinal(runCtx, id, domain.BatchStatusFailed, fmt.Sprintf("internal error: %v", p))
			}
		}()

		if err := r.run(runCtx, id, token); err != nil {
			r.logger.Error("batch run failed", "batch_id", id, "error", err)
			r.persistFinal(runCtx, id, domain.BatchStatusFailed, err.Error())
		}
	}()

	return nil
}

// AtCapacity reports whether the process-wide running-batch cap is reached.
// Callers may use it to reject before creating rows; Submit still re-checks
// atomically.
func (r *BatchRunner) AtCapacity() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runningBatches >= r.config.MaxRunningBatches
}

// Stop cancels the batch's registered token. Already-dispatched items
// finish; not-yet-started items are skipped at the dispatch boundary.
// Returns whether a live registration was found.
func (r *BatchRunner) Stop(id uuid.UUID) bool {
	return r.registry.Cancel(id)
}

// Wait blocks until all running batches have settled. Used during shutdown
// and in tests.
func (r *BatchRunner) Wait() {
	r.wg.Wait()
}

// run drives one batch to a terminal state.
func (r *BatchRunner) run(ctx context.Context, id uuid.UUID, token *CancelToken) error {
	logger := r.logger.With("batch_id", id)

	batch, err := r.batches.GetBatch(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load batch: %w", err)
	}

	if err := r.batches.UpdateBatchStatus(ctx, id, domain.BatchStatusRunning, ""); err != nil {
		logger.Error("failed to persist batch status", "error", err)
	}
	logger.Info("batch started", "total_items", batch.TotalItems)

	pool, err := NewPool(r.config.ItemConcurrency)
	if err != nil {
		return err
	}

	itemNos := make([]int, 0, batch.TotalItems)
	for n := 1; n <= batch.TotalItems; n++ {
		itemNos = append(itemNos, n)
	}
	pool.AddItems(itemNos...)

	runItem := func(ctx context.Context, itemNo int, progress func(int64)) (domain.Artifact, error) {
		// Cooperative cancellation: consulted only at the dispatch
		// boundary, before the work executor is invoked.
		if token.Cancelled() {
			return domain.Artifact{}, ErrStopped
		}

		if err := r.batches.UpdateItem(ctx, id, itemNo, domain.ItemStatusRunning, domain.Artifact{}, ""); err != nil {
			logger.Error("failed to persist item start", "item_no", itemNo, "error", err)
		}

		return r.exec(ctx, batch, itemNo, progress)
	}

	onComplete := func(res ItemResult) {
		r.persistItemResult(ctx, id, res)
	}

	results := pool.Execute(ctx, runItem, nil, onComplete)

	status, message := foldItemResults(token, results)
	r.persistFinal(ctx, id, status, message)
	logger.Info("batch settled", "status", status, "message", message)

	return nil
}

// persistItemResult writes one item's terminal row, then adjusts the
// parent's counters with an arithmetic update expression. Items complete
// concurrently, so a read-modify-write in application code would lose
// updates.
func (r *BatchRunner) persistItemResult(ctx context.Context, id uuid.UUID, res ItemResult) {
	var status domain.ItemStatus
	var errorMsg string
	completedDelta, failedDelta := 0, 0

	if res.Err != nil {
		status = domain.ItemStatusFailed
		errorMsg = res.Err.Error()
		failedDelta = 1
	} else {
		status = domain.ItemStatusCompleted
		completedDelta = 1
	}

	if err := r.batches.UpdateItem(ctx, id, res.ID, status, res.Artifact, errorMsg); err != nil {
		r.logger.Error("failed to persist item result", "batch_id", id, "item_no", res.ID, "error", err)
	}
	if err := r.batches.AdjustCounters(ctx, id, completedDelta, failedDelta); err != nil {
		r.logger.Error("failed to adjust batch counters", "batch_id", id, "item_no", res.ID, "error", err)
	}
}

// foldItemResults computes the batch's final status once every item is
// terminal. Failures alone never fail the parent: only a batch where zero
// items succeeded is failed.
func foldItemResults(token *CancelToken, results []ItemResult) (domain.BatchStatus, string) {
	failures := 0
	for _, res := range results {
		if res.Err != nil {
			failures++
		}
	}
	successes := len(results) - failures

	switch {
	case token.Cancelled():
		return domain.BatchStatusStopped, "stopped by request"
	case failures == 0:
		return domain.BatchStatusCompleted, ""
	case successes == 0:
		return domain.BatchStatusFailed, fmt.Sprintf("all %d items failed", failures)
	default:
		return domain.BatchStatusCompleted, fmt.Sprintf("%d of %d items failed", failures, len(results))
	}
}

// RetryItem re-runs a single failed item outside of any pool and returns
// once the retry settles. Concurrent retries of the same item are rejected
// with ErrRetryInFlight.
func (r *BatchRunner) RetryItem(ctx context.Context, id uuid.UUID, itemNo int) error {
	if itemNo < 1 {
		return domain.ErrInvalidItemNumber
	}

	key := itemKey{batchID: id, itemNo: itemNo}

	r.mu.Lock()
	if _, inFlight := r.retryInFlight[key]; inFlight {
		r.mu.Unlock()
		return ErrRetryInFlight
	}
	r.retryInFlight[key] = struct{}{}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.retryInFlight, key)
		r.mu.Unlock()
	}()

	item, err := r.batches.GetItem(ctx, id, itemNo)
	if err != nil {
		return fmt.Errorf("failed to load item: %w", err)
	}

	switch item.Status {
	case domain.ItemStatusRunning:
		return ErrRetryInFlight
	case domain.ItemStatusFailed:
		// Retryable.
	default:
		return ErrItemNotFailed
	}

	batch, err := r.batches.GetBatch(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load batch: %w", err)
	}

	if err := r.batches.ResetItem(ctx, id, itemNo); err != nil {
		return fmt.Errorf("failed to reset item: %w", err)
	}

	artifact, execErr := r.runSingle(ctx, batch, itemNo)
	if execErr != nil {
		if err := r.batches.UpdateItem(ctx, id, itemNo, domain.ItemStatusFailed, domain.Artifact{}, execErr.Error()); err != nil {
			r.logger.Error("failed to persist retried item failure", "batch_id", id, "item_no", itemNo, "error", err)
		}
		return execErr
	}

	if err := r.batches.UpdateItem(ctx, id, itemNo, domain.ItemStatusCompleted, artifact, ""); err != nil {
		r.logger.Error("failed to persist retried item result", "batch_id", id, "item_no", itemNo, "error", err)
	}
	if err := r.batches.AdjustCounters(ctx, id, 1, -1); err != nil {
		r.logger.Error("failed to adjust batch counters after retry", "batch_id", id, "item_no", itemNo, "error", err)
	}

	return r.reconcileAfterRetry(ctx, id)
}

// runSingle invokes the item executor once, with the same panic
// containment the pool applies.
func (r *BatchRunner) runSingle(ctx context.Context, batch *domain.BatchTask, itemNo int) (artifact domain.Artifact, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("work executor panicked: %v", p)
		}
	}()

	return r.exec(ctx, batch, itemNo, func(int64) {})
}

// reconcileAfterRetry refreshes the parent's error summary after a
// successful retry: the summary reflects the new failure count, clears at
// zero, and a batch failed purely because every item had failed flips back
// to completed once one of them succeeds.
func (r *BatchRunner) reconcileAfterRetry(ctx context.Context, id uuid.UUID) error {
	batch, err := r.batches.GetBatch(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to reload batch: %w", err)
	}

	status := batch.Status
	if status == domain.BatchStatusFailed {
		status = domain.BatchStatusCompleted
	}

	message := ""
	if batch.FailedItems > 0 {
		message = fmt.Sprintf("%d of %d items failed", batch.FailedItems, batch.TotalItems)
	}

	if err := r.batches.UpdateBatchStatus(ctx, id, status, message); err != nil {
		return fmt.Errorf("failed to update batch after retry: %w", err)
	}
	return nil
}

// persistFinal writes the batch's terminal status; failures are logged and
// swallowed like every other mid-run persistence error.
func (r *BatchRunner) persistFinal(ctx context.Context, id uuid.UUID, status domain.BatchStatus, msg string) {
	if err := r.batches.CompleteBatch(ctx, id, status, msg); err != nil {
		r.logger.Error("failed to persist final batch status", "batch_id", id, "status", status, "error", err)
	}
}

// IsCapacityError reports whether err is the synchronous capacity
// rejection, for callers mapping scheduler errors onto their own surface.
func IsCapacityError(err error) bool {
	return errors.Is(err, ErrBatchCapacity)
}
