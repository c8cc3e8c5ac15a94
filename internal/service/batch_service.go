package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/docforge/docforge-api/internal/domain"
	"github.com/docforge/docforge-api/internal/scheduler"
	"github.com/docforge/docforge-api/internal/store"
)

// BatchService provides batch task operations.
type BatchService interface {
	// CreateBatch persists a new batch with its items and submits it for
	// execution. Returns scheduler.ErrBatchCapacity, without creating the
	// batch, when the running-batch cap is reached.
	CreateBatch(ctx context.Context, params json.RawMessage, totalItems int) (*domain.BatchTask, error)

	// GetBatch retrieves a batch and its items.
	GetBatch(ctx context.Context, id uuid.UUID) (*domain.BatchTask, []domain.BatchItem, error)

	// StopBatch requests cooperative cancellation of a running batch.
	// Returns false when no live run was found for the id.
	StopBatch(ctx context.Context, id uuid.UUID) (bool, error)

	// RetryItem re-runs a single failed item and returns once it settles.
	RetryItem(ctx context.Context, id uuid.UUID, itemNo int) error
}

// batchService implements BatchService.
type batchService struct {
	db      *sql.DB
	batches store.BatchStore
	runner  *scheduler.BatchRunner
	logger  *slog.Logger
}

// NewBatchService creates a BatchService over the given store and runner.
func NewBatchService(db *sql.DB, batches store.BatchStore,
	runner *scheduler.BatchRunner, logger *slog.Logger) BatchService {
	return &batchService{
		db:      db,
		batches: batches,
		runner:  runner,
		logger:  logger.With(slog.String("component", "batch_service")),
	}
}

// CreateBatch persists the batch and its items in one transaction, then
// submits it to the runner. The capacity check runs before any row is
// written so a rejected submission leaves nothing behind; Submit re-checks
// under its own lock, and a batch losing that narrow race is finalized as
// failed rather than left pending.
func (s *batchService) CreateBatch(ctx context.Context, params json.RawMessage, totalItems int) (*domain.BatchTask, error) {
	if s.runner.AtCapacity() {
		return nil, scheduler.ErrBatchCapacity
	}

	batch, err := domain.NewBatchTask(params, totalItems)
	if err != nil {
		return nil, newServiceError("create_batch", "invalid batch", err,
			domain.ErrEmptyBatch, domain.ErrEmptyBatchParams)
	}

	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		return s.batches.WithTx(tx).CreateBatch(ctx, batch, batch.Items())
	})
	if err != nil {
		s.logger.Error("failed to persist batch",
			"batch_id", batch.ID,
			"error", err)
		return nil, newServiceError("create_batch", "failed to persist batch", err)
	}

	if err := s.runner.Submit(ctx, batch.ID); err != nil {
		if scheduler.IsCapacityError(err) {
			if finErr := s.batches.CompleteBatch(ctx, batch.ID,
				domain.BatchStatusFailed, "rejected: too many running batches"); finErr != nil {
				s.logger.Error("failed to finalize rejected batch",
					"batch_id", batch.ID,
					"error", finErr)
			}
			return nil, scheduler.ErrBatchCapacity
		}
		return nil, newServiceError("create_batch", "failed to submit batch", err)
	}

	s.logger.Info("batch created",
		"batch_id", batch.ID,
		"total_items", batch.TotalItems)

	return batch, nil
}

// GetBatch retrieves a batch and its items.
func (s *batchService) GetBatch(ctx context.Context, id uuid.UUID) (*domain.BatchTask, []domain.BatchItem, error) {
	batch, err := s.batches.GetBatch(ctx, id)
	if err != nil {
		return nil, nil, newServiceError("get_batch", "failed to load batch", err,
			store.ErrBatchNotFound)
	}

	items, err := s.batches.GetItems(ctx, id)
	if err != nil {
		return nil, nil, newServiceError("get_batch", "failed to load items", err,
			store.ErrBatchNotFound)
	}

	return batch, items, nil
}

// StopBatch requests cooperative cancellation. The batch must exist; a
// terminal or unknown run just reports not-found so stopping is idempotent
// from the caller's view.
func (s *batchService) StopBatch(ctx context.Context, id uuid.UUID) (bool, error) {
	if _, err := s.batches.GetBatch(ctx, id); err != nil {
		return false, newServiceError("stop_batch", "failed to load batch", err,
			store.ErrBatchNotFound)
	}

	stopped := s.runner.Stop(id)
	if stopped {
		s.logger.Info("batch stop requested", "batch_id", id)
	}
	return stopped, nil
}

// RetryItem re-runs a single failed item.
func (s *batchService) RetryItem(ctx context.Context, id uuid.UUID, itemNo int) error {
	err := s.runner.RetryItem(ctx, id, itemNo)
	return newServiceError("retry_item", "retry failed", err,
		store.ErrBatchNotFound, store.ErrItemNotFound,
		scheduler.ErrRetryInFlight, scheduler.ErrItemNotFailed,
		domain.ErrInvalidItemNumber)
}
