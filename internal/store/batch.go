package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/docforge/docforge-api/internal/domain"
)

// BatchStore defines the interface for persisting batch tasks and their
// child items. Counter maintenance uses arithmetic update expressions in
// the implementation so that items completing concurrently never lose
// updates to a read-modify-write race.
type BatchStore interface {
	// CreateBatch persists a new batch together with its child items in a
	// single transaction.
	CreateBatch(ctx context.Context, batch *domain.BatchTask, items []*domain.BatchItem) error

	// GetBatch retrieves a batch by ID. Returns ErrBatchNotFound if no row
	// exists.
	GetBatch(ctx context.Context, id uuid.UUID) (*domain.BatchTask, error)

	// GetItems retrieves the batch's items ordered by item number.
	GetItems(ctx context.Context, id uuid.UUID) ([]domain.BatchItem, error)

	// GetItem retrieves a single item. Returns ErrItemNotFound if no row
	// exists.
	GetItem(ctx context.Context, id uuid.UUID, itemNo int) (*domain.BatchItem, error)

	// UpdateBatchStatus updates the batch's status and error summary. An
	// empty errorMsg clears the summary.
	UpdateBatchStatus(ctx context.Context, id uuid.UUID, status domain.BatchStatus, errorMsg string) error

	// CompleteBatch sets the batch's final status, error summary, and
	// completion timestamp.
	CompleteBatch(ctx context.Context, id uuid.UUID, status domain.BatchStatus, errorMsg string) error

	// UpdateItem writes one item's state.
	UpdateItem(ctx context.Context, id uuid.UUID, itemNo int, status domain.ItemStatus,
		artifact domain.Artifact, errorMsg string) error

	// ResetItem returns an item to running with cleared error and artifact
	// fields, ahead of a retry.
	ResetItem(ctx context.Context, id uuid.UUID, itemNo int) error

	// AdjustCounters applies the given deltas to the batch's completed and
	// failed item counters as a single arithmetic update expression.
	AdjustCounters(ctx context.Context, id uuid.UUID, completedDelta, failedDelta int) error

	// FailRunning forces every running batch, and every running item under
	// any batch, to failed with the given message. Returns the number of
	// batches changed.
	FailRunning(ctx context.Context, errorMsg string) (int64, error)

	// FailPending forces every pending batch (and its pending items'
	// parents) to failed with the given message. Returns the number of
	// batches changed.
	FailPending(ctx context.Context, errorMsg string) (int64, error)

	// FailStale forces running batches created earlier than the threshold
	// to failed with the given message. Returns the number of batches
	// changed.
	FailStale(ctx context.Context, olderThan time.Duration, errorMsg string) (int64, error)

	// DeleteExpired hard-deletes batches created earlier than the retention
	// window; items cascade. Returns the number of batches deleted.
	DeleteExpired(ctx context.Context, retention time.Duration) (int64, error)

	// WithTx returns a new BatchStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) BatchStore
}
