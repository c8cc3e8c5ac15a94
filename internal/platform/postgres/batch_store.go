package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docforge/docforge-api/internal/domain"
	"github.com/docforge/docforge-api/internal/platform/logger"
	"github.com/docforge/docforge-api/internal/store"
)

// BatchStore implements the store.BatchStore interface using PostgreSQL.
type BatchStore struct {
	db store.DBTX
}

// NewBatchStore creates a new BatchStore. It accepts a database connection
// or transaction that should be initialized and managed by the caller.
func NewBatchStore(db store.DBTX) *BatchStore {
	if db == nil {
		panic("db cannot be nil")
	}
	return &BatchStore{db: db}
}

// Ensure BatchStore implements store.BatchStore
var _ store.BatchStore = (*BatchStore)(nil)

// CreateBatch persists a batch together with its child items. Callers wrap
// this in store.RunInTransaction so the parent and its items appear
// atomically.
func (s *BatchStore) CreateBatch(ctx context.Context, batch *domain.BatchTask, items []*domain.BatchItem) error {
	log := logger.FromContext(ctx)

	if err := batch.Validate(); err != nil {
		return err
	}
	if len(items) != batch.TotalItems {
		return fmt.Errorf("item count %d does not match total items %d",
			len(items), batch.TotalItems)
	}

	query := `
		INSERT INTO batch_tasks (id, status, total_items, completed_items,
			failed_items, params, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		batch.ID,
		batch.Status,
		batch.TotalItems,
		batch.CompletedItems,
		batch.FailedItems,
		[]byte(batch.Params),
		batch.ErrorMessage,
		batch.CreatedAt,
		batch.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to insert batch task",
			"batch_id", batch.ID,
			"error", err)
		return fmt.Errorf("failed to insert batch task: %w", mapError(err, store.ErrBatchNotFound))
	}

	itemQuery := `
		INSERT INTO batch_items (batch_id, item_no, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, item := range items {
		if _, err := s.db.ExecContext(ctx, itemQuery,
			item.BatchID, item.ItemNo, item.Status, item.CreatedAt, item.UpdatedAt); err != nil {
			log.Error("failed to insert batch item",
				"batch_id", batch.ID,
				"item_no", item.ItemNo,
				"error", err)
			return fmt.Errorf("failed to insert batch item %d: %w", item.ItemNo,
				mapError(err, store.ErrBatchNotFound))
		}
	}

	return nil
}

// GetBatch retrieves a batch by ID.
func (s *BatchStore) GetBatch(ctx context.Context, id uuid.UUID) (*domain.BatchTask, error) {
	query := `
		SELECT id, status, total_items, completed_items, failed_items, params,
			error_message, created_at, updated_at, completed_at
		FROM batch_tasks
		WHERE id = $1
	`

	var batch domain.BatchTask
	var params []byte
	var errorMessage sql.NullString
	var completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&batch.ID,
		&batch.Status,
		&batch.TotalItems,
		&batch.CompletedItems,
		&batch.FailedItems,
		&params,
		&errorMessage,
		&batch.CreatedAt,
		&batch.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch task: %w", mapError(err, store.ErrBatchNotFound))
	}

	batch.Params = params
	batch.ErrorMessage = errorMessage.String
	if completedAt.Valid {
		t := completedAt.Time
		batch.CompletedAt = &t
	}

	return &batch, nil
}

// GetItems retrieves the batch's items ordered by item number.
func (s *BatchStore) GetItems(ctx context.Context, id uuid.UUID) ([]domain.BatchItem, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM batch_tasks WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check batch task: %w", err)
	}
	if !exists {
		return nil, store.ErrBatchNotFound
	}

	query := `
		SELECT batch_id, item_no, status, object_key, size_bytes,
			error_message, created_at, updated_at
		FROM batch_items
		WHERE batch_id = $1
		ORDER BY item_no ASC
	`

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []domain.BatchItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batch items: %w", err)
	}

	return items, nil
}

// GetItem retrieves a single item by (batch, item number).
func (s *BatchStore) GetItem(ctx context.Context, id uuid.UUID, itemNo int) (*domain.BatchItem, error) {
	query := `
		SELECT batch_id, item_no, status, object_key, size_bytes,
			error_message, created_at, updated_at
		FROM batch_items
		WHERE batch_id = $1 AND item_no = $2
	`

	row := s.db.QueryRowContext(ctx, query, id, itemNo)
	item, err := scanItem(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch item: %w", mapError(err, store.ErrItemNotFound))
	}
	return item, nil
}

// scannable covers *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanItem(row scannable) (*domain.BatchItem, error) {
	var item domain.BatchItem
	var objectKey, errorMessage sql.NullString

	if err := row.Scan(
		&item.BatchID,
		&item.ItemNo,
		&item.Status,
		&objectKey,
		&item.SizeBytes,
		&errorMessage,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return nil, err
	}

	item.ObjectKey = objectKey.String
	item.ErrorMessage = errorMessage.String
	return &item, nil
}

// UpdateBatchStatus updates the batch's status and error summary. An empty
// errorMsg clears the summary.
func (s *BatchStore) UpdateBatchStatus(ctx context.Context, id uuid.UUID, status domain.BatchStatus, errorMsg string) error {
	query := `
		UPDATE batch_tasks
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := s.db.ExecContext(ctx, query, status, errorMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update batch status: %w", err)
	}
	return rowsChanged(result, store.ErrBatchNotFound)
}

// CompleteBatch sets the batch's final status, error summary, and completion
// timestamp. The timestamp is only written once.
func (s *BatchStore) CompleteBatch(ctx context.Context, id uuid.UUID, status domain.BatchStatus, errorMsg string) error {
	query := `
		UPDATE batch_tasks
		SET status = $1, error_message = $2, updated_at = $3,
			completed_at = COALESCE(completed_at, $3)
		WHERE id = $4
	`

	result, err := s.db.ExecContext(ctx, query, status, errorMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to complete batch task: %w", err)
	}
	return rowsChanged(result, store.ErrBatchNotFound)
}

// UpdateItem writes one item's state.
func (s *BatchStore) UpdateItem(ctx context.Context, id uuid.UUID, itemNo int, status domain.ItemStatus, artifact domain.Artifact, errorMsg string) error {
	query := `
		UPDATE batch_items
		SET status = $1, object_key = NULLIF($2, ''), size_bytes = $3,
			error_message = $4, updated_at = $5
		WHERE batch_id = $6 AND item_no = $7
	`

	result, err := s.db.ExecContext(ctx, query,
		status, artifact.ObjectKey, artifact.SizeBytes, errorMsg,
		time.Now().UTC(), id, itemNo)
	if err != nil {
		return fmt.Errorf("failed to update batch item: %w", err)
	}
	return rowsChanged(result, store.ErrItemNotFound)
}

// ResetItem returns an item to running with cleared error and artifact
// fields, ahead of a retry.
func (s *BatchStore) ResetItem(ctx context.Context, id uuid.UUID, itemNo int) error {
	return s.UpdateItem(ctx, id, itemNo, domain.ItemStatusRunning, domain.Artifact{}, "")
}

// AdjustCounters applies the deltas as a single arithmetic update. Items
// settle concurrently, so the increment has to happen in the database; a
// read-modify-write in application code would lose updates.
func (s *BatchStore) AdjustCounters(ctx context.Context, id uuid.UUID, completedDelta, failedDelta int) error {
	query := `
		UPDATE batch_tasks
		SET completed_items = completed_items + $1,
			failed_items = failed_items + $2,
			updated_at = $3
		WHERE id = $4
	`

	result, err := s.db.ExecContext(ctx, query, completedDelta, failedDelta, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to adjust batch counters: %w", err)
	}
	return rowsChanged(result, store.ErrBatchNotFound)
}

// FailRunning forces every running batch, and every running item under any
// batch, to failed. Used by startup recovery.
func (s *BatchStore) FailRunning(ctx context.Context, errorMsg string) (int64, error) {
	log := logger.FromContext(ctx)
	now := time.Now().UTC()

	// Orphaned running items are failed regardless of their parent's
	// status: a retry can leave an item running under a terminal batch.
	itemQuery := `
		UPDATE batch_items
		SET status = $1, error_message = $2, updated_at = $3
		WHERE status = $4
	`
	if _, err := s.db.ExecContext(ctx, itemQuery,
		domain.ItemStatusFailed, errorMsg, now, domain.ItemStatusRunning); err != nil {
		log.Error("failed to fail running batch items", "error", err)
		return 0, fmt.Errorf("failed to fail running batch items: %w", err)
	}

	return s.failWhere(ctx, domain.BatchStatusRunning, errorMsg, now)
}

// FailPending forces every pending batch to failed.
func (s *BatchStore) FailPending(ctx context.Context, errorMsg string) (int64, error) {
	return s.failWhere(ctx, domain.BatchStatusPending, errorMsg, time.Now().UTC())
}

func (s *BatchStore) failWhere(ctx context.Context, from domain.BatchStatus, errorMsg string, now time.Time) (int64, error) {
	query := `
		UPDATE batch_tasks
		SET status = $1, error_message = $2, updated_at = $3,
			completed_at = COALESCE(completed_at, $3)
		WHERE status = $4
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.BatchStatusFailed, errorMsg, now, from)
	if err != nil {
		return 0, fmt.Errorf("failed to fail %s batch tasks: %w", from, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// FailStale forces running batches, and running items, created earlier
// than the threshold to failed.
func (s *BatchStore) FailStale(ctx context.Context, olderThan time.Duration, errorMsg string) (int64, error) {
	log := logger.FromContext(ctx)
	now := time.Now().UTC()
	cutoff := now.Add(-olderThan)

	// Stale running items are failed regardless of their parent's status.
	// A hung item keeps its row running in a live process, and a running
	// item cannot be retried, so only this sweep can settle it short of a
	// restart.
	itemQuery := `
		UPDATE batch_items
		SET status = $1, error_message = $2, updated_at = $3
		WHERE status = $4 AND created_at < $5
	`
	if _, err := s.db.ExecContext(ctx, itemQuery,
		domain.ItemStatusFailed, errorMsg, now,
		domain.ItemStatusRunning, cutoff); err != nil {
		log.Error("failed to fail stale batch items", "error", err)
		return 0, fmt.Errorf("failed to fail stale batch items: %w", err)
	}

	query := `
		UPDATE batch_tasks
		SET status = $1, error_message = $2, updated_at = $3,
			completed_at = COALESCE(completed_at, $3)
		WHERE status = $4 AND created_at < $5
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.BatchStatusFailed, errorMsg, now,
		domain.BatchStatusRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale batch tasks: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// DeleteExpired hard-deletes batches created earlier than the retention
// window. Items cascade via the foreign key.
func (s *BatchStore) DeleteExpired(ctx context.Context, retention time.Duration) (int64, error) {
	query := `DELETE FROM batch_tasks WHERE created_at < $1`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired batch tasks: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// WithTx returns a new store bound to the given transaction.
func (s *BatchStore) WithTx(tx *sql.Tx) store.BatchStore {
	return &BatchStore{db: tx}
}
