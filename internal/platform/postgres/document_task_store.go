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

// DocumentTaskStore implements the store.DocumentTaskStore interface using
// PostgreSQL.
type DocumentTaskStore struct {
	db store.DBTX
}

// NewDocumentTaskStore creates a new DocumentTaskStore. It accepts a
// database connection or transaction that should be initialized and managed
// by the caller.
func NewDocumentTaskStore(db store.DBTX) *DocumentTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	return &DocumentTaskStore{db: db}
}

// Ensure DocumentTaskStore implements store.DocumentTaskStore
var _ store.DocumentTaskStore = (*DocumentTaskStore)(nil)

// CreateTask persists a task together with one pending stage slot per stage
// name. The caller decides whether db is a transaction; creation from the
// API layer always goes through store.RunInTransaction so the task and its
// slots appear atomically.
func (s *DocumentTaskStore) CreateTask(ctx context.Context, task *domain.DocumentTask, stageNames []string) error {
	log := logger.FromContext(ctx)

	if err := task.Validate(); err != nil {
		return err
	}
	if len(stageNames) != task.StageCount {
		return fmt.Errorf("stage name count %d does not match stage count %d",
			len(stageNames), task.StageCount)
	}

	query := `
		INSERT INTO document_tasks (id, kind, status, stage_count, current_stage,
			subject, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.Kind,
		task.Status,
		task.StageCount,
		task.CurrentStage,
		[]byte(task.Subject),
		task.ErrorMessage,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to insert document task",
			"task_id", task.ID,
			"error", err)
		return fmt.Errorf("failed to insert document task: %w", mapError(err, store.ErrTaskNotFound))
	}

	stageQuery := `
		INSERT INTO document_stages (task_id, stage_no, name, status, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	now := time.Now().UTC()
	for i, name := range stageNames {
		if _, err := s.db.ExecContext(ctx, stageQuery, task.ID, i+1, name,
			domain.StageStatusPending, now); err != nil {
			log.Error("failed to insert stage slot",
				"task_id", task.ID,
				"stage_no", i+1,
				"error", err)
			return fmt.Errorf("failed to insert stage slot %d: %w", i+1,
				mapError(err, store.ErrTaskNotFound))
		}
	}

	return nil
}

// GetTask retrieves a task by ID.
func (s *DocumentTaskStore) GetTask(ctx context.Context, id uuid.UUID) (*domain.DocumentTask, error) {
	query := `
		SELECT id, kind, status, stage_count, current_stage, subject,
			error_message, created_at, updated_at, completed_at
		FROM document_tasks
		WHERE id = $1
	`

	var task domain.DocumentTask
	var subject []byte
	var errorMessage sql.NullString
	var completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&task.ID,
		&task.Kind,
		&task.Status,
		&task.StageCount,
		&task.CurrentStage,
		&subject,
		&errorMessage,
		&task.CreatedAt,
		&task.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get document task: %w", mapError(err, store.ErrTaskNotFound))
	}

	task.Subject = subject
	task.ErrorMessage = errorMessage.String
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}

	return &task, nil
}

// GetStages retrieves the task's stage slots ordered by stage number.
func (s *DocumentTaskStore) GetStages(ctx context.Context, id uuid.UUID) ([]domain.StageResult, error) {
	// Probe the parent first so a missing task and a task with no slots are
	// distinguishable.
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM document_tasks WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check document task: %w", err)
	}
	if !exists {
		return nil, store.ErrTaskNotFound
	}

	query := `
		SELECT task_id, stage_no, name, status, object_key, size_bytes,
			error_message, updated_at
		FROM document_stages
		WHERE task_id = $1
		ORDER BY stage_no ASC
	`

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage slots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stages []domain.StageResult
	for rows.Next() {
		var stage domain.StageResult
		var objectKey, errorMessage sql.NullString

		if err := rows.Scan(
			&stage.TaskID,
			&stage.StageNo,
			&stage.Name,
			&stage.Status,
			&objectKey,
			&stage.SizeBytes,
			&errorMessage,
			&stage.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stage slot: %w", err)
		}

		stage.ObjectKey = objectKey.String
		stage.ErrorMessage = errorMessage.String
		stages = append(stages, stage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stage slots: %w", err)
	}

	return stages, nil
}

// UpdateTaskStatus updates the task's status and error message.
func (s *DocumentTaskStore) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus, errorMsg string) error {
	query := `
		UPDATE document_tasks
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := s.db.ExecContext(ctx, query, status, errorMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return rowsChanged(result, store.ErrTaskNotFound)
}

// AdvanceStage sets the task's current-stage counter.
func (s *DocumentTaskStore) AdvanceStage(ctx context.Context, id uuid.UUID, currentStage int) error {
	query := `
		UPDATE document_tasks
		SET current_stage = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, currentStage, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to advance stage counter: %w", err)
	}
	return rowsChanged(result, store.ErrTaskNotFound)
}

// UpdateStage writes one stage slot's state. COALESCE keeps an existing
// artifact when the caller passes a zero one, so a progress update does not
// wipe a previously recorded object key.
func (s *DocumentTaskStore) UpdateStage(ctx context.Context, id uuid.UUID, stageNo int, status domain.StageStatus, artifact domain.Artifact, errorMsg string) error {
	query := `
		UPDATE document_stages
		SET status = $1,
			object_key = COALESCE(NULLIF($2, ''), object_key),
			size_bytes = GREATEST(size_bytes, $3),
			error_message = $4,
			updated_at = $5
		WHERE task_id = $6 AND stage_no = $7
	`

	result, err := s.db.ExecContext(ctx, query,
		status, artifact.ObjectKey, artifact.SizeBytes, errorMsg,
		time.Now().UTC(), id, stageNo)
	if err != nil {
		return fmt.Errorf("failed to update stage slot: %w", err)
	}
	return rowsChanged(result, store.ErrTaskNotFound)
}

// CompleteTask sets the task's final status, error message, and completion
// timestamp. The timestamp is only written once; re-finalizing an already
// terminal row keeps the original completion time.
func (s *DocumentTaskStore) CompleteTask(ctx context.Context, id uuid.UUID, status domain.TaskStatus, errorMsg string) error {
	query := `
		UPDATE document_tasks
		SET status = $1, error_message = $2, updated_at = $3,
			completed_at = COALESCE(completed_at, $3)
		WHERE id = $4
	`

	result, err := s.db.ExecContext(ctx, query, status, errorMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to complete document task: %w", err)
	}
	return rowsChanged(result, store.ErrTaskNotFound)
}

// FailRunning forces every running task, and its running stage slots, to
// failed. Used by startup recovery: a running row in a fresh process can
// only be a leftover of the previous one.
func (s *DocumentTaskStore) FailRunning(ctx context.Context, errorMsg string) (int64, error) {
	log := logger.FromContext(ctx)
	now := time.Now().UTC()

	stageQuery := `
		UPDATE document_stages
		SET status = $1, error_message = $2, updated_at = $3
		WHERE status = $4
	`
	if _, err := s.db.ExecContext(ctx, stageQuery,
		domain.StageStatusFailed, errorMsg, now, domain.StageStatusRunning); err != nil {
		log.Error("failed to fail running stage slots", "error", err)
		return 0, fmt.Errorf("failed to fail running stage slots: %w", err)
	}

	return s.failWhere(ctx, domain.TaskStatusRunning, errorMsg, now)
}

// FailPending forces every pending task to failed.
func (s *DocumentTaskStore) FailPending(ctx context.Context, errorMsg string) (int64, error) {
	return s.failWhere(ctx, domain.TaskStatusPending, errorMsg, time.Now().UTC())
}

func (s *DocumentTaskStore) failWhere(ctx context.Context, from domain.TaskStatus, errorMsg string, now time.Time) (int64, error) {
	query := `
		UPDATE document_tasks
		SET status = $1, error_message = $2, updated_at = $3,
			completed_at = COALESCE(completed_at, $3)
		WHERE status = $4
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.TaskStatusFailed, errorMsg, now, from)
	if err != nil {
		return 0, fmt.Errorf("failed to fail %s document tasks: %w", from, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// FailStale forces running tasks created earlier than the threshold to
// failed.
func (s *DocumentTaskStore) FailStale(ctx context.Context, olderThan time.Duration, errorMsg string) (int64, error) {
	now := time.Now().UTC()
	query := `
		UPDATE document_tasks
		SET status = $1, error_message = $2, updated_at = $3,
			completed_at = COALESCE(completed_at, $3)
		WHERE status = $4 AND created_at < $5
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.TaskStatusFailed, errorMsg, now,
		domain.TaskStatusRunning, now.Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale document tasks: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// DeleteExpired hard-deletes tasks created earlier than the retention
// window. Stage slots cascade via the foreign key.
func (s *DocumentTaskStore) DeleteExpired(ctx context.Context, retention time.Duration) (int64, error) {
	query := `DELETE FROM document_tasks WHERE created_at < $1`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired document tasks: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// WithTx returns a new store bound to the given transaction.
func (s *DocumentTaskStore) WithTx(tx *sql.Tx) store.DocumentTaskStore {
	return &DocumentTaskStore{db: tx}
}
