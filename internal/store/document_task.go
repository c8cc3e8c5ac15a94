package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/docforge/docforge-api/internal/domain"
)

// DocumentTaskStore defines the interface for persisting document tasks and
// their per-stage result slots. Rows are exclusively owned by the scheduler
// for writes; other callers only read.
type DocumentTaskStore interface {
	// CreateTask persists a new task together with one pending stage slot
	// per stage name, in a single transaction.
	CreateTask(ctx context.Context, task *domain.DocumentTask, stageNames []string) error

	// GetTask retrieves a task by ID. Returns ErrTaskNotFound if no row exists.
	GetTask(ctx context.Context, id uuid.UUID) (*domain.DocumentTask, error)

	// GetStages retrieves the task's stage slots ordered by stage number.
	GetStages(ctx context.Context, id uuid.UUID) ([]domain.StageResult, error)

	// UpdateTaskStatus updates the task's status and error message.
	UpdateTaskStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus, errorMsg string) error

	// AdvanceStage sets the task's current-stage counter.
	AdvanceStage(ctx context.Context, id uuid.UUID, currentStage int) error

	// UpdateStage writes one stage slot's terminal or running state.
	UpdateStage(ctx context.Context, id uuid.UUID, stageNo int, status domain.StageStatus,
		artifact domain.Artifact, errorMsg string) error

	// CompleteTask sets the task's final status, error message, and
	// completion timestamp.
	CompleteTask(ctx context.Context, id uuid.UUID, status domain.TaskStatus, errorMsg string) error

	// FailRunning forces every running task (and its running stage slots)
	// to failed with the given message. Returns the number of tasks changed.
	FailRunning(ctx context.Context, errorMsg string) (int64, error)

	// FailPending forces every pending task to failed with the given
	// message. Returns the number of tasks changed.
	FailPending(ctx context.Context, errorMsg string) (int64, error)

	// FailStale forces running tasks created earlier than the threshold to
	// failed with the given message. Returns the number of tasks changed.
	FailStale(ctx context.Context, olderThan time.Duration, errorMsg string) (int64, error)

	// DeleteExpired hard-deletes tasks created earlier than the retention
	// window. Returns the number of tasks deleted.
	DeleteExpired(ctx context.Context, retention time.Duration) (int64, error)

	// WithTx returns a new DocumentTaskStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) DocumentTaskStore
}
