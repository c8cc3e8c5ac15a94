package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the overall state of a document task.
type TaskStatus string

// Possible document task status values
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusPartial   TaskStatus = "partial"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// StageStatus represents the state of a single stage slot.
type StageStatus string

// Possible stage status values
const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
)

// Task kind identifiers
const (
	// TaskKindReportBundle is the standard five-stage report bundle:
	// a research brief (the gate) followed by four section documents.
	TaskKindReportBundle = "report_bundle"
)

// DefaultStageCount is the stage count of the standard report bundle:
// one gate stage plus four section stages.
const DefaultStageCount = 5

// Common validation errors for DocumentTask
var (
	ErrEmptyTaskID      = errors.New("document task ID cannot be empty")
	ErrEmptyTaskKind    = errors.New("document task kind cannot be empty")
	ErrEmptySubject     = errors.New("document task subject cannot be empty")
	ErrInvalidStageCnt  = errors.New("document task must have at least two stages")
	ErrInvalidTaskState = errors.New("invalid document task status")
)

// Artifact describes a generated document stored in the object store.
type Artifact struct {
	ObjectKey string `json:"object_key"`
	SizeBytes int64  `json:"size_bytes"`
}

// DocumentTask represents one subject's document set moving through the
// multi-stage pipeline. Stage 1 is the gate: it must complete before any
// other stage may start, and its output feeds every later stage.
type DocumentTask struct {
	ID           uuid.UUID       `json:"id"`
	Kind         string          `json:"kind"`
	Status       TaskStatus      `json:"status"`
	StageCount   int             `json:"stage_count"`
	CurrentStage int             `json:"current_stage"`
	Subject      json.RawMessage `json:"subject"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// StageResult is one stage's result slot on a document task.
type StageResult struct {
	TaskID       uuid.UUID   `json:"task_id"`
	StageNo      int         `json:"stage_no"`
	Name         string      `json:"name"`
	Status       StageStatus `json:"status"`
	ObjectKey    string      `json:"object_key,omitempty"`
	SizeBytes    int64       `json:"size_bytes"`
	ErrorMessage string      `json:"error_message,omitempty"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// NewDocumentTask creates a new DocumentTask in pending state with the given
// kind, subject snapshot, and stage count. The subject is immutable once the
// task is created. Returns an error if validation fails.
func NewDocumentTask(kind string, subject json.RawMessage, stageCount int) (*DocumentTask, error) {
	task := &DocumentTask{
		ID:           uuid.New(),
		Kind:         kind,
		Status:       TaskStatusPending,
		StageCount:   stageCount,
		CurrentStage: 0,
		Subject:      subject,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the DocumentTask has valid data.
func (t *DocumentTask) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}

	if t.Kind == "" {
		return ErrEmptyTaskKind
	}

	if len(t.Subject) == 0 {
		return ErrEmptySubject
	}

	// A pipeline needs a gate plus at least one section.
	if t.StageCount < 2 {
		return ErrInvalidStageCnt
	}

	if !isValidTaskStatus(t.Status) {
		return ErrInvalidTaskState
	}

	return nil
}

// Terminal reports whether the task has reached a final status.
func (t *DocumentTask) Terminal() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusPartial, TaskStatusFailed:
		return true
	default:
		return false
	}
}

func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusRunning, TaskStatusPartial,
		TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}
