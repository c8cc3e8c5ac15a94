package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// BatchStatus represents the overall state of a batch task.
type BatchStatus string

// Possible batch task status values
const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusStopped   BatchStatus = "stopped"
	BatchStatusFailed    BatchStatus = "failed"
)

// ItemStatus represents the state of a single batch item.
type ItemStatus string

// Possible batch item status values
const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusRunning   ItemStatus = "running"
	ItemStatusCompleted ItemStatus = "completed"
	ItemStatusFailed    ItemStatus = "failed"
)

// Common validation errors for BatchTask
var (
	ErrEmptyBatchID      = errors.New("batch ID cannot be empty")
	ErrEmptyBatchParams  = errors.New("batch parameters cannot be empty")
	ErrEmptyBatch        = errors.New("batch must contain at least one item")
	ErrInvalidBatchState = errors.New("invalid batch status")
	ErrInvalidItemNumber = errors.New("batch item number must be positive")
)

// BatchTask is the parent of a homogeneous set of independently retryable
// items sharing one set of generation parameters. Item numbers are assigned
// once from the contiguous range 1..TotalItems at creation and never reused.
type BatchTask struct {
	ID             uuid.UUID       `json:"id"`
	Status         BatchStatus     `json:"status"`
	TotalItems     int             `json:"total_items"`
	CompletedItems int             `json:"completed_items"`
	FailedItems    int             `json:"failed_items"`
	Params         json.RawMessage `json:"params"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// BatchItem is one child of a BatchTask, identified by (BatchID, ItemNo).
type BatchItem struct {
	BatchID      uuid.UUID  `json:"batch_id"`
	ItemNo       int        `json:"item_no"`
	Status       ItemStatus `json:"status"`
	ObjectKey    string     `json:"object_key,omitempty"`
	SizeBytes    int64      `json:"size_bytes"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewBatchTask creates a new BatchTask in pending state. An empty batch is
// rejected here rather than resolved as trivially completed: the finalization
// fold assumes at least one item exists.
func NewBatchTask(params json.RawMessage, totalItems int) (*BatchTask, error) {
	batch := &BatchTask{
		ID:         uuid.New(),
		Status:     BatchStatusPending,
		TotalItems: totalItems,
		Params:     params,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}

	if err := batch.Validate(); err != nil {
		return nil, err
	}

	return batch, nil
}

// Validate checks if the BatchTask has valid data.
func (b *BatchTask) Validate() error {
	if b.ID == uuid.Nil {
		return ErrEmptyBatchID
	}

	if len(b.Params) == 0 {
		return ErrEmptyBatchParams
	}

	if b.TotalItems < 1 {
		return ErrEmptyBatch
	}

	if !isValidBatchStatus(b.Status) {
		return ErrInvalidBatchState
	}

	return nil
}

// Items builds the child rows for the batch, one per item number in
// 1..TotalItems, all pending. Items share their parent's creation time.
func (b *BatchTask) Items() []*BatchItem {
	items := make([]*BatchItem, 0, b.TotalItems)
	for n := 1; n <= b.TotalItems; n++ {
		items = append(items, &BatchItem{
			BatchID:   b.ID,
			ItemNo:    n,
			Status:    ItemStatusPending,
			CreatedAt: b.CreatedAt,
			UpdatedAt: b.CreatedAt,
		})
	}
	return items
}

// Terminal reports whether the batch has reached a final status.
func (b *BatchTask) Terminal() bool {
	switch b.Status {
	case BatchStatusCompleted, BatchStatusStopped, BatchStatusFailed:
		return true
	default:
		return false
	}
}

func isValidBatchStatus(status BatchStatus) bool {
	switch status {
	case BatchStatusPending, BatchStatusRunning, BatchStatusCompleted,
		BatchStatusStopped, BatchStatusFailed:
		return true
	default:
		return false
	}
}
