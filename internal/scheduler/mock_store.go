package scheduler

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docforge/docforge-api/internal/domain"
	"github.com/docforge/docforge-api/internal/store"
)

// MockDocumentTaskStore is an in-memory implementation of
// store.DocumentTaskStore for testing. Function fields allow individual
// operations to be overridden for error injection.
type MockDocumentTaskStore struct {
	mu     sync.Mutex
	tasks  map[uuid.UUID]*domain.DocumentTask
	stages map[uuid.UUID][]domain.StageResult

	UpdateStageFn    func(ctx context.Context, id uuid.UUID, stageNo int, status domain.StageStatus, artifact domain.Artifact, errorMsg string) error
	CompleteTaskFn   func(ctx context.Context, id uuid.UUID, status domain.TaskStatus, errorMsg string) error
	CompleteTaskHits int
}

// NewMockDocumentTaskStore creates an empty mock store.
func NewMockDocumentTaskStore() *MockDocumentTaskStore {
	return &MockDocumentTaskStore{
		tasks:  make(map[uuid.UUID]*domain.DocumentTask),
		stages: make(map[uuid.UUID][]domain.StageResult),
	}
}

func (s *MockDocumentTaskStore) CreateTask(ctx context.Context, task *domain.DocumentTask, stageNames []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *task
	s.tasks[task.ID] = &copied

	slots := make([]domain.StageResult, 0, len(stageNames))
	for i, name := range stageNames {
		slots = append(slots, domain.StageResult{
			TaskID:    task.ID,
			StageNo:   i + 1,
			Name:      name,
			Status:    domain.StageStatusPending,
			UpdatedAt: time.Now().UTC(),
		})
	}
	s.stages[task.ID] = slots
	return nil
}

func (s *MockDocumentTaskStore) GetTask(ctx context.Context, id uuid.UUID) (*domain.DocumentTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	copied := *task
	return &copied, nil
}

func (s *MockDocumentTaskStore) GetStages(ctx context.Context, id uuid.UUID) ([]domain.StageResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slots, ok := s.stages[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	out := make([]domain.StageResult, len(slots))
	copy(out, slots)
	return out, nil
}

func (s *MockDocumentTaskStore) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task, ok := s.tasks[id]; ok {
		task.Status = status
		task.ErrorMessage = errorMsg
		task.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *MockDocumentTaskStore) AdvanceStage(ctx context.Context, id uuid.UUID, currentStage int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task, ok := s.tasks[id]; ok {
		task.CurrentStage = currentStage
	}
	return nil
}

func (s *MockDocumentTaskStore) UpdateStage(ctx context.Context, id uuid.UUID, stageNo int, status domain.StageStatus, artifact domain.Artifact, errorMsg string) error {
	if s.UpdateStageFn != nil {
		return s.UpdateStageFn(ctx, id, stageNo, status, artifact, errorMsg)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slots := s.stages[id]
	for i := range slots {
		if slots[i].StageNo == stageNo {
			slots[i].Status = status
			if artifact.ObjectKey != "" {
				slots[i].ObjectKey = artifact.ObjectKey
			}
			if artifact.SizeBytes > 0 {
				slots[i].SizeBytes = artifact.SizeBytes
			}
			slots[i].ErrorMessage = errorMsg
			slots[i].UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

func (s *MockDocumentTaskStore) CompleteTask(ctx context.Context, id uuid.UUID, status domain.TaskStatus, errorMsg string) error {
	if s.CompleteTaskFn != nil {
		return s.CompleteTaskFn(ctx, id, status, errorMsg)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.CompleteTaskHits++
	if task, ok := s.tasks[id]; ok {
		task.Status = status
		task.ErrorMessage = errorMsg
		now := time.Now().UTC()
		task.UpdatedAt = now
		task.CompletedAt = &now
	}
	return nil
}

func (s *MockDocumentTaskStore) FailRunning(ctx context.Context, errorMsg string) (int64, error) {
	return s.failWhere(domain.TaskStatusRunning, errorMsg), nil
}

func (s *MockDocumentTaskStore) FailPending(ctx context.Context, errorMsg string) (int64, error) {
	return s.failWhere(domain.TaskStatusPending, errorMsg), nil
}

func (s *MockDocumentTaskStore) failWhere(from domain.TaskStatus, errorMsg string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, task := range s.tasks {
		if task.Status != from {
			continue
		}
		task.Status = domain.TaskStatusFailed
		task.ErrorMessage = errorMsg
		now := time.Now().UTC()
		task.UpdatedAt = now
		task.CompletedAt = &now
		n++

		for i := range s.stages[task.ID] {
			if s.stages[task.ID][i].Status == domain.StageStatusRunning {
				s.stages[task.ID][i].Status = domain.StageStatusFailed
				s.stages[task.ID][i].ErrorMessage = errorMsg
			}
		}
	}
	return n
}

func (s *MockDocumentTaskStore) FailStale(ctx context.Context, olderThan time.Duration, errorMsg string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var n int64
	for _, task := range s.tasks {
		if task.Status == domain.TaskStatusRunning && task.CreatedAt.Before(cutoff) {
			task.Status = domain.TaskStatusFailed
			task.ErrorMessage = errorMsg
			now := time.Now().UTC()
			task.UpdatedAt = now
			task.CompletedAt = &now
			n++
		}
	}
	return n, nil
}

func (s *MockDocumentTaskStore) DeleteExpired(ctx context.Context, retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-retention)
	var n int64
	for id, task := range s.tasks {
		if task.CreatedAt.Before(cutoff) {
			delete(s.tasks, id)
			delete(s.stages, id)
			n++
		}
	}
	return n, nil
}

func (s *MockDocumentTaskStore) WithTx(tx *sql.Tx) store.DocumentTaskStore {
	return s
}

// MockBatchStore is an in-memory implementation of store.BatchStore for
// testing.
type MockBatchStore struct {
	mu      sync.Mutex
	batches map[uuid.UUID]*domain.BatchTask
	items   map[uuid.UUID][]domain.BatchItem

	AdjustCountersFn func(ctx context.Context, id uuid.UUID, completedDelta, failedDelta int) error
}

// NewMockBatchStore creates an empty mock store.
func NewMockBatchStore() *MockBatchStore {
	return &MockBatchStore{
		batches: make(map[uuid.UUID]*domain.BatchTask),
		items:   make(map[uuid.UUID][]domain.BatchItem),
	}
}

func (s *MockBatchStore) CreateBatch(ctx context.Context, batch *domain.BatchTask, items []*domain.BatchItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *batch
	s.batches[batch.ID] = &copied

	rows := make([]domain.BatchItem, 0, len(items))
	for _, item := range items {
		rows = append(rows, *item)
	}
	s.items[batch.ID] = rows
	return nil
}

func (s *MockBatchStore) GetBatch(ctx context.Context, id uuid.UUID) (*domain.BatchTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[id]
	if !ok {
		return nil, store.ErrBatchNotFound
	}
	copied := *batch
	return &copied, nil
}

func (s *MockBatchStore) GetItems(ctx context.Context, id uuid.UUID) ([]domain.BatchItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, ok := s.items[id]
	if !ok {
		return nil, store.ErrBatchNotFound
	}
	out := make([]domain.BatchItem, len(rows))
	copy(out, rows)
	return out, nil
}

func (s *MockBatchStore) GetItem(ctx context.Context, id uuid.UUID, itemNo int) (*domain.BatchItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items[id] {
		if item.ItemNo == itemNo {
			copied := item
			return &copied, nil
		}
	}
	return nil, store.ErrItemNotFound
}

func (s *MockBatchStore) UpdateBatchStatus(ctx context.Context, id uuid.UUID, status domain.BatchStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if batch, ok := s.batches[id]; ok {
		batch.Status = status
		batch.ErrorMessage = errorMsg
		batch.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *MockBatchStore) CompleteBatch(ctx context.Context, id uuid.UUID, status domain.BatchStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if batch, ok := s.batches[id]; ok {
		batch.Status = status
		batch.ErrorMessage = errorMsg
		now := time.Now().UTC()
		batch.UpdatedAt = now
		batch.CompletedAt = &now
	}
	return nil
}

func (s *MockBatchStore) UpdateItem(ctx context.Context, id uuid.UUID, itemNo int, status domain.ItemStatus, artifact domain.Artifact, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.items[id]
	for i := range rows {
		if rows[i].ItemNo == itemNo {
			rows[i].Status = status
			rows[i].ObjectKey = artifact.ObjectKey
			rows[i].SizeBytes = artifact.SizeBytes
			rows[i].ErrorMessage = errorMsg
			rows[i].UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

func (s *MockBatchStore) ResetItem(ctx context.Context, id uuid.UUID, itemNo int) error {
	return s.UpdateItem(ctx, id, itemNo, domain.ItemStatusRunning, domain.Artifact{}, "")
}

func (s *MockBatchStore) AdjustCounters(ctx context.Context, id uuid.UUID, completedDelta, failedDelta int) error {
	if s.AdjustCountersFn != nil {
		return s.AdjustCountersFn(ctx, id, completedDelta, failedDelta)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if batch, ok := s.batches[id]; ok {
		batch.CompletedItems += completedDelta
		batch.FailedItems += failedDelta
		batch.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *MockBatchStore) FailRunning(ctx context.Context, errorMsg string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, batch := range s.batches {
		if batch.Status == domain.BatchStatusRunning {
			s.failBatchLocked(batch, errorMsg)
			n++
		}
	}

	// Any item left running is forced to failed under its parent,
	// regardless of the parent's own status.
	for id := range s.items {
		rows := s.items[id]
		for i := range rows {
			if rows[i].Status == domain.ItemStatusRunning {
				rows[i].Status = domain.ItemStatusFailed
				rows[i].ErrorMessage = errorMsg
				rows[i].UpdatedAt = time.Now().UTC()
			}
		}
	}
	return n, nil
}

func (s *MockBatchStore) FailPending(ctx context.Context, errorMsg string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, batch := range s.batches {
		if batch.Status == domain.BatchStatusPending {
			s.failBatchLocked(batch, errorMsg)
			n++
		}
	}
	return n, nil
}

func (s *MockBatchStore) failBatchLocked(batch *domain.BatchTask, errorMsg string) {
	batch.Status = domain.BatchStatusFailed
	batch.ErrorMessage = errorMsg
	now := time.Now().UTC()
	batch.UpdatedAt = now
	batch.CompletedAt = &now
}

func (s *MockBatchStore) FailStale(ctx context.Context, olderThan time.Duration, errorMsg string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)

	// Stale running items are failed regardless of their parent's status.
	for id := range s.items {
		rows := s.items[id]
		for i := range rows {
			if rows[i].Status == domain.ItemStatusRunning && rows[i].CreatedAt.Before(cutoff) {
				rows[i].Status = domain.ItemStatusFailed
				rows[i].ErrorMessage = errorMsg
				rows[i].UpdatedAt = time.Now().UTC()
			}
		}
	}

	var n int64
	for _, batch := range s.batches {
		if batch.Status == domain.BatchStatusRunning && batch.CreatedAt.Before(cutoff) {
			s.failBatchLocked(batch, errorMsg)
			n++
		}
	}
	return n, nil
}

func (s *MockBatchStore) DeleteExpired(ctx context.Context, retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-retention)
	var n int64
	for id, batch := range s.batches {
		if batch.CreatedAt.Before(cutoff) {
			delete(s.batches, id)
			delete(s.items, id)
			n++
		}
	}
	return n, nil
}

func (s *MockBatchStore) WithTx(tx *sql.Tx) store.BatchStore {
	return s
}
