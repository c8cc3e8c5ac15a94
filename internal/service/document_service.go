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

// ReportBundleStageNames are the stage names of the standard report bundle,
// in stage order. The first entry is the gate.
var ReportBundleStageNames = []string{
	"brief",
	"summary",
	"analysis",
	"recommendations",
	"appendix",
}

// DocumentService provides document task operations.
type DocumentService interface {
	// CreateDocumentTask persists a new report bundle task for the subject
	// and dispatches its pipeline in the background.
	CreateDocumentTask(ctx context.Context, subject json.RawMessage) (*domain.DocumentTask, error)

	// GetDocumentTask retrieves a task and its stage slots.
	GetDocumentTask(ctx context.Context, id uuid.UUID) (*domain.DocumentTask, []domain.StageResult, error)
}

// documentService implements DocumentService.
type documentService struct {
	db       *sql.DB
	tasks    store.DocumentTaskStore
	pipeline *scheduler.Pipeline
	logger   *slog.Logger
}

// NewDocumentService creates a DocumentService over the given store and
// pipeline.
func NewDocumentService(db *sql.DB, tasks store.DocumentTaskStore,
	pipeline *scheduler.Pipeline, logger *slog.Logger) DocumentService {
	return &documentService{
		db:       db,
		tasks:    tasks,
		pipeline: pipeline,
		logger:   logger.With(slog.String("component", "document_service")),
	}
}

// CreateDocumentTask persists the task with its pending stage slots in one
// transaction, then hands it to the pipeline. The subject snapshot is
// immutable from here on.
func (s *documentService) CreateDocumentTask(ctx context.Context, subject json.RawMessage) (*domain.DocumentTask, error) {
	task, err := domain.NewDocumentTask(domain.TaskKindReportBundle, subject, len(ReportBundleStageNames))
	if err != nil {
		return nil, newServiceError("create_document_task", "invalid task", err,
			domain.ErrEmptySubject)
	}

	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		return s.tasks.WithTx(tx).CreateTask(ctx, task, ReportBundleStageNames)
	})
	if err != nil {
		s.logger.Error("failed to persist document task",
			"task_id", task.ID,
			"error", err)
		return nil, newServiceError("create_document_task", "failed to persist task", err)
	}

	s.logger.Info("document task created",
		"task_id", task.ID,
		"stage_count", task.StageCount)

	s.pipeline.Dispatch(task.ID)
	return task, nil
}

// GetDocumentTask retrieves a task and its stage slots.
func (s *documentService) GetDocumentTask(ctx context.Context, id uuid.UUID) (*domain.DocumentTask, []domain.StageResult, error) {
	task, err := s.tasks.GetTask(ctx, id)
	if err != nil {
		return nil, nil, newServiceError("get_document_task", "failed to load task", err,
			store.ErrTaskNotFound)
	}

	stages, err := s.tasks.GetStages(ctx, id)
	if err != nil {
		return nil, nil, newServiceError("get_document_task", "failed to load stages", err,
			store.ErrTaskNotFound)
	}

	return task, stages, nil
}
