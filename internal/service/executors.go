package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/docforge/docforge-api/internal/domain"
	"github.com/docforge/docforge-api/internal/generation"
	"github.com/docforge/docforge-api/internal/platform/objectstore"
	"github.com/docforge/docforge-api/internal/scheduler"
)

// ArtifactStore is the slice of the object store the executors need.
// Implemented by objectstore.Store.
type ArtifactStore interface {
	Upload(ctx context.Context, objectKey string, data []byte, contentType string) (domain.Artifact, error)
	Download(ctx context.Context, objectKey string) ([]byte, error)
}

// DocumentRenderer renders generated text into .docx bytes. Implemented by
// docx.Renderer.
type DocumentRenderer interface {
	Render(title, body string) ([]byte, error)
}

// Executors builds the scheduler executors from the generator, renderer,
// and artifact store. The gate stage writes its raw text to the object
// store next to the rendered document, and section stages read it back
// from there, so a brief survives process restarts and nothing is held in
// memory across stages.
type Executors struct {
	generator generation.Generator
	renderer  DocumentRenderer
	artifacts ArtifactStore
	logger    *slog.Logger
}

// NewExecutors creates the executor factory.
func NewExecutors(generator generation.Generator, renderer DocumentRenderer,
	artifacts ArtifactStore, logger *slog.Logger) *Executors {
	return &Executors{
		generator: generator,
		renderer:  renderer,
		artifacts: artifacts,
		logger:    logger.With(slog.String("component", "executors")),
	}
}

// stageObjectKey is where a stage's rendered document lands.
func stageObjectKey(taskID uuid.UUID, stageNo int, name string) string {
	return fmt.Sprintf("documents/%s/%02d-%s.docx", taskID, stageNo, name)
}

// briefTextKey is where the gate stage's raw text lands.
func briefTextKey(taskID uuid.UUID) string {
	return fmt.Sprintf("documents/%s/brief.txt", taskID)
}

// itemObjectKey is where a batch item's rendered document lands.
func itemObjectKey(batchID uuid.UUID, itemNo int) string {
	return fmt.Sprintf("batches/%s/item-%04d.docx", batchID, itemNo)
}

// documentTitle turns a stage or item name into a display title.
func documentTitle(name string) string {
	name = strings.ReplaceAll(name, "_", " ")
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// Stage returns the executor for document pipeline stages.
func (e *Executors) Stage() scheduler.StageExecutor {
	return func(ctx context.Context, task *domain.DocumentTask, stage *domain.StageResult,
		gate *domain.Artifact, progress func(int64)) (domain.Artifact, error) {

		var text string
		var err error

		if stage.StageNo == 1 {
			text, err = e.generator.GenerateBrief(ctx, task.Subject)
			if err != nil {
				return domain.Artifact{}, fmt.Errorf("brief generation failed: %w", err)
			}

			// Persist the raw brief so section stages can ground on it.
			if _, err := e.artifacts.Upload(ctx, briefTextKey(task.ID),
				[]byte(text), objectstore.TextContentType); err != nil {
				return domain.Artifact{}, fmt.Errorf("failed to store brief text: %w", err)
			}
		} else {
			briefText, err := e.artifacts.Download(ctx, briefTextKey(task.ID))
			if err != nil {
				return domain.Artifact{}, fmt.Errorf("failed to load brief text: %w", err)
			}

			text, err = e.generator.GenerateSection(ctx, task.Subject, stage.Name, string(briefText))
			if err != nil {
				return domain.Artifact{}, fmt.Errorf("section %q generation failed: %w", stage.Name, err)
			}
		}

		data, err := e.renderer.Render(documentTitle(stage.Name), text)
		if err != nil {
			return domain.Artifact{}, fmt.Errorf("failed to render %q: %w", stage.Name, err)
		}
		progress(int64(len(data)))

		artifact, err := e.artifacts.Upload(ctx, stageObjectKey(task.ID, stage.StageNo, stage.Name),
			data, objectstore.DocxContentType)
		if err != nil {
			return domain.Artifact{}, fmt.Errorf("failed to upload %q: %w", stage.Name, err)
		}

		e.logger.Debug("stage artifact produced",
			"task_id", task.ID,
			"stage_no", stage.StageNo,
			"object_key", artifact.ObjectKey,
			"size_bytes", artifact.SizeBytes)

		return artifact, nil
	}
}

// Item returns the executor for batch items.
func (e *Executors) Item() scheduler.ItemExecutor {
	return func(ctx context.Context, batch *domain.BatchTask, itemNo int,
		progress func(int64)) (domain.Artifact, error) {

		text, err := e.generator.GenerateItem(ctx, batch.Params, itemNo)
		if err != nil {
			return domain.Artifact{}, fmt.Errorf("item %d generation failed: %w", itemNo, err)
		}

		data, err := e.renderer.Render(fmt.Sprintf("Document %d", itemNo), text)
		if err != nil {
			return domain.Artifact{}, fmt.Errorf("failed to render item %d: %w", itemNo, err)
		}
		progress(int64(len(data)))

		artifact, err := e.artifacts.Upload(ctx, itemObjectKey(batch.ID, itemNo),
			data, objectstore.DocxContentType)
		if err != nil {
			return domain.Artifact{}, fmt.Errorf("failed to upload item %d: %w", itemNo, err)
		}

		return artifact, nil
	}
}
