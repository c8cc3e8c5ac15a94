package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/docforge/docforge-api/internal/domain"
	"github.com/docforge/docforge-api/internal/store"
)

// Pipeline drives one document task through its persisted state machine:
// the gate stage runs alone, then all remaining stages fan out concurrently
// and the task's final status is a fold of their outcomes.
type Pipeline struct {
	tasks       store.DocumentTaskStore
	exec        StageExecutor
	concurrency int
	logger      *slog.Logger
	wg          sync.WaitGroup
}

// NewPipeline creates a pipeline over the given store and stage executor.
// concurrency bounds how many section stages run at once during the
// fan-out; values below one run the sections one at a time.
func NewPipeline(tasks store.DocumentTaskStore, exec StageExecutor, concurrency int, logger *slog.Logger) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}

	return &Pipeline{
		tasks:       tasks,
		exec:        exec,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Dispatch starts the task in a background goroutine and returns
// immediately. Panics and errors are caught at the goroutine's outermost
// boundary and written to the persisted row; nothing escapes the scheduler.
func (p *Pipeline) Dispatch(id uuid.UUID) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx := context.Background()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("pipeline panicked", "task_id", id, "panic", r)
				p.persistFinal(ctx, id, domain.TaskStatusFailed, fmt.Sprintf("internal error: %v", r))
			}
		}()

		if err := p.Run(ctx, id); err != nil {
			p.logger.Error("pipeline run failed", "task_id", id, "error", err)
			p.persistFinal(ctx, id, domain.TaskStatusFailed, err.Error())
		}
	}()
}

// Wait blocks until all dispatched pipelines have settled. Used during
// shutdown and in tests.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Run executes the full pipeline for the given task synchronously. A
// returned error means the pipeline could not be driven at all (e.g. the
// row is missing); stage-level failures are folded into the persisted
// status and never returned.
func (p *Pipeline) Run(ctx context.Context, id uuid.UUID) error {
	logger := p.logger.With("task_id", id)

	task, err := p.tasks.GetTask(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load task: %w", err)
	}

	stages, err := p.tasks.GetStages(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load stage slots: %w", err)
	}
	if len(stages) != task.StageCount {
		return fmt.Errorf("task has %d stage slots, want %d", len(stages), task.StageCount)
	}

	p.persistTaskStatus(ctx, id, domain.TaskStatusRunning, "")
	logger.Info("pipeline started", "stage_count", task.StageCount)

	// Stage 1 is the gate: it executes alone, and its artifact feeds every
	// later stage. If it fails the task terminates immediately and the
	// remaining slots stay pending, since they are meaningless without the
	// gate's output.
	gate := stages[0]
	p.persistStage(ctx, id, gate.StageNo, domain.StageStatusRunning, domain.Artifact{}, "")
	p.persistAdvance(ctx, id, 1)

	gateArtifact, gateErr := p.runStage(ctx, task, &gate, nil)
	if gateErr != nil {
		p.persistStage(ctx, id, gate.StageNo, domain.StageStatusFailed, domain.Artifact{}, gateErr.Error())
		p.persistFinal(ctx, id, domain.TaskStatusFailed,
			fmt.Sprintf("gate stage %q failed: %s", gate.Name, gateErr.Error()))
		logger.Info("pipeline terminated at gate", "stage", gate.Name, "error", gateErr)
		return nil
	}
	p.persistStage(ctx, id, gate.StageNo, domain.StageStatusCompleted, gateArtifact, "")
	logger.Info("gate stage completed", "stage", gate.Name, "object_key", gateArtifact.ObjectKey)

	// Fan out stages 2..N. Every branch settles independently and persists
	// its own slot the moment it finishes; the fold below is the only place
	// allowed to turn stage outcomes into an overall status.
	sections := stages[1:]
	outcomes := make([]error, len(sections))

	var settledMu sync.Mutex
	settled := 1 // the gate

	sem := make(chan struct{}, p.concurrency)

	var wg sync.WaitGroup
	for i := range sections {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			section := sections[i]
			p.persistStage(ctx, id, section.StageNo, domain.StageStatusRunning, domain.Artifact{}, "")

			artifact, err := p.runStage(ctx, task, &section, &gateArtifact)
			outcomes[i] = err

			if err != nil {
				p.persistStage(ctx, id, section.StageNo, domain.StageStatusFailed, domain.Artifact{}, err.Error())
			} else {
				p.persistStage(ctx, id, section.StageNo, domain.StageStatusCompleted, artifact, "")
			}

			settledMu.Lock()
			settled++
			p.persistAdvance(ctx, id, settled)
			settledMu.Unlock()
		}(i)
	}
	wg.Wait()

	status, message := foldSectionOutcomes(gate.Name, sections, outcomes)
	p.persistFinal(ctx, id, status, message)
	logger.Info("pipeline settled", "status", status, "message", message)

	return nil
}

// runStage invokes the stage executor with panic containment. A panic in
// the injected work executor becomes that stage's failure, never the
// pipeline's.
func (p *Pipeline) runStage(ctx context.Context, task *domain.DocumentTask, stage *domain.StageResult,
	gate *domain.Artifact) (artifact domain.Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("work executor panicked: %v", r)
		}
	}()

	progress := func(sizeBytes int64) {
		p.persistStage(ctx, task.ID, stage.StageNo, domain.StageStatusRunning,
			domain.Artifact{SizeBytes: sizeBytes}, "")
	}

	return p.exec(ctx, task, stage, gate, progress)
}

// foldSectionOutcomes computes the task's final status from the settled
// section stages. All sections failing is reported distinctly from the
// gate short-circuit so the two cases stay distinguishable in the error
// message, even though the stored status value is the same.
func foldSectionOutcomes(gateName string, sections []domain.StageResult, outcomes []error) (domain.TaskStatus, string) {
	failures := 0
	for _, err := range outcomes {
		if err != nil {
			failures++
		}
	}

	switch {
	case failures == 0:
		return domain.TaskStatusCompleted, ""
	case failures == len(sections):
		return domain.TaskStatusFailed,
			fmt.Sprintf("all %d section stages failed (gate stage %q succeeded)", len(sections), gateName)
	default:
		return domain.TaskStatusPartial,
			fmt.Sprintf("%d of %d section stages failed", failures, len(sections))
	}
}

// Persistence helpers. A failed status write is logged and swallowed so
// in-memory progress is not lost mid-pipeline; the caller observes a stale
// row until the next successful write.

func (p *Pipeline) persistTaskStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus, msg string) {
	if err := p.tasks.UpdateTaskStatus(ctx, id, status, msg); err != nil {
		p.logger.Error("failed to persist task status", "task_id", id, "status", status, "error", err)
	}
}

func (p *Pipeline) persistAdvance(ctx context.Context, id uuid.UUID, currentStage int) {
	if err := p.tasks.AdvanceStage(ctx, id, currentStage); err != nil {
		p.logger.Error("failed to persist stage counter", "task_id", id, "current_stage", currentStage, "error", err)
	}
}

func (p *Pipeline) persistStage(ctx context.Context, id uuid.UUID, stageNo int, status domain.StageStatus,
	artifact domain.Artifact, msg string) {
	if err := p.tasks.UpdateStage(ctx, id, stageNo, status, artifact, msg); err != nil {
		p.logger.Error("failed to persist stage slot", "task_id", id, "stage_no", stageNo, "error", err)
	}
}

func (p *Pipeline) persistFinal(ctx context.Context, id uuid.UUID, status domain.TaskStatus, msg string) {
	if err := p.tasks.CompleteTask(ctx, id, status, msg); err != nil {
		p.logger.Error("failed to persist final task status", "task_id", id, "status", status, "error", err)
	}
}
