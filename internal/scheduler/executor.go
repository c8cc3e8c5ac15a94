package scheduler

import (
	"context"

	"github.com/docforge/docforge-api/internal/domain"
)

// StageExecutor performs the work for one pipeline stage. For non-gate
// stages the gate's artifact descriptor is passed in; for the gate itself
// it is nil. The progress callback may be invoked zero or more times before
// returning. A returned error is treated opaquely: its message is recorded
// on the stage slot and never fails sibling stages.
type StageExecutor func(ctx context.Context, task *domain.DocumentTask, stage *domain.StageResult,
	gate *domain.Artifact, progress func(sizeBytes int64)) (domain.Artifact, error)

// ItemExecutor performs the work for one batch item. The progress callback
// may be invoked zero or more times before returning.
type ItemExecutor func(ctx context.Context, batch *domain.BatchTask, itemNo int,
	progress func(sizeBytes int64)) (domain.Artifact, error)
