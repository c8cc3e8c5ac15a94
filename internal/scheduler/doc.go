// Package scheduler contains the task-orchestration core of the service:
// a bounded-concurrency pool over integer work items, the multi-stage
// document pipeline, the batch runner with per-item retry, the cooperative
// cancellation registry, and the recovery/self-healing sweep that forces
// stuck persisted state into terminal failure.
//
// The scheduler does not know how a unit of work is performed. Work is
// injected as executor functions (see executor.go); the scheduler only
// runs, tracks, retries, and recovers it.
package scheduler
