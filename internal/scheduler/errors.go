package scheduler

import "errors"

// Common errors returned by the scheduler
var (
	// ErrInvalidConcurrency is returned when a pool is constructed with a
	// limit below one.
	ErrInvalidConcurrency = errors.New("concurrency limit must be at least 1")

	// ErrBatchCapacity is returned when a batch submission is rejected
	// because the process-wide running-batch cap is reached. Submissions
	// are rejected synchronously, never queued; the caller must retry later.
	ErrBatchCapacity = errors.New("running batch capacity reached, try again later")

	// ErrStopped is the cancellation sentinel recorded for items that were
	// skipped at the dispatch boundary after their batch was stopped. It is
	// not a domain error: finalization uses it to report the batch as
	// stopped rather than failed.
	ErrStopped = errors.New("cancelled before start")

	// ErrRetryInFlight is returned when a retry is requested for an item
	// that is already running or already being retried.
	ErrRetryInFlight = errors.New("item is already running or being retried")

	// ErrItemNotFailed is returned when a retry is requested for an item
	// that is not in failed state.
	ErrItemNotFailed = errors.New("only failed items can be retried")

	// ErrAlreadyRegistered is returned when a cancellation token is
	// registered twice for the same batch.
	ErrAlreadyRegistered = errors.New("cancellation token already registered")
)
