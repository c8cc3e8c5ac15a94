package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/docforge/docforge-api/internal/domain"
)

// ItemResult is the terminal outcome of one work item. A failed executor
// call is reported through the same completion path as a success; the pool
// itself never aborts a run because one item failed.
type ItemResult struct {
	ID       int
	Artifact domain.Artifact
	Err      error
}

// ProgressFunc is invoked by the executor zero or more times while an item
// is in flight, reporting an incremental size metric. It is a pass-through:
// the pool never generates progress itself.
type ProgressFunc func(id int, sizeBytes int64)

// ItemFunc performs the work for one item. The progress callback may be
// called any number of times before returning.
type ItemFunc func(ctx context.Context, id int, progress func(sizeBytes int64)) (domain.Artifact, error)

// CompleteFunc is invoked once per item as it settles, before the freed
// slot is refilled.
type CompleteFunc func(res ItemResult)

// Pool is a bounded-concurrency executor over a FIFO queue of integer work
// item identifiers. It has no persistence and no knowledge of what the work
// is. A Pool is good for a single Execute call.
type Pool struct {
	limit int

	mu         sync.Mutex
	queue      []int
	running    map[int]struct{}
	results    map[int]ItemResult
	completing int
	stopped    bool
	active     bool

	run        ItemFunc
	onProgress ProgressFunc
	onComplete CompleteFunc
	ctx        context.Context

	done     chan struct{}
	doneOnce sync.Once
}

// NewPool creates a pool that runs at most limit executor invocations
// concurrently. Returns ErrInvalidConcurrency if limit is below one.
func NewPool(limit int) (*Pool, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, limit)
	}

	return &Pool{
		limit:   limit,
		running: make(map[int]struct{}),
		results: make(map[int]ItemResult),
		done:    make(chan struct{}),
	}, nil
}

// AddItems appends work item identifiers to the pending queue. It may be
// called before Execute or while Execute is draining; items added after
// Stop are dropped.
func (p *Pool) AddItems(ids ...int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return
	}

	p.queue = append(p.queue, ids...)
	if p.active {
		p.startNextLocked()
	}
}

// Execute drains the queue, running at most the configured limit of
// executor invocations concurrently, and returns once the queue is empty
// and no item is still running. Results are sorted ascending by item id.
//
// onProgress and onComplete may be nil.
func (p *Pool) Execute(ctx context.Context, run ItemFunc, onProgress ProgressFunc, onComplete CompleteFunc) []ItemResult {
	p.mu.Lock()
	p.ctx = ctx
	p.run = run
	p.onProgress = onProgress
	p.onComplete = onComplete
	p.active = true
	p.startNextLocked()
	finished := p.finishedLocked()
	p.mu.Unlock()

	if finished {
		p.signalDone()
	}
	<-p.done

	p.mu.Lock()
	results := make([]ItemResult, 0, len(p.results))
	for _, res := range p.results {
		results = append(results, res)
	}
	p.active = false
	p.mu.Unlock()

	// Completion order depends on individual executor latency, not
	// submission order, so the result list is sorted before return.
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results
}

// Stop clears the pending queue and prevents further dispatch. In-flight
// items are allowed to finish: this is a drain, not a kill.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.queue = nil
	finished := p.active && p.finishedLocked()
	p.mu.Unlock()

	if finished {
		p.signalDone()
	}
}

// startNextLocked launches queued items until the concurrency limit is
// reached, the queue empties, or the pool is stopped. Caller holds p.mu.
func (p *Pool) startNextLocked() {
	for len(p.running) < p.limit && len(p.queue) > 0 && !p.stopped {
		id := p.queue[0]
		p.queue = p.queue[1:]
		p.running[id] = struct{}{}
		go p.runItem(id)
	}
}

// runItem executes one item, records its result, invokes onComplete, then
// refills the freed slot and checks the global completion predicate.
func (p *Pool) runItem(id int) {
	res := ItemResult{ID: id}

	func() {
		defer func() {
			if r := recover(); r != nil {
				res.Err = fmt.Errorf("work executor panicked: %v", r)
			}
		}()

		progress := func(sizeBytes int64) {
			if p.onProgress != nil {
				p.onProgress(id, sizeBytes)
			}
		}
		res.Artifact, res.Err = p.run(p.ctx, id, progress)
	}()

	// The item counts as in flight until its onComplete returns, so
	// Execute cannot resolve while a sibling's completion callback is
	// still writing its result out.
	p.mu.Lock()
	delete(p.running, id)
	p.results[id] = res
	p.completing++
	p.mu.Unlock()

	if p.onComplete != nil {
		p.onComplete(res)
	}

	p.mu.Lock()
	p.completing--
	p.startNextLocked()
	finished := p.finishedLocked()
	p.mu.Unlock()

	if finished {
		p.signalDone()
	}
}

// finishedLocked is the global completion predicate: every queued item has
// a terminal result and no onComplete is still running, or the pool was
// stopped and nothing remains in flight. Caller holds p.mu.
func (p *Pool) finishedLocked() bool {
	return len(p.running) == 0 && len(p.queue) == 0 && p.completing == 0
}

func (p *Pool) signalDone() {
	p.doneOnce.Do(func() { close(p.done) })
}
