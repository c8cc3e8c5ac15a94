package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docforge/docforge-api/internal/domain"
)

func TestNewPool(t *testing.T) {
	t.Parallel()

	t.Run("valid limit", func(t *testing.T) {
		t.Parallel()

		pool, err := NewPool(3)
		require.NoError(t, err)
		assert.NotNil(t, pool)
	})

	t.Run("zero limit rejected", func(t *testing.T) {
		t.Parallel()

		pool, err := NewPool(0)
		assert.ErrorIs(t, err, ErrInvalidConcurrency)
		assert.Nil(t, pool)
	})

	t.Run("negative limit rejected", func(t *testing.T) {
		t.Parallel()

		pool, err := NewPool(-1)
		assert.ErrorIs(t, err, ErrInvalidConcurrency)
		assert.Nil(t, pool)
	})
}

func TestPool_Execute_AllItemsSortedAndBounded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		limit int
		n     int
	}{
		{name: "serial", limit: 1, n: 8},
		{name: "limit three", limit: 3, n: 20},
		{name: "limit above item count", limit: 50, n: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pool, err := NewPool(tt.limit)
			require.NoError(t, err)

			ids := make([]int, tt.n)
			for i := range ids {
				ids[i] = i + 1
			}
			pool.AddItems(ids...)

			var inFlight, maxInFlight int64
			run := func(ctx context.Context, id int, progress func(int64)) (domain.Artifact, error) {
				cur := atomic.AddInt64(&inFlight, 1)
				for {
					max := atomic.LoadInt64(&maxInFlight)
					if cur <= max || atomic.CompareAndSwapInt64(&maxInFlight, max, cur) {
						break
					}
				}
				time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
				atomic.AddInt64(&inFlight, -1)
				return domain.Artifact{ObjectKey: fmt.Sprintf("doc-%d.docx", id)}, nil
			}

			results := pool.Execute(context.Background(), run, nil, nil)

			require.Len(t, results, tt.n)
			for i, res := range results {
				assert.Equal(t, i+1, res.ID, "results must be sorted by id with no gaps")
				assert.NoError(t, res.Err)
			}
			assert.LessOrEqual(t, atomic.LoadInt64(&maxInFlight), int64(tt.limit),
				"in-flight executor calls must never exceed the limit")
		})
	}
}

func TestPool_Execute_FailuresReportedNotFatal(t *testing.T) {
	t.Parallel()

	pool, err := NewPool(2)
	require.NoError(t, err)
	pool.AddItems(1, 2, 3, 4)

	run := func(ctx context.Context, id int, progress func(int64)) (domain.Artifact, error) {
		if id%2 == 0 {
			return domain.Artifact{}, errors.New("generation refused")
		}
		return domain.Artifact{ObjectKey: fmt.Sprintf("doc-%d.docx", id)}, nil
	}

	results := pool.Execute(context.Background(), run, nil, nil)

	require.Len(t, results, 4)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Error(t, results[3].Err)
}

func TestPool_Execute_PanicCapturedAsFailure(t *testing.T) {
	t.Parallel()

	pool, err := NewPool(2)
	require.NoError(t, err)
	pool.AddItems(1, 2)

	run := func(ctx context.Context, id int, progress func(int64)) (domain.Artifact, error) {
		if id == 1 {
			panic("template exploded")
		}
		return domain.Artifact{}, nil
	}

	results := pool.Execute(context.Background(), run, nil, nil)

	require.Len(t, results, 2)
	require.Error(t, results[0].Err)
	assert.Contains(t, results[0].Err.Error(), "panicked")
	assert.NoError(t, results[1].Err)
}

func TestPool_Execute_EmptyQueue(t *testing.T) {
	t.Parallel()

	pool, err := NewPool(2)
	require.NoError(t, err)

	run := func(ctx context.Context, id int, progress func(int64)) (domain.Artifact, error) {
		return domain.Artifact{}, nil
	}

	results := pool.Execute(context.Background(), run, nil, nil)
	assert.Empty(t, results)
}

func TestPool_Execute_Callbacks(t *testing.T) {
	t.Parallel()

	pool, err := NewPool(2)
	require.NoError(t, err)
	pool.AddItems(1, 2, 3)

	var mu sync.Mutex
	progressed := make(map[int]int64)
	completed := make([]int, 0, 3)

	run := func(ctx context.Context, id int, progress func(int64)) (domain.Artifact, error) {
		progress(int64(id) * 100)
		return domain.Artifact{SizeBytes: int64(id) * 100}, nil
	}

	onProgress := func(id int, sizeBytes int64) {
		mu.Lock()
		progressed[id] = sizeBytes
		mu.Unlock()
	}

	onComplete := func(res ItemResult) {
		mu.Lock()
		completed = append(completed, res.ID)
		mu.Unlock()
	}

	results := pool.Execute(context.Background(), run, onProgress, onComplete)

	require.Len(t, results, 3)
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, completed, 3)
	assert.Equal(t, int64(100), progressed[1])
	assert.Equal(t, int64(200), progressed[2])
	assert.Equal(t, int64(300), progressed[3])
}

func TestPool_Execute_WaitsForCompletionCallbacks(t *testing.T) {
	t.Parallel()

	pool, err := NewPool(3)
	require.NoError(t, err)
	pool.AddItems(1, 2, 3)

	release := make(chan struct{})
	var completions int32

	run := func(ctx context.Context, id int, progress func(int64)) (domain.Artifact, error) {
		return domain.Artifact{}, nil
	}
	onComplete := func(res ItemResult) {
		if res.ID == 1 {
			<-release
		}
		atomic.AddInt32(&completions, 1)
	}

	done := make(chan []ItemResult, 1)
	go func() {
		done <- pool.Execute(context.Background(), run, nil, onComplete)
	}()

	// Items 2 and 3 settle while item 1's completion callback is blocked.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&completions) == 2
	}, time.Second, time.Millisecond)

	select {
	case <-done:
		t.Fatal("Execute returned while a completion callback was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case results := <-done:
		require.Len(t, results, 3)
		assert.EqualValues(t, 3, atomic.LoadInt32(&completions))
	case <-time.After(time.Second):
		t.Fatal("Execute did not return after the callbacks finished")
	}
}

func TestPool_Stop_DrainsWithoutKilling(t *testing.T) {
	t.Parallel()

	const limit = 2
	pool, err := NewPool(limit)
	require.NoError(t, err)
	pool.AddItems(1, 2, 3, 4, 5)

	started := make(chan int, limit)
	release := make(chan struct{})
	var startedCount int64

	run := func(ctx context.Context, id int, progress func(int64)) (domain.Artifact, error) {
		atomic.AddInt64(&startedCount, 1)
		started <- id
		<-release
		return domain.Artifact{}, nil
	}

	resultsCh := make(chan []ItemResult, 1)
	go func() {
		resultsCh <- pool.Execute(context.Background(), run, nil, nil)
	}()

	// Wait until both slots are occupied, then stop the pool and let the
	// in-flight items finish.
	for i := 0; i < limit; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for items to start")
		}
	}
	pool.Stop()
	close(release)

	var results []ItemResult
	select {
	case results = <-resultsCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Execute to return after Stop")
	}

	assert.Len(t, results, limit, "only the in-flight items should have results")
	assert.Equal(t, int64(limit), atomic.LoadInt64(&startedCount),
		"no item may start after Stop")
	for _, res := range results {
		assert.NoError(t, res.Err, "in-flight items finish normally")
	}
}

func TestPool_AddItems_AfterStopDropped(t *testing.T) {
	t.Parallel()

	pool, err := NewPool(1)
	require.NoError(t, err)
	pool.Stop()
	pool.AddItems(1, 2, 3)

	run := func(ctx context.Context, id int, progress func(int64)) (domain.Artifact, error) {
		return domain.Artifact{}, nil
	}

	results := pool.Execute(context.Background(), run, nil, nil)
	assert.Empty(t, results)
}
