// internal/fanout/fanout_test.go
package fanout

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGatherPreservesTaskOrder(t *testing.T) {
	tasks := []Task[string]{
		{Name: "slow", Run: func(ctx context.Context) (string, error) {
			time.Sleep(20 * time.Millisecond)
			return "slow-value", nil
		}},
		{Name: "fast", Run: func(ctx context.Context) (string, error) {
			return "fast-value", nil
		}},
	}

	results := Gather(context.Background(), tasks)

	assert.Len(t, results, 2)
	assert.Equal(t, "slow", results[0].Name)
	assert.Equal(t, "slow-value", results[0].Value)
	assert.Equal(t, "fast", results[1].Name)
	assert.Equal(t, "fast-value", results[1].Value)
}

func TestGatherCapturesFailurePerBranch(t *testing.T) {
	boom := errors.New("source unavailable")
	tasks := []Task[int]{
		{Name: "ok", Run: func(ctx context.Context) (int, error) { return 7, nil }},
		{Name: "bad", Run: func(ctx context.Context) (int, error) { return 0, boom }},
	}

	results := Gather(context.Background(), tasks)

	assert.True(t, results[0].Ok())
	assert.Equal(t, 7, results[0].Value)
	assert.False(t, results[1].Ok())
	assert.ErrorIs(t, results[1].Err, boom)
}

func TestGatherBoundedLimitsConcurrency(t *testing.T) {
	var active, peak int64

	tasks := make([]Task[struct{}], 8)
	for i := range tasks {
		tasks[i] = Task[struct{}]{
			Name: "task",
			Run: func(ctx context.Context) (struct{}, error) {
				now := atomic.AddInt64(&active, 1)
				for {
					p := atomic.LoadInt64(&peak)
					if now <= p || atomic.CompareAndSwapInt64(&peak, p, now) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt64(&active, -1)
				return struct{}{}, nil
			},
		}
	}

	Gather(context.Background(), tasks) // warm path, unbounded

	atomic.StoreInt64(&active, 0)
	atomic.StoreInt64(&peak, 0)
	GatherBounded(context.Background(), 2, tasks)

	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
}

func TestGatherBoundedRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// Either branch may win the single slot; the winner reports in and
	// holds it until released, the loser is left waiting to acquire.
	holding := make(chan struct{})
	release := make(chan struct{})
	hold := func(ctx context.Context) (int, error) {
		holding <- struct{}{}
		<-release
		return 1, nil
	}

	tasks := []Task[int]{
		{Name: "first", Run: hold},
		{Name: "second", Run: hold},
	}

	done := make(chan []Result[int], 1)
	go func() {
		done <- GatherBounded(ctx, 1, tasks)
	}()

	<-holding
	cancel()
	close(release)

	results := <-done

	// Exactly one branch ran; the other settled with the context error
	// instead of starting after cancellation.
	var ok, cancelled int
	for _, r := range results {
		if r.Ok() {
			ok++
			assert.Equal(t, 1, r.Value)
		} else {
			cancelled++
			assert.ErrorIs(t, r.Err, context.Canceled)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, cancelled)
}
