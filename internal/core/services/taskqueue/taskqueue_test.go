package taskqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackgroundQueueRunsJobs(t *testing.T) {
	q := NewBackgroundTaskQueue(context.Background(), 4)

	var done atomic.Int64
	for i := 0; i < 20; i++ {
		ok := q.Enqueue(func(ctx context.Context) error {
			done.Add(1)
			return nil
		})
		assert.True(t, ok)
	}

	q.Stop()
	assert.Equal(t, int64(20), done.Load())
}

func TestBackgroundQueueSurvivesErrorsAndPanics(t *testing.T) {
	q := NewBackgroundTaskQueue(context.Background(), 1)

	var after atomic.Bool
	q.Enqueue(func(ctx context.Context) error { return errors.New("boom") })
	q.Enqueue(func(ctx context.Context) error { panic("worse") })
	q.Enqueue(func(ctx context.Context) error {
		after.Store(true)
		return nil
	})

	q.Stop()
	assert.True(t, after.Load(), "worker died before draining the queue")
}

func TestBackgroundQueueStopDrains(t *testing.T) {
	q := NewBackgroundTaskQueue(context.Background(), 2)

	var done atomic.Int64
	for i := 0; i < 10; i++ {
		q.Enqueue(func(ctx context.Context) error {
			time.Sleep(5 * time.Millisecond)
			done.Add(1)
			return nil
		})
	}
	q.Stop()
	assert.Equal(t, int64(10), done.Load())
	assert.False(t, q.Enqueue(func(ctx context.Context) error { return nil }))
}

func TestPriorityOrdering(t *testing.T) {
	// Single worker so execution order equals dequeue order.
	q := NewPriorityTaskQueue(context.Background(), 1)

	var mu sync.Mutex
	var order []int

	// Occupy the worker so the rest queue up and are sorted together.
	gate := make(chan struct{})
	q.Enqueue(0, func(ctx context.Context) error {
		<-gate
		return nil
	})

	record := func(n int) Job {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			return nil
		}
	}
	q.Enqueue(5, record(5))
	q.Enqueue(1, record(1))
	q.Enqueue(3, record(3))
	q.Enqueue(1, record(100)) // same priority as the earlier 1: runs after it

	close(gate)
	q.Stop()

	assert.Equal(t, []int{1, 100, 3, 5}, order)
}

func TestPriorityQueueStopDrains(t *testing.T) {
	q := NewPriorityTaskQueue(context.Background(), 2)

	var done atomic.Int64
	for i := 0; i < 10; i++ {
		q.Enqueue(i%3, func(ctx context.Context) error {
			done.Add(1)
			return nil
		})
	}
	q.Stop()
	assert.Equal(t, int64(10), done.Load())
	assert.False(t, q.Enqueue(0, func(ctx context.Context) error { return nil }))
}
