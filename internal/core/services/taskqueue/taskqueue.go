package taskqueue

import (
	"container/heap"
	"context"
	"log/slog"
	"runtime"
	"sync"
)

// Job is one unit of background work.
type Job func(ctx context.Context) error

// BackgroundTaskQueue drains enqueued jobs with a fixed pool of workers.
// Job errors and panics are logged and swallowed; the worker keeps going.
type BackgroundTaskQueue struct {
	jobs   chan Job
	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
}

// NewBackgroundTaskQueue starts workers goroutines draining the queue.
// workers <= 0 selects the CPU count.
func NewBackgroundTaskQueue(ctx context.Context, workers int) *BackgroundTaskQueue {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(ctx)
	q := &BackgroundTaskQueue{
		jobs:   make(chan Job, 256),
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	return q
}

// Enqueue submits a job. Returns false once the queue is stopped.
func (q *BackgroundTaskQueue) Enqueue(job Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return false
	}
	q.jobs <- job
	return true
}

// Stop drains the queue, then cancels the workers and waits for them.
func (q *BackgroundTaskQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
	q.cancel()
}

func (q *BackgroundTaskQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for job := range q.jobs {
		runJob(ctx, job)
	}
}

func runJob(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("background job panicked", "panic", r)
		}
	}()
	if err := job(ctx); err != nil {
		slog.Warn("background job failed", "error", err)
	}
}

// prioritized is one queued job with its ordering key. seq breaks priority
// ties so equal-priority jobs run FIFO.
type prioritized struct {
	priority int
	seq      uint64
	job      Job
}

type jobHeap []prioritized

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h jobHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x any)        { *h = append(*h, x.(prioritized)) }
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// PriorityTaskQueue runs jobs ordered by priority; lower numeric priority
// runs first. Semantics otherwise match BackgroundTaskQueue.
type PriorityTaskQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	heap    jobHeap
	seq     uint64
	stopped bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPriorityTaskQueue starts workers goroutines draining the priority heap.
func NewPriorityTaskQueue(ctx context.Context, workers int) *PriorityTaskQueue {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(ctx)
	q := &PriorityTaskQueue{cancel: cancel}
	q.cond = sync.NewCond(&q.mu)
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	return q
}

// Enqueue submits a job with the given priority. Returns false once stopped.
func (q *PriorityTaskQueue) Enqueue(priority int, job Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return false
	}
	q.seq++
	heap.Push(&q.heap, prioritized{priority: priority, seq: q.seq, job: job})
	q.cond.Signal()
	return true
}

// Stop drains the heap, then stops the workers and waits for them.
func (q *PriorityTaskQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.cond.Broadcast()
	q.mu.Unlock()

	q.wg.Wait()
	q.cancel()
}

func (q *PriorityTaskQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for len(q.heap) == 0 && !q.stopped {
			q.cond.Wait()
		}
		if len(q.heap) == 0 && q.stopped {
			q.mu.Unlock()
			return
		}
		item := heap.Pop(&q.heap).(prioritized)
		q.mu.Unlock()

		runJob(ctx, item.job)
	}
}
