package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/piwardrive/piwardrive/internal/telemetry"
)

// ErrBadInterval is returned when a job or widget is registered with a
// non-positive interval.
var ErrBadInterval = errors.New("interval must be positive")

// ErrDuplicateJob is returned when a job name is already registered.
var ErrDuplicateJob = errors.New("job name already registered")

// JobFunc is the unit of scheduled work.
type JobFunc func(ctx context.Context) error

// Widget is anything with a periodic Update method; the poll scheduler
// re-invokes it on its configured interval.
type Widget interface {
	Name() string
	UpdateInterval() time.Duration
	Update(ctx context.Context) error
}

// JobMetrics is the per-job execution snapshot exposed by Metrics.
type JobMetrics struct {
	NextRun      time.Time     `json:"next_run"`
	LastDuration time.Duration `json:"last_duration"`
	SuccessCount uint64        `json:"success_count"`
	ErrorCount   uint64        `json:"error_count"`
}

// job is the scheduler-internal state for one registered name.
type job struct {
	name     string
	interval time.Duration
	fn       JobFunc
	cancel   context.CancelFunc
	done     chan struct{}

	running atomic.Bool

	mu           sync.Mutex
	nextRun      time.Time
	lastDuration time.Duration
	successCount uint64
	errorCount   uint64
}

// Scheduler runs named jobs at fixed intervals. The next deadline is measured
// from the previous start, not the end of the work, so a long run does not
// drift the cadence. Ticks that fire while the previous run is still in
// progress are skipped.
type Scheduler struct {
	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup
}

func New() *Scheduler {
	return &Scheduler{jobs: make(map[string]*job)}
}

// Schedule registers fn under name and starts running it every interval.
func (s *Scheduler) Schedule(ctx context.Context, name string, interval time.Duration, fn JobFunc) error {
	if interval <= 0 {
		return ErrBadInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return ErrDuplicateJob
	}

	jctx, cancel := context.WithCancel(ctx)
	j := &job{
		name:     name,
		interval: interval,
		fn:       fn,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	s.jobs[name] = j

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(j.done)
		s.runLoop(jctx, j)
	}()
	return nil
}

// RegisterWidget schedules a widget's Update method under its own name.
func (s *Scheduler) RegisterWidget(ctx context.Context, w Widget) error {
	return s.Schedule(ctx, w.Name(), w.UpdateInterval(), w.Update)
}

func (s *Scheduler) runLoop(ctx context.Context, j *job) {
	for {
		start := time.Now()
		j.mu.Lock()
		j.nextRun = start.Add(j.interval)
		j.mu.Unlock()

		if j.running.CompareAndSwap(false, true) {
			s.runOnce(ctx, j)
			j.running.Store(false)
		} else {
			slog.Debug("scheduler tick skipped, previous run still active", "job", j.name)
		}

		// Deadline relative to the start of this run.
		sleep := j.interval - time.Since(start)
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j *job) {
	start := time.Now()
	err := safeRun(ctx, j.fn)
	elapsed := time.Since(start)

	j.mu.Lock()
	j.lastDuration = elapsed
	if err != nil {
		j.errorCount++
	} else {
		j.successCount++
	}
	j.mu.Unlock()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		telemetry.SchedulerRuns.WithLabelValues(j.name, "error").Inc()
		slog.Warn("scheduled job failed", "job", j.name, "error", err)
		return
	}
	telemetry.SchedulerRuns.WithLabelValues(j.name, "ok").Inc()
}

// safeRun isolates job panics so one bad job cannot take the process down.
func safeRun(ctx context.Context, fn JobFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return fn(ctx)
}

type panicError struct{ value any }

func (e *panicError) Error() string { return "job panicked" }

// Cancel stops one job and waits for any in-flight run to finish.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	if ok {
		delete(s.jobs, name)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	j.cancel()
	<-j.done
}

// CancelAll stops every job and waits for in-flight runs. Errors from the
// cancelled runs have already been logged and are suppressed.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	for _, j := range s.jobs {
		j.cancel()
	}
	s.jobs = make(map[string]*job)
	s.mu.Unlock()
	s.wg.Wait()
}

// Metrics returns the execution snapshot for every registered job.
func (s *Scheduler) Metrics() map[string]JobMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]JobMetrics, len(s.jobs))
	for name, j := range s.jobs {
		j.mu.Lock()
		out[name] = JobMetrics{
			NextRun:      j.nextRun,
			LastDuration: j.lastDuration,
			SuccessCount: j.successCount,
			ErrorCount:   j.errorCount,
		}
		j.mu.Unlock()
	}
	return out
}
