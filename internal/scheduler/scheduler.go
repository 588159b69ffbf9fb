// Package scheduler provides a retrying background task runner: delayed
// enqueue, bounded or unbounded retries with backoff, and pollable task
// handles. Tasks run on a fixed worker pool; ordering between tasks is not
// guaranteed beyond their scheduled times.
package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sy264115809/techshow/internal/logger"
	"github.com/sy264115809/techshow/internal/telemetry"
)

// Common errors
var (
	ErrSchedulerStopped = errors.New("scheduler has been stopped")
)

// handleRetention is how long a finished task stays queryable via Lookup
// before its handle is dropped from the registry
const handleRetention = 10 * time.Minute

// TaskFunc is one task execution. Implementations classify their own
// failures into the returned Outcome.
type TaskFunc func() Outcome

// Options control when and how often a task runs
type Options struct {
	// Delay postpones the first execution
	Delay time.Duration
	// Backoff is the wait before a retry when the task itself did not
	// specify one; zero falls back to one second
	Backoff time.Duration
	// MaxAttempts bounds total executions; 0 means unbounded
	MaxAttempts int
}

type task struct {
	handle *Handle
	fn     TaskFunc
	opts   Options
}

// Scheduler runs background tasks on a worker pool
type Scheduler struct {
	workers int
	queue   chan *task

	handles   map[uuid.UUID]*Handle
	handlesMu sync.RWMutex
	retention time.Duration

	stopChan chan struct{}
	workerWg sync.WaitGroup
	timerWg  sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// New creates a scheduler with the given worker pool size and queue capacity
func New(workers, queueSize int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Scheduler{
		workers:   workers,
		queue:     make(chan *task, queueSize),
		handles:   make(map[uuid.UUID]*Handle),
		retention: handleRetention,
		stopChan:  make(chan struct{}),
	}
}

// Start launches the worker pool
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrSchedulerStopped
	}
	if s.started {
		return nil
	}
	s.started = true

	for i := 0; i < s.workers; i++ {
		s.workerWg.Add(1)
		go s.runWorker(i)
	}

	logger.With("scheduler").Info().
		Int("workers", s.workers).
		Int("queue_size", cap(s.queue)).
		Msg("Task scheduler started")

	return nil
}

// Stop shuts the scheduler down. Pending delayed tasks are abandoned;
// running tasks finish their current execution.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	s.mu.Unlock()

	close(s.stopChan)
	s.timerWg.Wait()
	if started {
		s.workerWg.Wait()
	}

	logger.With("scheduler").Info().Msg("Task scheduler stopped")
}

// Enqueue registers a task and schedules its first execution.
// The returned handle can be polled or waited on for the outcome.
func (s *Scheduler) Enqueue(name string, fn TaskFunc, opts Options) (*Handle, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrSchedulerStopped
	}
	s.mu.Unlock()

	handle := newHandle(name)

	s.handlesMu.Lock()
	s.handles[handle.id] = handle
	s.handlesMu.Unlock()

	telemetry.CountEnqueued()
	s.dispatch(&task{handle: handle, fn: fn, opts: opts}, opts.Delay)

	logger.With("scheduler").Debug().
		Str("task", name).
		Str("task_id", handle.id.String()).
		Dur("delay", opts.Delay).
		Int("max_attempts", opts.MaxAttempts).
		Msg("Task enqueued")

	return handle, nil
}

// Lookup returns the handle for a previously enqueued task id
func (s *Scheduler) Lookup(id uuid.UUID) (*Handle, bool) {
	s.handlesMu.RLock()
	defer s.handlesMu.RUnlock()
	handle, ok := s.handles[id]
	return handle, ok
}

// QueueDepth returns the number of tasks waiting for a worker
func (s *Scheduler) QueueDepth() int {
	return len(s.queue)
}

// dispatch places the task on the queue, after delay if one is given. A full
// queue never blocks the caller; the hand-off moves to a helper goroutine.
func (s *Scheduler) dispatch(t *task, delay time.Duration) {
	if delay <= 0 {
		select {
		case s.queue <- t:
			telemetry.SetQueueDepth(len(s.queue))
			return
		default:
		}
		s.timerWg.Add(1)
		go func() {
			defer s.timerWg.Done()
			s.push(t)
		}()
		return
	}

	s.timerWg.Add(1)
	go func() {
		defer s.timerWg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-s.stopChan:
		case <-timer.C:
			s.push(t)
		}
	}()
}

func (s *Scheduler) push(t *task) {
	select {
	case <-s.stopChan:
	case s.queue <- t:
		telemetry.SetQueueDepth(len(s.queue))
	}
}

func (s *Scheduler) runWorker(id int) {
	defer s.workerWg.Done()

	log := logger.With("scheduler").With().Int("worker", id).Logger()
	log.Debug().Msg("Worker started")

	for {
		select {
		case <-s.stopChan:
			log.Debug().Msg("Worker stopping")
			return
		case t := <-s.queue:
			telemetry.SetQueueDepth(len(s.queue))
			s.execute(t)
		}
	}
}

// execute runs one attempt and interprets the outcome
func (s *Scheduler) execute(t *task) {
	t.handle.markRunning()

	outcome := s.safeRun(t)

	log := logger.With("scheduler").With().
		Str("task", t.handle.name).
		Str("task_id", t.handle.id.String()).
		Int("attempt", t.handle.attemptCount()).
		Logger()

	switch outcome.kind {
	case outcomeSuccess:
		telemetry.CountSucceeded()
		t.handle.markSucceeded(outcome.value)
		s.retire(t.handle.id)
		log.Debug().Msg("Task succeeded")

	case outcomeRetry:
		if t.opts.MaxAttempts > 0 && t.handle.attemptCount() >= t.opts.MaxAttempts {
			err := outcome.err
			if err == nil {
				err = fmt.Errorf("task %s: retry budget of %d attempts exhausted", t.handle.name, t.opts.MaxAttempts)
			}
			telemetry.CountFailed()
			t.handle.markFailed(err)
			s.retire(t.handle.id)
			log.Warn().Err(err).Msg("Task gave up after exhausting retries")
			return
		}

		delay := outcome.delay
		if delay <= 0 {
			delay = t.opts.Backoff
		}
		if delay <= 0 {
			delay = time.Second
		}

		telemetry.CountRetry()
		t.handle.markPending(outcome.err)
		s.dispatch(t, delay)
		log.Debug().Dur("retry_in", delay).Err(outcome.err).Msg("Task rescheduled")

	case outcomeFailure:
		telemetry.CountFailed()
		t.handle.markFailed(outcome.err)
		s.retire(t.handle.id)
		log.Warn().Err(outcome.err).Msg("Task failed permanently")
	}
}

// retire drops a finished handle from the registry once its retention window
// passes, so a long-lived process does not keep one entry per task forever
func (s *Scheduler) retire(id uuid.UUID) {
	time.AfterFunc(s.retention, func() {
		s.handlesMu.Lock()
		delete(s.handles, id)
		s.handlesMu.Unlock()
	})
}

// safeRun shields the worker from panicking tasks
func (s *Scheduler) safeRun(t *task) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = PermanentFailure(fmt.Errorf("task %s panicked: %v", t.handle.name, r))
		}
	}()
	return t.fn()
}
