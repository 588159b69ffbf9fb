package scheduler

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// TaskState represents the current state of a scheduled task
type TaskState string

// Task state constants
const (
	TaskPending   TaskState = "pending" // waiting for its delay or a free worker
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
)

// Terminal reports whether the state is final
func (s TaskState) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// TaskStatus is a point-in-time snapshot of a task
type TaskStatus struct {
	ID       uuid.UUID   `json:"id"`
	Name     string      `json:"name"`
	State    TaskState   `json:"state"`
	Attempts int         `json:"attempts"`
	Value    interface{} `json:"value,omitempty"`
	Err      string      `json:"error,omitempty"`
}

// Handle is the pollable tracker for an enqueued task
type Handle struct {
	id   uuid.UUID
	name string

	mu       sync.Mutex
	state    TaskState
	attempts int
	value    interface{}
	err      error
	done     chan struct{}
}

func newHandle(name string) *Handle {
	return &Handle{
		id:    uuid.New(),
		name:  name,
		state: TaskPending,
		done:  make(chan struct{}),
	}
}

// ID returns the task id
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// Name returns the task name
func (h *Handle) Name() string {
	return h.name
}

// Status returns a snapshot of the task's state and result
func (h *Handle) Status() TaskStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	status := TaskStatus{
		ID:       h.id,
		Name:     h.name,
		State:    h.state,
		Attempts: h.attempts,
		Value:    h.value,
	}
	if h.err != nil {
		status.Err = h.err.Error()
	}
	return status
}

// Done returns a channel closed once the task reaches a terminal state
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task terminates or ctx is cancelled
func (h *Handle) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value, h.err
}

func (h *Handle) markRunning() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = TaskRunning
	h.attempts++
}

func (h *Handle) markPending(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = TaskPending
	h.err = err
}

func (h *Handle) markSucceeded(value interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = TaskSucceeded
	h.value = value
	h.err = nil
	close(h.done)
}

func (h *Handle) markFailed(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = TaskFailed
	h.err = err
	close(h.done)
}

func (h *Handle) attemptCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts
}
