package scheduler

import (
	"time"
)

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeRetry
	outcomeFailure
)

// Outcome is the explicit result of one task execution. Tasks classify their
// own errors: transient conditions come back as RetryAfter, everything else
// either succeeds or fails permanently. The scheduler loop interprets the
// outcome; tasks never re-enqueue themselves directly.
type Outcome struct {
	kind  outcomeKind
	value interface{}
	delay time.Duration
	err   error
}

// Success completes the task with an optional result value
func Success(value interface{}) Outcome {
	return Outcome{kind: outcomeSuccess, value: value}
}

// RetryAfter asks the scheduler to run the task again after d.
// Used both for transient failures and for periodic polling loops.
func RetryAfter(d time.Duration) Outcome {
	return Outcome{kind: outcomeRetry, delay: d}
}

// RetryAfterErr is RetryAfter with the causing error recorded, so an
// exhausted retry budget surfaces the last failure.
func RetryAfterErr(d time.Duration, err error) Outcome {
	return Outcome{kind: outcomeRetry, delay: d, err: err}
}

// PermanentFailure terminates the task with err
func PermanentFailure(err error) Outcome {
	return Outcome{kind: outcomeFailure, err: err}
}
