// Package gateway abstracts the external live-stream and chat-room providers.
// All network calls can fail; errors carry a transient/permanent classification
// that the task scheduler uses to decide between retrying and giving up.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Error is a classified failure from an external provider
type Error struct {
	Op         string // logical operation, e.g. "chatroom.create"
	StatusCode int    // HTTP status when available, 0 otherwise
	Transient  bool
	Err        error
}

// Error implements the error interface
func (e *Error) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway %s: %s failure (status %d): %v", e.Op, kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s: %s failure: %v", e.Op, kind, e.Err)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// NewTransient wraps err as a retryable gateway failure
func NewTransient(op string, err error) *Error {
	return &Error{Op: op, Transient: true, Err: err}
}

// NewPermanent wraps err as a non-retryable gateway failure
func NewPermanent(op string, err error) *Error {
	return &Error{Op: op, Transient: false, Err: err}
}

// IsTransient reports whether err is a gateway failure worth retrying
func IsTransient(err error) bool {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Transient
	}
	return false
}

// classifyHTTP turns an HTTP round-trip outcome into a classified Error.
// Network errors, timeouts, 429 and 5xx responses are transient; any other
// non-2xx response means the provider rejected the request.
func classifyHTTP(op string, statusCode int, err error) *Error {
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return &Error{Op: op, Transient: true, Err: err}
		}
		// Any other transport error is assumed recoverable
		return &Error{Op: op, Transient: true, Err: err}
	}

	transient := statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError
	return &Error{
		Op:         op,
		StatusCode: statusCode,
		Transient:  transient,
		Err:        fmt.Errorf("unexpected status %d", statusCode),
	}
}
