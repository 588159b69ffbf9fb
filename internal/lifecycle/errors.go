package lifecycle

import (
	"errors"
	"fmt"

	"github.com/sy264115809/techshow/internal/models"
)

// Custom lifecycle service errors
var (
	// ErrChannelNotFound indicates the requested channel does not exist
	ErrChannelNotFound = errors.New("channel not found")

	// ErrUserNotFound indicates the requested user does not exist
	ErrUserNotFound = errors.New("user not found")

	// ErrChannelNotAccessible indicates the channel is not in a watchable state
	ErrChannelNotAccessible = errors.New("channel is not accessible")

	// ErrTooManyLiveChannels indicates the owner's live channel quota is exhausted
	ErrTooManyLiveChannels = errors.New("too many live channels")

	// ErrMessageThrottled indicates the user is sending messages too quickly
	ErrMessageThrottled = errors.New("messages sent too frequently")

	// ErrStreamBusy indicates the per-stream lock could not be acquired
	ErrStreamBusy = errors.New("stream is busy with another publish")

	// ErrNotChannelOwner indicates the caller does not own the channel
	ErrNotChannelOwner = errors.New("caller is not the channel owner")

	// ErrMessageOffsetRequired indicates a replay comment is missing its timeline position
	ErrMessageOffsetRequired = errors.New("message offset required on a finished channel")
)

// PreconditionError reports a transition rejected by a status guard. The
// channel's observed status is carried so callers can report what state the
// channel was actually in.
type PreconditionError struct {
	Op        string
	ChannelID int64
	Status    models.ChannelStatus
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: channel %d is %s", e.Op, e.ChannelID, e.Status)
}

// NewPreconditionError creates a PreconditionError for a rejected transition
func NewPreconditionError(op string, channelID int64, status models.ChannelStatus) error {
	return &PreconditionError{Op: op, ChannelID: channelID, Status: status}
}

// IsPreconditionFailed checks if the error is a rejected-transition error
func IsPreconditionFailed(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// IsChannelNotFound checks if the error is a channel not found error
func IsChannelNotFound(err error) bool {
	return errors.Is(err, ErrChannelNotFound)
}

// IsUserNotFound checks if the error is a user not found error
func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// IsNotAccessible checks if the error is a channel-not-accessible error
func IsNotAccessible(err error) bool {
	return errors.Is(err, ErrChannelNotAccessible)
}

// IsTooManyLiveChannels checks if the error is a live-channel quota error
func IsTooManyLiveChannels(err error) bool {
	return errors.Is(err, ErrTooManyLiveChannels)
}

// IsMessageThrottled checks if the error is a message throttle error
func IsMessageThrottled(err error) bool {
	return errors.Is(err, ErrMessageThrottled)
}

// IsStreamBusy checks if the error is a stream lock contention error
func IsStreamBusy(err error) bool {
	return errors.Is(err, ErrStreamBusy)
}

// IsNotChannelOwner checks if the error is an ownership error
func IsNotChannelOwner(err error) bool {
	return errors.Is(err, ErrNotChannelOwner)
}

// IsMessageOffsetRequired checks if the error is a missing replay-offset error
func IsMessageOffsetRequired(err error) bool {
	return errors.Is(err, ErrMessageOffsetRequired)
}
