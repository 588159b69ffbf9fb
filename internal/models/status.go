package models

// ChannelStatus represents the lifecycle state of a broadcast channel
type ChannelStatus string

// Channel status constants
const (
	StatusNew         ChannelStatus = "new"         // allocated, not yet streaming
	StatusPublishing  ChannelStatus = "publishing"  // live
	StatusCalculating ChannelStatus = "calculating" // stream stopped, duration not yet finalized
	StatusPublished   ChannelStatus = "published"   // finalized, recording available
	StatusClosed      ChannelStatus = "closed"      // voluntarily retired by the owner
	StatusBanned      ChannelStatus = "banned"      // administratively disabled
)

// String returns the string representation of the channel status
func (s ChannelStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a known valid value
func (s ChannelStatus) IsValid() bool {
	switch s {
	case StatusNew, StatusPublishing, StatusCalculating, StatusPublished, StatusClosed, StatusBanned:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks if a transition from the current status to newStatus is valid.
// The table is the single source of truth for lifecycle edges; `disable` (ban)
// is the one transition allowed from any status and is checked separately.
func (s ChannelStatus) CanTransitionTo(newStatus ChannelStatus) bool {
	if newStatus == StatusBanned {
		// Admin ban is allowed from any status
		return true
	}
	switch s {
	case StatusNew:
		return newStatus == StatusPublishing
	case StatusPublishing:
		return newStatus == StatusCalculating
	case StatusCalculating:
		// Forward to published by reconciliation, or back to publishing on resume
		return newStatus == StatusPublished || newStatus == StatusPublishing
	case StatusPublished:
		return newStatus == StatusClosed || newStatus == StatusPublishing
	case StatusBanned:
		// Release by an operator
		return newStatus == StatusPublished
	case StatusClosed:
		return false
	default:
		return false
	}
}

// Terminal reports whether no spontaneous transition can leave this status
func (s ChannelStatus) Terminal() bool {
	return s == StatusClosed
}

// StreamStatus is the owner's derived stream availability projection
type StreamStatus string

// Stream status constants
const (
	StreamAvailable   StreamStatus = "available"
	StreamUnavailable StreamStatus = "unavailable"
)
