package models

import (
	"time"
)

// Channel represents one live-broadcast session owned by a user.
// The same stream may back many channels of the same owner sequentially,
// but at most one of them is ever in publishing status.
type Channel struct {
	ID          int64         `json:"id" gorm:"primaryKey;autoIncrement;column:id"`
	Title       string        `json:"title" gorm:"type:text;not null;column:title" validate:"required,min=1,max=32"`
	Thumbnail   *string       `json:"thumbnail,omitempty" gorm:"type:text;column:thumbnail"`
	Desc        *string       `json:"desc,omitempty" gorm:"type:text;column:description"`
	OwnerID     int64         `json:"owner_id" gorm:"not null;index;column:owner_id"`
	StreamID    string        `json:"stream_id" gorm:"type:text;not null;index;column:stream_id"`
	Status      ChannelStatus `json:"status" gorm:"type:text;not null;default:new;index;column:status"`
	Quality     *int          `json:"quality,omitempty" gorm:"column:quality"`
	Orientation *int          `json:"orientation,omitempty" gorm:"column:orientation"`
	Duration    *int64        `json:"duration,omitempty" gorm:"column:duration"` // seconds, set by reconciliation
	VisitCount  int64         `json:"visit_count" gorm:"not null;default:0;column:visit_count"`
	LikeCount   int64         `json:"like_count" gorm:"not null;default:0;column:like_count"`
	StartedAt   *time.Time    `json:"started_at,omitempty" gorm:"column:started_at"`
	StoppedAt   *time.Time    `json:"stopped_at,omitempty" gorm:"column:stopped_at"`
	CreatedAt   time.Time     `json:"created_at" gorm:"default:CURRENT_TIMESTAMP;column:created_at"`
}

// NewChannel creates a channel bound to its owner's stream
func NewChannel(title string, ownerID int64, streamID string) *Channel {
	return &Channel{
		Title:     title,
		OwnerID:   ownerID,
		StreamID:  streamID,
		Status:    StatusNew,
		CreatedAt: time.Now().UTC(),
	}
}

// IsPublishing reports whether the channel is currently live
func (c *Channel) IsPublishing() bool {
	return c.Status == StatusPublishing
}

// IsPublished reports whether the channel has a finalized recording
func (c *Channel) IsPublished() bool {
	return c.Status == StatusPublished
}

// Accessible reports whether viewers may access the channel
func (c *Channel) Accessible() bool {
	return c.Status == StatusPublishing || c.Status == StatusPublished
}
