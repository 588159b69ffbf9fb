package models

import (
	"time"
)

// Message is a chat message attached to a channel. While the channel is
// publishing the message is also mirrored to the external chat room; for
// playback the offset locates it on the recording timeline.
type Message struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement;column:id"`
	ChannelID int64     `json:"channel_id" gorm:"not null;index;column:channel_id"`
	AuthorID  int64     `json:"author_id" gorm:"not null;column:author_id"`
	Content   string    `json:"content" gorm:"type:text;not null;column:content"`
	Offset    int64     `json:"offset" gorm:"not null;default:0;column:offset_seconds"` // seconds from startedAt
	CreatedAt time.Time `json:"created_at" gorm:"default:CURRENT_TIMESTAMP;column:created_at"`
}

// Complaint records a viewer report against a channel
type Complaint struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement;column:id"`
	ChannelID  int64     `json:"channel_id" gorm:"not null;index;column:channel_id"`
	ReporterID int64     `json:"reporter_id" gorm:"not null;column:reporter_id"`
	Reason     string    `json:"reason" gorm:"type:text;not null;column:reason"`
	CreatedAt  time.Time `json:"created_at" gorm:"default:CURRENT_TIMESTAMP;column:created_at"`
}
