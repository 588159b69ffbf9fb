package models

import (
	"time"
)

// User is the channel owner projection. Authentication lives outside this
// service; only the fields the lifecycle mutates are modeled here.
type User struct {
	ID            int64        `json:"id" gorm:"primaryKey;autoIncrement;column:id"`
	Nickname      string       `json:"nickname" gorm:"type:text;not null;column:nickname"`
	Avatar        *string      `json:"avatar,omitempty" gorm:"type:text;column:avatar"`
	StreamID      *string      `json:"stream_id,omitempty" gorm:"type:text;column:stream_id"`
	StreamStatus  StreamStatus `json:"stream_status" gorm:"type:text;not null;default:available;column:stream_status"`
	LastMessageAt *time.Time   `json:"last_message_at,omitempty" gorm:"column:last_message_at"`
	CreatedAt     time.Time    `json:"created_at" gorm:"default:CURRENT_TIMESTAMP;column:created_at"`
}
