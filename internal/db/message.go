package db

import (
	"context"
	"fmt"

	"github.com/sy264115809/techshow/internal/models"
)

// MessageRepository handles database operations for channel messages
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a new message
func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	result := r.db.WithContext(ctx).Create(message)
	if result.Error != nil {
		return fmt.Errorf("failed to create message: %w", MapGormError(result.Error))
	}
	return nil
}

// ListWindow retrieves a channel's messages whose offset falls inside
// [start, start+span], newest first. limit <= 0 means no limit.
func (r *MessageRepository) ListWindow(ctx context.Context, channelID, start, span int64, limit int) ([]*models.Message, error) {
	q := r.db.WithContext(ctx).
		Where("channel_id = ? AND offset_seconds >= ? AND offset_seconds <= ?", channelID, start, start+span).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var messages []*models.Message
	result := q.Find(&messages)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list messages: %w", MapGormError(result.Error))
	}
	return messages, nil
}

// ComplaintRepository handles database operations for complaints
type ComplaintRepository struct {
	db *DB
}

// NewComplaintRepository creates a new complaint repository
func NewComplaintRepository(db *DB) *ComplaintRepository {
	return &ComplaintRepository{db: db}
}

// Create records a complaint
func (r *ComplaintRepository) Create(ctx context.Context, complaint *models.Complaint) error {
	result := r.db.WithContext(ctx).Create(complaint)
	if result.Error != nil {
		return fmt.Errorf("failed to create complaint: %w", MapGormError(result.Error))
	}
	return nil
}
