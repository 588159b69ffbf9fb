package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/sy264115809/techshow/internal/models"
)

// ChannelRepository handles database operations for channels
type ChannelRepository struct {
	db *DB
}

// NewChannelRepository creates a new channel repository
func NewChannelRepository(db *DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

// Create inserts a new channel into the database
func (r *ChannelRepository) Create(ctx context.Context, channel *models.Channel) error {
	result := r.db.WithContext(ctx).Create(channel)
	if result.Error != nil {
		return fmt.Errorf("failed to create channel: %w", MapGormError(result.Error))
	}
	return nil
}

// GetByID retrieves a channel by its id
func (r *ChannelRepository) GetByID(ctx context.Context, id int64) (*models.Channel, error) {
	var channel models.Channel
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&channel)
	if result.Error != nil {
		return nil, MapGormError(result.Error)
	}
	return &channel, nil
}

// ListByStatus retrieves channels in the given status, optionally filtered
// by owner, newest activity first.
func (r *ChannelRepository) ListByStatus(ctx context.Context, status models.ChannelStatus, ownerID *int64, limit, offset int) ([]*models.Channel, error) {
	q := r.db.WithContext(ctx).Where("status = ?", status)
	if ownerID != nil {
		q = q.Where("owner_id = ?", *ownerID)
	}
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	var channels []*models.Channel
	result := q.Order("created_at DESC").Find(&channels)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list channels: %w", MapGormError(result.Error))
	}
	return channels, nil
}

// ListByOwner retrieves all channels belonging to an owner, newest first
func (r *ChannelRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*models.Channel, error) {
	var channels []*models.Channel
	result := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&channels)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list channels: %w", MapGormError(result.Error))
	}
	return channels, nil
}

// CountLive counts channels that have not stopped yet (used to enforce the
// maximum concurrent live channel setting)
func (r *ChannelRepository) CountLive(ctx context.Context) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("stopped_at IS NULL AND status IN ?", []models.ChannelStatus{models.StatusNew, models.StatusPublishing}).
		Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count live channels: %w", MapGormError(result.Error))
	}
	return count, nil
}

// FindByStreamAndStatus retrieves channels on a stream in the given status
func (r *ChannelRepository) FindByStreamAndStatus(ctx context.Context, streamID string, status models.ChannelStatus) ([]*models.Channel, error) {
	var channels []*models.Channel
	result := r.db.WithContext(ctx).
		Where("stream_id = ? AND status = ?", streamID, status).
		Find(&channels)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to find channels by stream: %w", MapGormError(result.Error))
	}
	return channels, nil
}

// HasNewerOnStream reports whether a channel newer than the given one exists
// on the same stream. Used by the resume guard: a stale session may not
// reclaim a stream another session has since been created on.
func (r *ChannelRepository) HasNewerOnStream(ctx context.Context, streamID string, channelID int64) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("stream_id = ? AND id > ?", streamID, channelID).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("failed to check newer channels: %w", MapGormError(result.Error))
	}
	return count > 0, nil
}

// DeleteStaleNew removes an owner's channels still in the new status.
// Creating a channel supersedes any prior unstarted ones.
func (r *ChannelRepository) DeleteStaleNew(ctx context.Context, ownerID int64) error {
	result := r.db.WithContext(ctx).
		Where("owner_id = ? AND status = ?", ownerID, models.StatusNew).
		Delete(&models.Channel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete stale channels: %w", MapGormError(result.Error))
	}
	return nil
}

// UpdateWhereStatus applies fields to the channel only if its status still
// matches expected. Returns false when the row did not match, which callers
// treat as a benign race (guard failure), not an error.
func (r *ChannelRepository) UpdateWhereStatus(ctx context.Context, id int64, expected models.ChannelStatus, fields map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(fields)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update channel: %w", MapGormError(result.Error))
	}
	return result.RowsAffected > 0, nil
}

// WithChannelLock runs fn inside a transaction with the channel row re-read
// within it. SQLite serializes writers, so the transactional re-read is the
// row-level lock the reconciliation step requires.
func (r *ChannelRepository) WithChannelLock(ctx context.Context, id int64, fn func(tx *gorm.DB, channel *models.Channel) error) error {
	return r.db.WithTransaction(ctx, func(tx *gorm.DB) error {
		var channel models.Channel
		if err := tx.Where("id = ?", id).First(&channel).Error; err != nil {
			return MapGormError(err)
		}
		return fn(tx, &channel)
	})
}

// Delete deletes a channel by its id
func (r *ChannelRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Channel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete channel: %w", MapGormError(result.Error))
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementVisits bumps the visit counter
func (r *ChannelRepository) IncrementVisits(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("id = ?", id).
		UpdateColumn("visit_count", gorm.Expr("visit_count + 1"))
	if result.Error != nil {
		return fmt.Errorf("failed to increment visits: %w", MapGormError(result.Error))
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddLikes adjusts the like counter by delta (may be negative)
func (r *ChannelRepository) AddLikes(ctx context.Context, id int64, delta int) error {
	result := r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("id = ?", id).
		UpdateColumn("like_count", gorm.Expr("like_count + ?", delta))
	if result.Error != nil {
		return fmt.Errorf("failed to update likes: %w", MapGormError(result.Error))
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
