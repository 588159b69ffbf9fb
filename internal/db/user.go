package db

import (
	"context"
	"fmt"
	"time"

	"github.com/sy264115809/techshow/internal/models"
)

// UserRepository handles database operations for users
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user into the database
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	result := r.db.WithContext(ctx).Create(user)
	if result.Error != nil {
		return fmt.Errorf("failed to create user: %w", MapGormError(result.Error))
	}
	return nil
}

// GetByID retrieves a user by id
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&user)
	if result.Error != nil {
		return nil, MapGormError(result.Error)
	}
	return &user, nil
}

// SetStreamID records the stream handle allocated for the user
func (r *UserRepository) SetStreamID(ctx context.Context, id int64, streamID string) error {
	return r.updateField(ctx, id, "stream_id", streamID)
}

// SetStreamStatus updates the derived stream availability projection
func (r *UserRepository) SetStreamStatus(ctx context.Context, id int64, status models.StreamStatus) error {
	return r.updateField(ctx, id, "stream_status", status)
}

// SetLastMessageAt records the last chat message time for throttling
func (r *UserRepository) SetLastMessageAt(ctx context.Context, id int64, at time.Time) error {
	return r.updateField(ctx, id, "last_message_at", at)
}

func (r *UserRepository) updateField(ctx context.Context, id int64, column string, value interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn(column, value)
	if result.Error != nil {
		return fmt.Errorf("failed to update user %s: %w", column, MapGormError(result.Error))
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
