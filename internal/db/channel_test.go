package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sy264115809/techshow/internal/models"
)

// setupTestRepos creates a repository collection backed by a temp database
func setupTestRepos(t *testing.T) *Repositories {
	tmpFile := filepath.Join(t.TempDir(), "test.db")
	database, err := New(tmpFile)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	sqlDB, err := database.GetSQLDB()
	require.NoError(t, err)
	require.NoError(t, RunMigrations(sqlDB, "file://../../migrations"))

	return NewRepositories(database)
}

func createTestUser(t *testing.T, repos *Repositories) *models.User {
	user := &models.User{Nickname: "tester", CreatedAt: time.Now().UTC()}
	require.NoError(t, repos.Users.Create(context.Background(), user))
	return user
}

func createTestChannel(t *testing.T, repos *Repositories, ownerID int64, streamID string) *models.Channel {
	channel := models.NewChannel("test show", ownerID, streamID)
	require.NoError(t, repos.Channels.Create(context.Background(), channel))
	return channel
}

func TestChannelCreateAndGet(t *testing.T) {
	repos := setupTestRepos(t)
	user := createTestUser(t, repos)
	channel := createTestChannel(t, repos, user.ID, "stream-1")

	got, err := repos.Channels.GetByID(context.Background(), channel.ID)
	require.NoError(t, err)
	assert.Equal(t, channel.ID, got.ID)
	assert.Equal(t, models.StatusNew, got.Status)
	assert.Equal(t, "stream-1", got.StreamID)
}

func TestChannelGetByIDNotFound(t *testing.T) {
	repos := setupTestRepos(t)

	_, err := repos.Channels.GetByID(context.Background(), 9999)
	assert.True(t, IsNotFound(err))
}

func TestUpdateWhereStatus(t *testing.T) {
	repos := setupTestRepos(t)
	user := createTestUser(t, repos)
	channel := createTestChannel(t, repos, user.ID, "stream-1")
	ctx := context.Background()

	// Guard matches: the update applies
	ok, err := repos.Channels.UpdateWhereStatus(ctx, channel.ID, models.StatusNew, map[string]interface{}{
		"status":     models.StatusPublishing,
		"started_at": time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repos.Channels.GetByID(ctx, channel.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublishing, got.Status)
	assert.NotNil(t, got.StartedAt)

	// Guard no longer matches: no row is touched
	ok, err = repos.Channels.UpdateWhereStatus(ctx, channel.ID, models.StatusNew, map[string]interface{}{
		"status": models.StatusCalculating,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err = repos.Channels.GetByID(ctx, channel.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublishing, got.Status)
}

func TestDeleteStaleNew(t *testing.T) {
	repos := setupTestRepos(t)
	user := createTestUser(t, repos)
	ctx := context.Background()

	stale := createTestChannel(t, repos, user.ID, "stream-1")
	live := createTestChannel(t, repos, user.ID, "stream-1")
	_, err := repos.Channels.UpdateWhereStatus(ctx, live.ID, models.StatusNew, map[string]interface{}{
		"status": models.StatusPublishing,
	})
	require.NoError(t, err)

	require.NoError(t, repos.Channels.DeleteStaleNew(ctx, user.ID))

	_, err = repos.Channels.GetByID(ctx, stale.ID)
	assert.True(t, IsNotFound(err))

	// Channels already past new survive
	_, err = repos.Channels.GetByID(ctx, live.ID)
	assert.NoError(t, err)
}

func TestHasNewerOnStream(t *testing.T) {
	repos := setupTestRepos(t)
	user := createTestUser(t, repos)
	ctx := context.Background()

	older := createTestChannel(t, repos, user.ID, "stream-1")
	newer := createTestChannel(t, repos, user.ID, "stream-1")
	other := createTestChannel(t, repos, user.ID, "stream-2")

	hasNewer, err := repos.Channels.HasNewerOnStream(ctx, "stream-1", older.ID)
	require.NoError(t, err)
	assert.True(t, hasNewer)

	hasNewer, err = repos.Channels.HasNewerOnStream(ctx, "stream-1", newer.ID)
	require.NoError(t, err)
	assert.False(t, hasNewer)

	hasNewer, err = repos.Channels.HasNewerOnStream(ctx, "stream-2", other.ID)
	require.NoError(t, err)
	assert.False(t, hasNewer)
}

func TestCountLive(t *testing.T) {
	repos := setupTestRepos(t)
	user := createTestUser(t, repos)
	ctx := context.Background()

	count, err := repos.Channels.CountLive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	createTestChannel(t, repos, user.ID, "stream-1")
	published := createTestChannel(t, repos, user.ID, "stream-1")
	_, err = repos.Channels.UpdateWhereStatus(ctx, published.ID, models.StatusNew, map[string]interface{}{
		"status":     models.StatusPublished,
		"stopped_at": time.Now().UTC(),
	})
	require.NoError(t, err)

	count, err = repos.Channels.CountLive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestFindByStreamAndStatus(t *testing.T) {
	repos := setupTestRepos(t)
	user := createTestUser(t, repos)
	ctx := context.Background()

	channel := createTestChannel(t, repos, user.ID, "stream-1")
	_, err := repos.Channels.UpdateWhereStatus(ctx, channel.ID, models.StatusNew, map[string]interface{}{
		"status": models.StatusPublishing,
	})
	require.NoError(t, err)
	createTestChannel(t, repos, user.ID, "stream-1") // stays new

	found, err := repos.Channels.FindByStreamAndStatus(ctx, "stream-1", models.StatusPublishing)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, channel.ID, found[0].ID)
}

func TestIncrementVisitsAndLikes(t *testing.T) {
	repos := setupTestRepos(t)
	user := createTestUser(t, repos)
	channel := createTestChannel(t, repos, user.ID, "stream-1")
	ctx := context.Background()

	require.NoError(t, repos.Channels.IncrementVisits(ctx, channel.ID))
	require.NoError(t, repos.Channels.IncrementVisits(ctx, channel.ID))
	require.NoError(t, repos.Channels.AddLikes(ctx, channel.ID, 1))
	require.NoError(t, repos.Channels.AddLikes(ctx, channel.ID, -1))
	require.NoError(t, repos.Channels.AddLikes(ctx, channel.ID, 1))

	got, err := repos.Channels.GetByID(ctx, channel.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.VisitCount)
	assert.Equal(t, int64(1), got.LikeCount)

	assert.True(t, IsNotFound(repos.Channels.IncrementVisits(ctx, 9999)))
}

func TestWithChannelLock(t *testing.T) {
	repos := setupTestRepos(t)
	user := createTestUser(t, repos)
	channel := createTestChannel(t, repos, user.ID, "stream-1")
	ctx := context.Background()

	err := repos.Channels.WithChannelLock(ctx, channel.ID, func(tx *gorm.DB, ch *models.Channel) error {
		assert.Equal(t, channel.ID, ch.ID)
		return tx.Model(&models.Channel{}).Where("id = ?", ch.ID).
			UpdateColumn("title", "renamed inside tx").Error
	})
	require.NoError(t, err)

	got, err := repos.Channels.GetByID(ctx, channel.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed inside tx", got.Title)

	err = repos.Channels.WithChannelLock(ctx, 9999, func(tx *gorm.DB, ch *models.Channel) error {
		t.Fatal("callback must not run for a missing channel")
		return nil
	})
	assert.True(t, IsNotFound(err))
}
