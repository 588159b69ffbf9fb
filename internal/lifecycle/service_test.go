package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sy264115809/techshow/internal/models"
)

func TestCreateChannel_AllocatesStreamOnFirstUse(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()

	// User without a stream yet
	user := &models.User{Nickname: "fresh", CreatedAt: time.Now().UTC()}
	require.NoError(t, env.repos.Users.Create(ctx, user))

	channel, err := service.CreateChannel(ctx, user.ID, CreateChannelParams{Title: "first show"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, channel.Status)
	assert.NotEmpty(t, channel.StreamID)

	// The stream handle is persisted on the user
	got, err := env.repos.Users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StreamID)
	assert.Equal(t, channel.StreamID, *got.StreamID)

	// A second channel reuses it without another provider call
	second, err := service.CreateChannel(ctx, user.ID, CreateChannelParams{Title: "second show"})
	require.NoError(t, err)
	assert.Equal(t, channel.StreamID, second.StreamID)
	assert.Len(t, env.stream.created, 1)
}

func TestCreateChannel_SupersedesStaleNew(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")

	stale, err := service.CreateChannel(ctx, user.ID, CreateChannelParams{Title: "abandoned"})
	require.NoError(t, err)

	fresh, err := service.CreateChannel(ctx, user.ID, CreateChannelParams{Title: "actual"})
	require.NoError(t, err)

	_, err = service.GetChannel(ctx, stale.ID)
	assert.True(t, IsChannelNotFound(err))
	_, err = service.GetChannel(ctx, fresh.ID)
	assert.NoError(t, err)
}

func TestCreateChannel_UnknownUser(t *testing.T) {
	service, _ := setupTestService(t)

	_, err := service.CreateChannel(context.Background(), 9999, CreateChannelParams{Title: "ghost"})
	assert.True(t, IsUserNotFound(err))
}

func TestCreateChannel_LiveQuota(t *testing.T) {
	service, env := setupTestService(t)
	service.cfg.MaxLiveChannels = 1
	ctx := context.Background()

	owner := newTestUser(t, env, "owner")
	newTestChannel(t, env, owner, models.StatusPublishing)

	viewer := newTestUser(t, env, "viewer")
	_, err := service.CreateChannel(ctx, viewer.ID, CreateChannelParams{Title: "blocked"})
	assert.True(t, IsTooManyLiveChannels(err))
}

func TestPublish_FromNew(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")
	channel := newTestChannel(t, env, user, models.StatusNew)

	result, err := service.Publish(ctx, channel.ID, user.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StatusPublishing, result.Channel.Status)
	assert.NotNil(t, result.Channel.StartedAt)
	assert.Nil(t, result.Channel.StoppedAt)
	assert.NotEmpty(t, result.URLs.RTMP)
	assert.NotNil(t, result.Monitor)
	assert.NotNil(t, result.ChatRoom)

	assert.Equal(t, models.StatusPublishing, channelStatus(t, env, channel.ID))

	// The owner's stream is marked busy while on air
	owner, err := env.repos.Users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StreamUnavailable, owner.StreamStatus)

	// The chat room creation task has no delay and should complete
	_, err = result.ChatRoom.Wait(waitCtx(t))
	require.NoError(t, err)
}

func TestPublish_GuardRejectsWrongStatus(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")

	for _, status := range []models.ChannelStatus{models.StatusPublishing, models.StatusCalculating, models.StatusPublished, models.StatusClosed, models.StatusBanned} {
		channel := newTestChannel(t, env, user, status)
		_, err := service.Publish(ctx, channel.ID, user.ID)
		assert.True(t, IsPreconditionFailed(err), "expected precondition failure publishing from %s", status)
	}
}

func TestPublish_OwnershipEnforced(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	owner := newTestUser(t, env, "owner")
	intruder := newTestUser(t, env, "intruder")
	channel := newTestChannel(t, env, owner, models.StatusNew)

	_, err := service.Publish(ctx, channel.ID, intruder.ID)
	assert.True(t, IsNotChannelOwner(err))
}

func TestPublish_EvictsStreamOccupant(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")

	occupant := newTestChannel(t, env, user, models.StatusPublishing)
	next := newTestChannel(t, env, user, models.StatusNew)

	result, err := service.Publish(ctx, next.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublishing, result.Channel.Status)

	// The evicted occupant was force-finished synchronously
	assert.Equal(t, models.StatusCalculating, channelStatus(t, env, occupant.ID))
	evicted, err := env.repos.Channels.GetByID(ctx, occupant.ID)
	require.NoError(t, err)
	assert.NotNil(t, evicted.StoppedAt)
}

func TestResume_FromCalculating(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")
	channel := newTestChannel(t, env, user, models.StatusCalculating)

	result, err := service.Resume(ctx, channel.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublishing, result.Channel.Status)
	assert.Nil(t, result.Channel.StoppedAt)
	assert.NotNil(t, result.Monitor)
}

func TestResume_BlockedBySupersedingChannel(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")

	old := newTestChannel(t, env, user, models.StatusPublished)
	newTestChannel(t, env, user, models.StatusNew) // newer channel on the same stream

	_, err := service.Resume(ctx, old.ID, user.ID)
	assert.True(t, IsPreconditionFailed(err))
	assert.Equal(t, models.StatusPublished, channelStatus(t, env, old.ID))
}

func TestResume_GuardRejectsWrongStatus(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")
	channel := newTestChannel(t, env, user, models.StatusNew)

	_, err := service.Resume(ctx, channel.ID, user.ID)
	assert.True(t, IsPreconditionFailed(err))
}

func TestFinish_FromPublishing(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")
	channel := newTestChannel(t, env, user, models.StatusPublishing)

	result, err := service.Finish(ctx, channel.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCalculating, result.Channel.Status)
	assert.NotNil(t, result.Channel.StoppedAt)
	assert.NotNil(t, result.Reconcile)
	assert.NotNil(t, result.ChatDestroy)

	// The owner's stream is released for the next session
	owner, err := env.repos.Users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StreamAvailable, owner.StreamStatus)
}

func TestFinish_IsIdempotent(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")
	channel := newTestChannel(t, env, user, models.StatusPublishing)

	first, err := service.Finish(ctx, channel.ID, user.ID)
	require.NoError(t, err)
	require.NotNil(t, first.Reconcile)

	// Finishing again is a no-op that spawns nothing
	second, err := service.Finish(ctx, channel.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCalculating, second.Channel.Status)
	assert.Nil(t, second.Reconcile)
	assert.Nil(t, second.ChatDestroy)
}

func TestFinish_GuardRejectsNew(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")
	channel := newTestChannel(t, env, user, models.StatusNew)

	_, err := service.Finish(ctx, channel.ID, user.ID)
	assert.True(t, IsPreconditionFailed(err))
}

func TestClose_FromPublished(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")
	channel := newTestChannel(t, env, user, models.StatusPublished)

	closed, err := service.Close(ctx, channel.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, closed.Status)

	// Closed is terminal
	_, err = service.Publish(ctx, channel.ID, user.ID)
	assert.True(t, IsPreconditionFailed(err))
}

func TestDisable_PublishingChannel(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")
	channel := newTestChannel(t, env, user, models.StatusPublishing)

	result, err := service.Disable(ctx, channel.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBanned, result.Channel.Status)
	assert.NotNil(t, result.Reconcile)
	assert.NotNil(t, result.ChatDestroy)

	// The stream is blocked at the provider and the owner projection updated
	assert.True(t, env.stream.isDisabled(channel.StreamID))
	owner, err := env.repos.Users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StreamUnavailable, owner.StreamStatus)
}

func TestDisable_IdleChannelSkipsReconcile(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")
	channel := newTestChannel(t, env, user, models.StatusPublished)

	result, err := service.Disable(ctx, channel.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBanned, result.Channel.Status)
	assert.Nil(t, result.Reconcile)
	assert.Nil(t, result.ChatDestroy)
}

func TestEnable_RestoresPublished(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")
	channel := newTestChannel(t, env, user, models.StatusBanned)

	restored, err := service.Enable(ctx, channel.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, restored.Status)
	assert.False(t, env.stream.isDisabled(channel.StreamID))

	owner, err := env.repos.Users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StreamAvailable, owner.StreamStatus)
}

func TestEnable_RejectsUnbanned(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")
	channel := newTestChannel(t, env, user, models.StatusPublished)

	_, err := service.Enable(ctx, channel.ID)
	assert.True(t, IsPreconditionFailed(err))
}

func TestAccessChannel_Live(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")
	channel := newTestChannel(t, env, user, models.StatusPublishing)

	info, err := service.AccessChannel(ctx, channel.ID)
	require.NoError(t, err)
	assert.True(t, info.Live)
	require.NotNil(t, info.LiveURLs)
	assert.NotEmpty(t, info.LiveURLs.HLS)
	assert.Equal(t, int64(1), info.Channel.VisitCount)

	// A second access bumps the counter again
	info, err = service.AccessChannel(ctx, channel.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.Channel.VisitCount)
}

func TestAccessChannel_Recorded(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")
	channel := newTestChannel(t, env, user, models.StatusPublished)

	info, err := service.AccessChannel(ctx, channel.ID)
	require.NoError(t, err)
	assert.False(t, info.Live)
	assert.Nil(t, info.LiveURLs)
	assert.NotEmpty(t, info.PlaybackURL)
}

func TestAccessChannel_Inaccessible(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")

	for _, status := range []models.ChannelStatus{models.StatusNew, models.StatusCalculating, models.StatusBanned, models.StatusClosed} {
		channel := newTestChannel(t, env, user, status)
		_, err := service.AccessChannel(ctx, channel.ID)
		assert.True(t, IsNotAccessible(err), "expected %s to be inaccessible", status)
	}
}

func TestLikeDislike(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")
	channel := newTestChannel(t, env, user, models.StatusPublishing)

	require.NoError(t, service.Like(ctx, channel.ID))
	require.NoError(t, service.Like(ctx, channel.ID))
	require.NoError(t, service.Dislike(ctx, channel.ID))

	got, err := service.GetChannel(ctx, channel.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.LikeCount)

	assert.True(t, IsChannelNotFound(service.Like(ctx, 9999)))
}

func TestSendMessage_OffsetAndMirror(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")
	channel := newTestChannel(t, env, user, models.StatusPublishing)

	message, mirror, err := service.SendMessage(ctx, channel.ID, user.ID, "hello viewers", nil)
	require.NoError(t, err)
	require.NotNil(t, mirror)

	// The channel started an hour ago in the fixture
	assert.InDelta(t, 3600, message.Offset, 5)

	_, err = mirror.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, 1, env.chat.publishedCount())
}

func TestSendMessage_NoMirrorOnRecording(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")
	channel := newTestChannel(t, env, user, models.StatusPublished)

	offset := int64(90)
	_, mirror, err := service.SendMessage(ctx, channel.ID, user.ID, "watching the replay", &offset)
	require.NoError(t, err)
	assert.Nil(t, mirror)
	assert.Equal(t, 0, env.chat.publishedCount())
}

func TestSendMessage_ReplayUsesClientOffset(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")
	channel := newTestChannel(t, env, user, models.StatusPublished)

	// A replay comment lands at the position the client names, not at the
	// wall-clock distance from the original broadcast
	offset := int64(42)
	message, _, err := service.SendMessage(ctx, channel.ID, user.ID, "best moment", &offset)
	require.NoError(t, err)
	assert.Equal(t, int64(42), message.Offset)

	// Without an offset there is nowhere on the timeline to put it
	viewer := newTestUser(t, env, "viewer")
	_, _, err = service.SendMessage(ctx, channel.ID, viewer.ID, "lost comment", nil)
	assert.True(t, IsMessageOffsetRequired(err))
}

func TestSendMessage_Throttled(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")
	channel := newTestChannel(t, env, user, models.StatusPublishing)

	_, _, err := service.SendMessage(ctx, channel.ID, user.ID, "first", nil)
	require.NoError(t, err)

	_, _, err = service.SendMessage(ctx, channel.ID, user.ID, "too fast", nil)
	assert.True(t, IsMessageThrottled(err))

	time.Sleep(service.cfg.MessageMinInterval + 10*time.Millisecond)
	_, _, err = service.SendMessage(ctx, channel.ID, user.ID, "after the interval", nil)
	assert.NoError(t, err)
}

func TestListMessages_Window(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")
	channel := newTestChannel(t, env, user, models.StatusPublished)

	for _, offset := range []int64{10, 50, 200} {
		msg := &models.Message{ChannelID: channel.ID, AuthorID: user.ID, Content: "m", Offset: offset, CreatedAt: time.Now().UTC()}
		require.NoError(t, env.repos.Messages.Create(ctx, msg))
	}

	messages, err := service.ListMessages(ctx, channel.ID, 0, 60, 0)
	require.NoError(t, err)
	assert.Len(t, messages, 2)

	_, err = service.ListMessages(ctx, 9999, 0, 60, 0)
	assert.True(t, IsChannelNotFound(err))
}

func TestComplain(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	owner := newTestUser(t, env, "owner")
	reporter := newTestUser(t, env, "reporter")
	channel := newTestChannel(t, env, owner, models.StatusPublishing)

	complaint, err := service.Complain(ctx, channel.ID, reporter.ID, "spam")
	require.NoError(t, err)
	assert.NotZero(t, complaint.ID)

	_, err = service.Complain(ctx, 9999, reporter.ID, "spam")
	assert.True(t, IsChannelNotFound(err))
	_, err = service.Complain(ctx, channel.ID, 9999, "spam")
	assert.True(t, IsUserNotFound(err))
}

func TestListChannels(t *testing.T) {
	service, env := setupTestService(t)
	ctx := context.Background()
	user := newTestUser(t, env, "owner")
	newTestChannel(t, env, user, models.StatusPublishing)
	newTestChannel(t, env, user, models.StatusPublished)

	live, err := service.ListChannels(ctx, models.StatusPublishing, nil, 10, 0)
	require.NoError(t, err)
	assert.Len(t, live, 1)

	_, err = service.ListChannels(ctx, models.ChannelStatus("nonsense"), nil, 10, 0)
	assert.Error(t, err)

	all, err := service.ListOwnerChannels(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
