package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sy264115809/techshow/internal/config"
	"github.com/sy264115809/techshow/internal/db"
	"github.com/sy264115809/techshow/internal/gateway"
	"github.com/sy264115809/techshow/internal/lock"
	"github.com/sy264115809/techshow/internal/models"
	"github.com/sy264115809/techshow/internal/scheduler"
)

// fakeStream is an in-memory StreamGateway for tests
type fakeStream struct {
	mu          sync.Mutex
	alive       bool
	segments    gateway.SegmentList
	statusErr   error
	segmentsErr error
	disableErr  error
	disabled    map[string]bool
	created     []string
}

func newFakeStream() *fakeStream {
	return &fakeStream{disabled: make(map[string]bool)}
}

func (f *fakeStream) GetOrCreate(_ context.Context, ownerRef string) (*gateway.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, ownerRef)
	return &gateway.Stream{ID: "stream-" + ownerRef}, nil
}

func (f *fakeStream) Disable(_ context.Context, streamID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disableErr != nil {
		return f.disableErr
	}
	f.disabled[streamID] = true
	return nil
}

func (f *fakeStream) Enable(_ context.Context, streamID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disabled[streamID] = false
	return nil
}

func (f *fakeStream) Status(_ context.Context, _ string) (*gateway.LiveStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &gateway.LiveStatus{Alive: f.alive}, nil
}

func (f *fakeStream) Segments(_ context.Context, _ string, _, _ int64) (*gateway.SegmentList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.segmentsErr != nil {
		return nil, f.segmentsErr
	}
	segments := f.segments
	return &segments, nil
}

func (f *fakeStream) LiveURLs(streamID string) gateway.LiveURLs {
	return gateway.LiveURLs{
		RTMP: "rtmp://test/" + streamID,
		HLS:  "https://test/" + streamID + ".m3u8",
		FLV:  "https://test/" + streamID + ".flv",
	}
}

func (f *fakeStream) PlaybackURL(streamID string, startSec, endSec int64) string {
	return fmt.Sprintf("https://test/%s.m3u8?start=%d&end=%d", streamID, startSec, endSec)
}

func (f *fakeStream) setAlive(alive bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive = alive
}

func (f *fakeStream) setSegments(segments gateway.SegmentList) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.segments = segments
}

func (f *fakeStream) isDisabled(streamID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disabled[streamID]
}

// fakeChat is an in-memory ChatRoomGateway for tests
type fakeChat struct {
	mu          sync.Mutex
	createErr   error
	createFails int
	destroyErr  error
	publishErr  error
	rooms       map[int64]string
	destroyed   []int64
	published   []string
}

func newFakeChat() *fakeChat {
	return &fakeChat{rooms: make(map[int64]string)}
}

func (f *fakeChat) Create(_ context.Context, roomID int64, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.createFails > 0 {
		f.createFails--
		return gateway.NewTransient("chat.create", errors.New("unavailable"))
	}
	f.rooms[roomID] = name
	return nil
}

func (f *fakeChat) failCreates(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createFails = n
}

func (f *fakeChat) Destroy(_ context.Context, roomID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyErr != nil {
		return f.destroyErr
	}
	delete(f.rooms, roomID)
	f.destroyed = append(f.destroyed, roomID)
	return nil
}

func (f *fakeChat) Publish(_ context.Context, roomID, fromUserID int64, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, fmt.Sprintf("%d:%d:%s", roomID, fromUserID, payload))
	return nil
}

func (f *fakeChat) ParticipantCount(_ context.Context, roomID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[roomID]; ok {
		return 3, nil
	}
	return 0, nil
}

func (f *fakeChat) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

// testEnv bundles the pieces a lifecycle test needs
type testEnv struct {
	repos  *db.Repositories
	stream *fakeStream
	chat   *fakeChat
	sched  *scheduler.Scheduler
	cfg    config.LifecycleConfig
}

// setupTestService creates a service against a temp database with fake
// gateways. Scheduled delays are set far in the future so tests drive the
// task logic directly and deterministically.
func setupTestService(t *testing.T) (*Service, *testEnv) {
	tmpFile := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(tmpFile)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	sqlDB, err := database.GetSQLDB()
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(sqlDB, "file://../../migrations"))

	repos := db.NewRepositories(database)
	stream := newFakeStream()
	chat := newFakeChat()

	sched := scheduler.New(2, 32)
	require.NoError(t, sched.Start())
	t.Cleanup(sched.Stop)

	cfg := config.LifecycleConfig{
		MonitorInitialDelay:  time.Hour,
		MonitorInterval:      10 * time.Millisecond,
		ReconcileDelay:       time.Hour,
		ChatCreateBackoff:    5 * time.Millisecond,
		ChatDestroyBackoff:   5 * time.Millisecond,
		ChatDestroyAttempts:  3,
		MessageRetryAttempts: 2,
		MessageMinInterval:   100 * time.Millisecond,
	}

	service := NewService(repos, stream, chat, sched, lock.NewMemory(), cfg)

	return service, &testEnv{
		repos:  repos,
		stream: stream,
		chat:   chat,
		sched:  sched,
		cfg:    cfg,
	}
}

func newTestUser(t *testing.T, env *testEnv, nickname string) *models.User {
	user := &models.User{Nickname: nickname, CreatedAt: time.Now().UTC()}
	require.NoError(t, env.repos.Users.Create(context.Background(), user))

	streamID := fmt.Sprintf("stream-user-%d", user.ID)
	require.NoError(t, env.repos.Users.SetStreamID(context.Background(), user.ID, streamID))
	user.StreamID = &streamID
	return user
}

func newTestChannel(t *testing.T, env *testEnv, user *models.User, status models.ChannelStatus) *models.Channel {
	channel := models.NewChannel("test show", user.ID, *user.StreamID)
	require.NoError(t, env.repos.Channels.Create(context.Background(), channel))

	if status != models.StatusNew {
		fields := map[string]interface{}{"status": status}
		if status != models.StatusBanned {
			fields["started_at"] = time.Now().UTC().Add(-time.Hour)
		}
		if status == models.StatusCalculating || status == models.StatusPublished {
			fields["stopped_at"] = time.Now().UTC()
		}
		ok, err := env.repos.Channels.UpdateWhereStatus(context.Background(), channel.ID, models.StatusNew, fields)
		require.NoError(t, err)
		require.True(t, ok)

		got, err := env.repos.Channels.GetByID(context.Background(), channel.ID)
		require.NoError(t, err)
		return got
	}
	return channel
}

func waitCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func channelStatus(t *testing.T, env *testEnv, id int64) models.ChannelStatus {
	channel, err := env.repos.Channels.GetByID(context.Background(), id)
	require.NoError(t, err)
	return channel.Status
}
