//go:build integration
// +build integration

package integration

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/sy264115809/techshow/internal/api"
	"github.com/sy264115809/techshow/internal/config"
	"github.com/sy264115809/techshow/internal/db"
	"github.com/sy264115809/techshow/internal/gateway"
	"github.com/sy264115809/techshow/internal/lifecycle"
	"github.com/sy264115809/techshow/internal/lock"
	"github.com/sy264115809/techshow/internal/models"
	"github.com/sy264115809/techshow/internal/scheduler"
)

// stubStream is a canned StreamGateway for API round-trip tests
type stubStream struct {
	mu       sync.Mutex
	alive    bool
	segments gateway.SegmentList
	disabled map[string]bool
}

func newStubStream() *stubStream {
	return &stubStream{disabled: make(map[string]bool)}
}

func (s *stubStream) GetOrCreate(_ context.Context, ownerRef string) (*gateway.Stream, error) {
	return &gateway.Stream{ID: "stream-" + ownerRef}, nil
}

func (s *stubStream) Disable(_ context.Context, streamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled[streamID] = true
	return nil
}

func (s *stubStream) Enable(_ context.Context, streamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled[streamID] = false
	return nil
}

func (s *stubStream) Status(_ context.Context, _ string) (*gateway.LiveStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &gateway.LiveStatus{Alive: s.alive}, nil
}

func (s *stubStream) Segments(_ context.Context, _ string, _, _ int64) (*gateway.SegmentList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	segments := s.segments
	return &segments, nil
}

func (s *stubStream) LiveURLs(streamID string) gateway.LiveURLs {
	return gateway.LiveURLs{RTMP: "rtmp://test/" + streamID, HLS: "https://test/" + streamID + ".m3u8", FLV: "https://test/" + streamID + ".flv"}
}

func (s *stubStream) PlaybackURL(streamID string, startSec, endSec int64) string {
	return fmt.Sprintf("https://test/%s.m3u8?start=%d&end=%d", streamID, startSec, endSec)
}

func (s *stubStream) setSegments(segments gateway.SegmentList) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = segments
}

// stubChat is a canned ChatRoomGateway for API round-trip tests
type stubChat struct {
	mu    sync.Mutex
	rooms map[int64]string
}

func newStubChat() *stubChat {
	return &stubChat{rooms: make(map[int64]string)}
}

func (c *stubChat) Create(_ context.Context, roomID int64, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[roomID] = name
	return nil
}

func (c *stubChat) Destroy(_ context.Context, roomID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, roomID)
	return nil
}

func (c *stubChat) Publish(_ context.Context, _, _ int64, _ string) error {
	return nil
}

func (c *stubChat) ParticipantCount(_ context.Context, _ int64) (int, error) {
	return 0, nil
}

// testStack bundles the wired pieces an API test drives
type testStack struct {
	router *gin.Engine
	repos  *db.Repositories
	stream *stubStream
	chat   *stubChat
}

// setupStack wires a router against a temp database, fake gateways, and a
// running scheduler with short task delays so async transitions settle
// within the test
func setupStack(t *testing.T) *testStack {
	t.Helper()

	tmpFile := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(tmpFile)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	sqlDB, err := database.GetSQLDB()
	require.NoError(t, err)

	// Resolve the migrations directory relative to this file so tests work
	// regardless of working directory
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok)
	rootDir := filepath.Dir(filepath.Dir(filepath.Dir(filename)))
	require.NoError(t, db.RunMigrations(sqlDB, "file://"+filepath.Join(rootDir, "migrations")))

	repos := db.NewRepositories(database)
	stream := newStubStream()
	chat := newStubChat()

	sched := scheduler.New(2, 32)
	require.NoError(t, sched.Start())
	t.Cleanup(sched.Stop)

	cfg := config.LifecycleConfig{
		MonitorInitialDelay:  time.Hour,
		MonitorInterval:      10 * time.Millisecond,
		ReconcileDelay:       20 * time.Millisecond,
		ChatCreateBackoff:    5 * time.Millisecond,
		ChatDestroyBackoff:   5 * time.Millisecond,
		ChatDestroyAttempts:  3,
		MessageRetryAttempts: 2,
		MessageMinInterval:   time.Millisecond,
	}
	service := lifecycle.NewService(repos, stream, chat, sched, lock.NewMemory(), cfg)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery())
	apiGroup := router.Group("/api")
	api.SetupHealthRoutes(apiGroup, database)
	api.SetupChannelRoutes(apiGroup, service)
	api.SetupMessageRoutes(apiGroup, service)
	api.SetupAdminRoutes(apiGroup, service)

	return &testStack{router: router, repos: repos, stream: stream, chat: chat}
}

// createUser inserts a user directly; account management lives outside this
// service
func createUser(t *testing.T, stack *testStack, nickname string) *models.User {
	t.Helper()
	user := &models.User{Nickname: nickname, CreatedAt: time.Now().UTC()}
	require.NoError(t, stack.repos.Users.Create(context.Background(), user))
	return user
}
