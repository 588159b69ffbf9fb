// Package lifecycle implements the channel state machine and the background
// tasks that keep channels consistent with the external stream and chat-room
// providers. All transitions are committed with guarded compare-and-set
// updates so concurrent actors observe at most one winner.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/sy264115809/techshow/internal/config"
	"github.com/sy264115809/techshow/internal/db"
	"github.com/sy264115809/techshow/internal/gateway"
	"github.com/sy264115809/techshow/internal/lock"
	"github.com/sy264115809/techshow/internal/logger"
	"github.com/sy264115809/techshow/internal/models"
	"github.com/sy264115809/techshow/internal/scheduler"
	"github.com/sy264115809/techshow/internal/telemetry"
)

// streamLockTTL bounds how long a crashed publisher can hold a stream lock
const streamLockTTL = 30 * time.Second

// Service coordinates channel lifecycle transitions, the stream and
// chat-room gateways, and the background task scheduler
type Service struct {
	repos  *db.Repositories
	stream gateway.StreamGateway
	chat   gateway.ChatRoomGateway
	sched  *scheduler.Scheduler
	locker lock.Locker
	cfg    config.LifecycleConfig
}

// NewService creates a lifecycle service
func NewService(repos *db.Repositories, stream gateway.StreamGateway, chat gateway.ChatRoomGateway, sched *scheduler.Scheduler, locker lock.Locker, cfg config.LifecycleConfig) *Service {
	return &Service{
		repos:  repos,
		stream: stream,
		chat:   chat,
		sched:  sched,
		locker: locker,
		cfg:    cfg,
	}
}

// CreateChannelParams are the caller-supplied channel attributes
type CreateChannelParams struct {
	Title       string
	Desc        *string
	Thumbnail   *string
	Quality     *int
	Orientation *int
}

// PublishResult is the outcome of a successful publish or resume
type PublishResult struct {
	Channel  *models.Channel
	URLs     gateway.LiveURLs
	Monitor  *scheduler.Handle
	ChatRoom *scheduler.Handle
}

// FinishResult is the outcome of a successful finish, close or ban
type FinishResult struct {
	Channel     *models.Channel
	Reconcile   *scheduler.Handle
	ChatDestroy *scheduler.Handle
}

// AccessInfo is what a viewer needs to watch a channel
type AccessInfo struct {
	Channel      *models.Channel
	Live         bool
	LiveURLs     *gateway.LiveURLs
	PlaybackURL  string
	Participants int
}

// CreateChannel allocates the owner's stream on first use and creates a new
// channel bound to it. Any of the owner's channels still in the new status
// are superseded and removed.
func (s *Service) CreateChannel(ctx context.Context, ownerID int64, params CreateChannelParams) (*models.Channel, error) {
	user, err := s.repos.Users.GetByID(ctx, ownerID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load owner: %w", err)
	}

	if s.cfg.MaxLiveChannels > 0 {
		live, err := s.repos.Channels.CountLive(ctx)
		if err != nil {
			return nil, fmt.Errorf("count live channels: %w", err)
		}
		if live >= int64(s.cfg.MaxLiveChannels) {
			return nil, ErrTooManyLiveChannels
		}
	}

	streamID, err := s.ensureStream(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := s.repos.Channels.DeleteStaleNew(ctx, ownerID); err != nil {
		return nil, err
	}

	channel := models.NewChannel(params.Title, ownerID, streamID)
	channel.Desc = params.Desc
	channel.Thumbnail = params.Thumbnail
	channel.Quality = params.Quality
	channel.Orientation = params.Orientation

	if err := s.repos.Channels.Create(ctx, channel); err != nil {
		return nil, err
	}

	logger.With("lifecycle").Info().
		Int64("channel_id", channel.ID).
		Int64("owner_id", ownerID).
		Str("stream_id", streamID).
		Msg("Channel created")

	return channel, nil
}

// ensureStream returns the user's stream id, allocating one at the provider
// on first use
func (s *Service) ensureStream(ctx context.Context, user *models.User) (string, error) {
	if user.StreamID != nil && *user.StreamID != "" {
		return *user.StreamID, nil
	}

	stream, err := s.stream.GetOrCreate(ctx, fmt.Sprintf("user-%d", user.ID))
	if err != nil {
		return "", fmt.Errorf("allocate stream: %w", err)
	}
	if err := s.repos.Users.SetStreamID(ctx, user.ID, stream.ID); err != nil {
		return "", err
	}

	status := models.StreamAvailable
	if stream.Disabled {
		status = models.StreamUnavailable
	}
	if err := s.repos.Users.SetStreamStatus(ctx, user.ID, status); err != nil {
		return "", err
	}

	return stream.ID, nil
}

// Publish moves a new channel to publishing. If another channel of the same
// owner still occupies the stream, its session is force-finished first under
// the per-stream lock, so the stream never has two publishing channels.
func (s *Service) Publish(ctx context.Context, channelID, ownerID int64) (*PublishResult, error) {
	channel, err := s.getOwned(ctx, channelID, ownerID)
	if err != nil {
		return nil, err
	}
	// Calculating and published channels go back on air through Resume,
	// which additionally checks the stream has not been handed to a newer
	// channel
	if channel.Status != models.StatusNew {
		telemetry.CountGuardFailure()
		return nil, NewPreconditionError("publish", channelID, channel.Status)
	}

	unlock, err := s.locker.TryLock(ctx, "stream:"+channel.StreamID, streamLockTTL)
	if err != nil {
		if err == lock.ErrLocked {
			return nil, ErrStreamBusy
		}
		return nil, fmt.Errorf("acquire stream lock: %w", err)
	}
	defer unlock()

	if err := s.evictOccupants(ctx, channel.StreamID, channelID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ok, err := s.repos.Channels.UpdateWhereStatus(ctx, channelID, channel.Status, map[string]interface{}{
		"status":     models.StatusPublishing,
		"started_at": now,
		"stopped_at": nil,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		telemetry.CountGuardFailure()
		return nil, s.preconditionFromCurrent(ctx, "publish", channelID)
	}
	telemetry.RecordTransition(string(channel.Status) + "->" + string(models.StatusPublishing))

	if err := s.repos.Users.SetStreamStatus(ctx, channel.OwnerID, models.StreamUnavailable); err != nil {
		return nil, err
	}

	channel.Status = models.StatusPublishing
	channel.StartedAt = &now
	channel.StoppedAt = nil

	monitor := s.scheduleMonitor(channelID, s.cfg.MonitorInitialDelay)
	chatRoom := s.scheduleChatCreate(channelID, channel.Title)

	logger.With("lifecycle").Info().
		Int64("channel_id", channelID).
		Str("stream_id", channel.StreamID).
		Msg("Channel publishing")

	return &PublishResult{
		Channel:  channel,
		URLs:     s.stream.LiveURLs(channel.StreamID),
		Monitor:  monitor,
		ChatRoom: chatRoom,
	}, nil
}

// Resume puts a calculating or published channel back on air. A session that
// has been superseded by a newer channel on the same stream may not reclaim
// it.
func (s *Service) Resume(ctx context.Context, channelID, ownerID int64) (*PublishResult, error) {
	channel, err := s.getOwned(ctx, channelID, ownerID)
	if err != nil {
		return nil, err
	}
	if channel.Status != models.StatusCalculating && channel.Status != models.StatusPublished {
		telemetry.CountGuardFailure()
		return nil, NewPreconditionError("resume", channelID, channel.Status)
	}

	newer, err := s.repos.Channels.HasNewerOnStream(ctx, channel.StreamID, channelID)
	if err != nil {
		return nil, err
	}
	if newer {
		telemetry.CountGuardFailure()
		return nil, NewPreconditionError("resume", channelID, channel.Status)
	}

	unlock, err := s.locker.TryLock(ctx, "stream:"+channel.StreamID, streamLockTTL)
	if err != nil {
		if err == lock.ErrLocked {
			return nil, ErrStreamBusy
		}
		return nil, fmt.Errorf("acquire stream lock: %w", err)
	}
	defer unlock()

	if err := s.evictOccupants(ctx, channel.StreamID, channelID); err != nil {
		return nil, err
	}

	ok, err := s.repos.Channels.UpdateWhereStatus(ctx, channelID, channel.Status, map[string]interface{}{
		"status":     models.StatusPublishing,
		"stopped_at": nil,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		telemetry.CountGuardFailure()
		return nil, s.preconditionFromCurrent(ctx, "resume", channelID)
	}
	telemetry.RecordTransition(string(channel.Status) + "->" + string(models.StatusPublishing))

	if err := s.repos.Users.SetStreamStatus(ctx, channel.OwnerID, models.StreamUnavailable); err != nil {
		return nil, err
	}

	channel.Status = models.StatusPublishing
	channel.StoppedAt = nil

	monitor := s.scheduleMonitor(channelID, s.cfg.MonitorInterval)
	chatRoom := s.scheduleChatCreate(channelID, channel.Title)

	logger.With("lifecycle").Info().
		Int64("channel_id", channelID).
		Str("stream_id", channel.StreamID).
		Msg("Channel resumed")

	return &PublishResult{
		Channel:  channel,
		URLs:     s.stream.LiveURLs(channel.StreamID),
		Monitor:  monitor,
		ChatRoom: chatRoom,
	}, nil
}

// Finish ends a publishing session and hands the channel to reconciliation.
// Finishing a channel that has already left publishing is a no-op so the
// operation is safe to repeat.
func (s *Service) Finish(ctx context.Context, channelID, ownerID int64) (*FinishResult, error) {
	channel, err := s.getOwned(ctx, channelID, ownerID)
	if err != nil {
		return nil, err
	}

	switch channel.Status {
	case models.StatusPublishing:
		// fall through to the guarded commit below
	case models.StatusCalculating, models.StatusPublished:
		// already finished, possibly by the liveness monitor or an eviction
		return &FinishResult{Channel: channel}, nil
	default:
		telemetry.CountGuardFailure()
		return nil, NewPreconditionError("finish", channelID, channel.Status)
	}

	applied, err := s.applyFinish(ctx, channelID, channel.OwnerID)
	if err != nil {
		return nil, err
	}
	if applied == nil {
		// lost the race to another finisher; treat as the no-op case
		current, err := s.repos.Channels.GetByID(ctx, channelID)
		if err != nil {
			if db.IsNotFound(err) {
				return nil, ErrChannelNotFound
			}
			return nil, err
		}
		if current.Status == models.StatusCalculating || current.Status == models.StatusPublished {
			return &FinishResult{Channel: current}, nil
		}
		telemetry.CountGuardFailure()
		return nil, NewPreconditionError("finish", channelID, current.Status)
	}

	channel.Status = models.StatusCalculating
	channel.StoppedAt = applied.stoppedAt

	logger.With("lifecycle").Info().
		Int64("channel_id", channelID).
		Msg("Channel finished, awaiting reconciliation")

	return &FinishResult{
		Channel:     channel,
		Reconcile:   applied.reconcile,
		ChatDestroy: applied.chatDestroy,
	}, nil
}

// Close retires a published channel. Closed is terminal.
func (s *Service) Close(ctx context.Context, channelID, ownerID int64) (*models.Channel, error) {
	channel, err := s.getOwned(ctx, channelID, ownerID)
	if err != nil {
		return nil, err
	}
	if !channel.Status.CanTransitionTo(models.StatusClosed) {
		telemetry.CountGuardFailure()
		return nil, NewPreconditionError("close", channelID, channel.Status)
	}

	ok, err := s.repos.Channels.UpdateWhereStatus(ctx, channelID, channel.Status, map[string]interface{}{
		"status": models.StatusClosed,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		telemetry.CountGuardFailure()
		return nil, s.preconditionFromCurrent(ctx, "close", channelID)
	}
	telemetry.RecordTransition(string(channel.Status) + "->" + string(models.StatusClosed))

	channel.Status = models.StatusClosed

	logger.With("lifecycle").Info().Int64("channel_id", channelID).Msg("Channel closed")

	return channel, nil
}

// Disable bans a channel and blocks its stream at the provider. A publishing
// channel is stopped first so its recording still gets reconciled.
func (s *Service) Disable(ctx context.Context, channelID int64) (*FinishResult, error) {
	channel, err := s.repos.Channels.GetByID(ctx, channelID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrChannelNotFound
		}
		return nil, err
	}
	if !channel.Status.CanTransitionTo(models.StatusBanned) {
		telemetry.CountGuardFailure()
		return nil, NewPreconditionError("disable", channelID, channel.Status)
	}

	if err := s.stream.Disable(ctx, channel.StreamID); err != nil {
		return nil, fmt.Errorf("disable stream: %w", err)
	}

	wasPublishing := channel.IsPublishing()
	fields := map[string]interface{}{"status": models.StatusBanned}
	if wasPublishing {
		fields["stopped_at"] = time.Now().UTC()
	}
	ok, err := s.repos.Channels.UpdateWhereStatus(ctx, channelID, channel.Status, fields)
	if err != nil {
		return nil, err
	}
	if !ok {
		telemetry.CountGuardFailure()
		return nil, s.preconditionFromCurrent(ctx, "disable", channelID)
	}
	telemetry.RecordTransition(string(channel.Status) + "->" + string(models.StatusBanned))

	if err := s.repos.Users.SetStreamStatus(ctx, channel.OwnerID, models.StreamUnavailable); err != nil {
		return nil, err
	}

	result := &FinishResult{Channel: channel}
	channel.Status = models.StatusBanned
	if wasPublishing {
		result.Reconcile = s.scheduleReconcile(channelID, s.cfg.ReconcileDelay)
		result.ChatDestroy = s.scheduleChatDestroy(channelID)
	}

	logger.With("lifecycle").Warn().
		Int64("channel_id", channelID).
		Int64("owner_id", channel.OwnerID).
		Msg("Channel banned")

	return result, nil
}

// Enable lifts a ban, re-enables the stream at the provider, and returns the
// channel to published.
func (s *Service) Enable(ctx context.Context, channelID int64) (*models.Channel, error) {
	channel, err := s.repos.Channels.GetByID(ctx, channelID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrChannelNotFound
		}
		return nil, err
	}
	if channel.Status != models.StatusBanned {
		telemetry.CountGuardFailure()
		return nil, NewPreconditionError("enable", channelID, channel.Status)
	}

	if err := s.stream.Enable(ctx, channel.StreamID); err != nil {
		return nil, fmt.Errorf("enable stream: %w", err)
	}

	ok, err := s.repos.Channels.UpdateWhereStatus(ctx, channelID, models.StatusBanned, map[string]interface{}{
		"status": models.StatusPublished,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		telemetry.CountGuardFailure()
		return nil, s.preconditionFromCurrent(ctx, "enable", channelID)
	}
	telemetry.RecordTransition(string(models.StatusBanned) + "->" + string(models.StatusPublished))

	if err := s.repos.Users.SetStreamStatus(ctx, channel.OwnerID, models.StreamAvailable); err != nil {
		return nil, err
	}

	channel.Status = models.StatusPublished

	logger.With("lifecycle").Info().Int64("channel_id", channelID).Msg("Channel ban lifted")

	return channel, nil
}

// AccessChannel records a visit and returns the playback addresses for a
// live or recorded channel
func (s *Service) AccessChannel(ctx context.Context, channelID int64) (*AccessInfo, error) {
	channel, err := s.repos.Channels.GetByID(ctx, channelID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrChannelNotFound
		}
		return nil, err
	}
	if !channel.Accessible() {
		return nil, ErrChannelNotAccessible
	}

	if err := s.repos.Channels.IncrementVisits(ctx, channelID); err != nil {
		return nil, err
	}
	channel.VisitCount++

	info := &AccessInfo{Channel: channel}
	if channel.IsPublishing() {
		urls := s.stream.LiveURLs(channel.StreamID)
		info.Live = true
		info.LiveURLs = &urls
		// Best effort; the room may still be creating
		if n, err := s.chat.ParticipantCount(ctx, channelID); err == nil {
			info.Participants = n
		}
	} else if channel.StartedAt != nil && channel.StoppedAt != nil {
		info.PlaybackURL = s.stream.PlaybackURL(channel.StreamID, channel.StartedAt.Unix(), channel.StoppedAt.Unix())
	}

	return info, nil
}

// Like bumps a channel's like counter
func (s *Service) Like(ctx context.Context, channelID int64) error {
	return s.addLikes(ctx, channelID, 1)
}

// Dislike decrements a channel's like counter
func (s *Service) Dislike(ctx context.Context, channelID int64) error {
	return s.addLikes(ctx, channelID, -1)
}

func (s *Service) addLikes(ctx context.Context, channelID int64, delta int) error {
	if err := s.repos.Channels.AddLikes(ctx, channelID, delta); err != nil {
		if db.IsNotFound(err) {
			return ErrChannelNotFound
		}
		return err
	}
	return nil
}

// SendMessage stores a chat message on the channel's timeline and, while the
// channel is live, mirrors it to the external chat room. Live messages are
// stamped with the broadcast clock; replay comments on a finished channel
// carry a caller-supplied offset instead, since there is no live clock to
// anchor to.
func (s *Service) SendMessage(ctx context.Context, channelID, authorID int64, content string, clientOffset *int64) (*models.Message, *scheduler.Handle, error) {
	author, err := s.repos.Users.GetByID(ctx, authorID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, err
	}

	now := time.Now().UTC()
	if s.cfg.MessageMinInterval > 0 && author.LastMessageAt != nil &&
		now.Sub(*author.LastMessageAt) < s.cfg.MessageMinInterval {
		return nil, nil, ErrMessageThrottled
	}

	channel, err := s.repos.Channels.GetByID(ctx, channelID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil, ErrChannelNotFound
		}
		return nil, nil, err
	}
	if !channel.Accessible() {
		return nil, nil, ErrChannelNotAccessible
	}

	var offset int64
	switch {
	case channel.IsPublishing():
		if channel.StartedAt != nil {
			if d := int64(now.Sub(*channel.StartedAt).Seconds()); d > 0 {
				offset = d
			}
		}
	case clientOffset != nil:
		offset = *clientOffset
	default:
		return nil, nil, ErrMessageOffsetRequired
	}

	message := &models.Message{
		ChannelID: channelID,
		AuthorID:  authorID,
		Content:   content,
		Offset:    offset,
		CreatedAt: now,
	}
	if err := s.repos.Messages.Create(ctx, message); err != nil {
		return nil, nil, err
	}
	if err := s.repos.Users.SetLastMessageAt(ctx, authorID, now); err != nil {
		return nil, nil, err
	}

	var mirror *scheduler.Handle
	if channel.IsPublishing() {
		mirror = s.scheduleChatMirror(channelID, authorID, content)
	}

	return message, mirror, nil
}

// ListMessages returns a channel's messages whose timeline offset falls in
// [start, start+span]
func (s *Service) ListMessages(ctx context.Context, channelID, start, span int64, limit int) ([]*models.Message, error) {
	if _, err := s.repos.Channels.GetByID(ctx, channelID); err != nil {
		if db.IsNotFound(err) {
			return nil, ErrChannelNotFound
		}
		return nil, err
	}
	return s.repos.Messages.ListWindow(ctx, channelID, start, span, limit)
}

// Complain records a viewer report against a channel
func (s *Service) Complain(ctx context.Context, channelID, reporterID int64, reason string) (*models.Complaint, error) {
	if _, err := s.repos.Channels.GetByID(ctx, channelID); err != nil {
		if db.IsNotFound(err) {
			return nil, ErrChannelNotFound
		}
		return nil, err
	}
	if _, err := s.repos.Users.GetByID(ctx, reporterID); err != nil {
		if db.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	complaint := &models.Complaint{
		ChannelID:  channelID,
		ReporterID: reporterID,
		Reason:     reason,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repos.Complaints.Create(ctx, complaint); err != nil {
		return nil, err
	}

	logger.With("lifecycle").Info().
		Int64("channel_id", channelID).
		Int64("reporter_id", reporterID).
		Msg("Complaint recorded")

	return complaint, nil
}

// GetChannel retrieves one channel
func (s *Service) GetChannel(ctx context.Context, channelID int64) (*models.Channel, error) {
	channel, err := s.repos.Channels.GetByID(ctx, channelID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrChannelNotFound
		}
		return nil, err
	}
	return channel, nil
}

// ListChannels lists channels by status, optionally filtered by owner
func (s *Service) ListChannels(ctx context.Context, status models.ChannelStatus, ownerID *int64, limit, offset int) ([]*models.Channel, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid channel status %q", status)
	}
	return s.repos.Channels.ListByStatus(ctx, status, ownerID, limit, offset)
}

// ListOwnerChannels lists all channels belonging to an owner
func (s *Service) ListOwnerChannels(ctx context.Context, ownerID int64) ([]*models.Channel, error) {
	if _, err := s.repos.Users.GetByID(ctx, ownerID); err != nil {
		if db.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.repos.Channels.ListByOwner(ctx, ownerID)
}

// TaskStatus looks up a previously returned background task by id
func (s *Service) TaskStatus(id string) (*scheduler.TaskStatus, bool) {
	uid, err := parseTaskID(id)
	if err != nil {
		return nil, false
	}
	handle, ok := s.sched.Lookup(uid)
	if !ok {
		return nil, false
	}
	status := handle.Status()
	return &status, true
}

// getOwned loads a channel and verifies ownership
func (s *Service) getOwned(ctx context.Context, channelID, ownerID int64) (*models.Channel, error) {
	channel, err := s.repos.Channels.GetByID(ctx, channelID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrChannelNotFound
		}
		return nil, err
	}
	if channel.OwnerID != ownerID {
		return nil, ErrNotChannelOwner
	}
	return channel, nil
}

// preconditionFromCurrent builds the guard error from the channel's
// now-current status after a compare-and-set lost its race
func (s *Service) preconditionFromCurrent(ctx context.Context, op string, channelID int64) error {
	current, err := s.repos.Channels.GetByID(ctx, channelID)
	if err != nil {
		if db.IsNotFound(err) {
			return ErrChannelNotFound
		}
		return err
	}
	return NewPreconditionError(op, channelID, current.Status)
}

// evictOccupants force-finishes any other channel still publishing on the
// stream. The occupant moves to calculating synchronously; its recording is
// settled by the reconciliation task like any other finished session.
func (s *Service) evictOccupants(ctx context.Context, streamID string, exceptID int64) error {
	occupants, err := s.repos.Channels.FindByStreamAndStatus(ctx, streamID, models.StatusPublishing)
	if err != nil {
		return err
	}

	for _, occupant := range occupants {
		if occupant.ID == exceptID {
			continue
		}
		applied, err := s.applyFinish(ctx, occupant.ID, occupant.OwnerID)
		if err != nil {
			return fmt.Errorf("evict channel %d: %w", occupant.ID, err)
		}
		if applied != nil {
			logger.With("lifecycle").Warn().
				Int64("channel_id", occupant.ID).
				Str("stream_id", streamID).
				Msg("Evicted publishing channel from stream")
		}
	}
	return nil
}

// finishEffect carries what a committed finish produced
type finishEffect struct {
	stoppedAt   *time.Time
	reconcile   *scheduler.Handle
	chatDestroy *scheduler.Handle
}

// applyFinish commits publishing -> calculating, frees the owner's stream,
// and schedules the follow-up tasks. Returns nil when the guard did not
// match, which callers treat as someone else having finished the channel
// already.
func (s *Service) applyFinish(ctx context.Context, channelID, ownerID int64) (*finishEffect, error) {
	now := time.Now().UTC()
	ok, err := s.repos.Channels.UpdateWhereStatus(ctx, channelID, models.StatusPublishing, map[string]interface{}{
		"status":     models.StatusCalculating,
		"stopped_at": now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	telemetry.RecordTransition(string(models.StatusPublishing) + "->" + string(models.StatusCalculating))

	if err := s.repos.Users.SetStreamStatus(ctx, ownerID, models.StreamAvailable); err != nil {
		return nil, err
	}

	return &finishEffect{
		stoppedAt:   &now,
		reconcile:   s.scheduleReconcile(channelID, s.cfg.ReconcileDelay),
		chatDestroy: s.scheduleChatDestroy(channelID),
	}, nil
}
