package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sy264115809/techshow/internal/db"
	"github.com/sy264115809/techshow/internal/gateway"
	"github.com/sy264115809/techshow/internal/logger"
	"github.com/sy264115809/techshow/internal/models"
	"github.com/sy264115809/techshow/internal/scheduler"
	"github.com/sy264115809/techshow/internal/telemetry"
)

// taskTimeout bounds one attempt of any background task
const taskTimeout = 30 * time.Second

// Background task names
const (
	taskMonitorLiveness = "monitorLiveness"
	taskReconcile       = "reconcileDuration"
	taskChatCreate      = "createChatRoom"
	taskChatDestroy     = "destroyChatRoom"
	taskChatMirror      = "sendMessage"
)

func parseTaskID(id string) (uuid.UUID, error) {
	return uuid.Parse(id)
}

// scheduleMonitor starts the liveness polling loop for a publishing channel
func (s *Service) scheduleMonitor(channelID int64, delay time.Duration) *scheduler.Handle {
	return s.enqueue(taskMonitorLiveness, channelID, scheduler.Options{Delay: delay}, func(ctx context.Context) scheduler.Outcome {
		return s.monitorLiveness(ctx, channelID)
	})
}

// scheduleReconcile schedules the duration reconciliation for a finished
// session
func (s *Service) scheduleReconcile(channelID int64, delay time.Duration) *scheduler.Handle {
	return s.enqueue(taskReconcile, channelID, scheduler.Options{Delay: delay, Backoff: s.cfg.ReconcileDelay}, func(ctx context.Context) scheduler.Outcome {
		return s.reconcileDuration(ctx, channelID)
	})
}

// scheduleChatCreate schedules chat room creation; retries are unbounded
// because a live channel without its room is worse than a late room
func (s *Service) scheduleChatCreate(channelID int64, title string) *scheduler.Handle {
	return s.enqueue(taskChatCreate, channelID, scheduler.Options{Backoff: s.cfg.ChatCreateBackoff}, func(ctx context.Context) scheduler.Outcome {
		return s.createChatRoom(ctx, channelID, title)
	})
}

// scheduleChatDestroy schedules chat room teardown with a bounded retry
// budget; a leaked empty room is tolerable
func (s *Service) scheduleChatDestroy(channelID int64) *scheduler.Handle {
	opts := scheduler.Options{Backoff: s.cfg.ChatDestroyBackoff, MaxAttempts: s.cfg.ChatDestroyAttempts}
	return s.enqueue(taskChatDestroy, channelID, opts, func(ctx context.Context) scheduler.Outcome {
		return s.destroyChatRoom(ctx, channelID)
	})
}

// scheduleChatMirror schedules mirroring one stored message into the live
// chat room
func (s *Service) scheduleChatMirror(channelID, authorID int64, content string) *scheduler.Handle {
	opts := scheduler.Options{Backoff: time.Second, MaxAttempts: s.cfg.MessageRetryAttempts + 1}
	return s.enqueue(taskChatMirror, channelID, opts, func(ctx context.Context) scheduler.Outcome {
		return s.mirrorMessage(ctx, channelID, authorID, content)
	})
}

// enqueue wraps a task function with the per-attempt timeout and hands it to
// the scheduler
func (s *Service) enqueue(name string, channelID int64, opts scheduler.Options, fn func(ctx context.Context) scheduler.Outcome) *scheduler.Handle {
	handle, err := s.sched.Enqueue(name, func() scheduler.Outcome {
		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		defer cancel()
		return fn(ctx)
	}, opts)
	if err != nil {
		logger.With("lifecycle").Error().
			Err(err).
			Str("task", name).
			Int64("channel_id", channelID).
			Msg("Failed to enqueue task")
		return nil
	}
	return handle
}

// monitorLiveness polls the stream provider while the channel is publishing.
// When the provider reports the stream dead, the monitor applies the same
// finish effect an explicit finish would, guarded against races with other
// finishers.
func (s *Service) monitorLiveness(ctx context.Context, channelID int64) scheduler.Outcome {
	channel, err := s.repos.Channels.GetByID(ctx, channelID)
	if err != nil {
		if db.IsNotFound(err) {
			return scheduler.Success("channel gone")
		}
		return scheduler.RetryAfterErr(s.cfg.MonitorInterval, err)
	}
	if !channel.IsPublishing() {
		// finished, banned or resumed elsewhere; this loop is obsolete
		return scheduler.Success("channel no longer publishing")
	}

	status, err := s.stream.Status(ctx, channel.StreamID)
	if err != nil {
		if gateway.IsTransient(err) {
			return scheduler.RetryAfterErr(s.cfg.MonitorInterval, err)
		}
		return scheduler.PermanentFailure(fmt.Errorf("query stream status: %w", err))
	}

	if status.Alive {
		return scheduler.RetryAfter(s.cfg.MonitorInterval)
	}

	applied, err := s.applyFinish(ctx, channelID, channel.OwnerID)
	if err != nil {
		return scheduler.RetryAfterErr(s.cfg.MonitorInterval, err)
	}
	if applied == nil {
		// someone else finished the channel between the read and the commit
		return scheduler.Success("channel already finished")
	}

	logger.With("lifecycle").Info().
		Int64("channel_id", channelID).
		Str("stream_id", channel.StreamID).
		Msg("Stream went offline, channel finished by monitor")

	return scheduler.Success("channel finished")
}

// reconcileDuration settles a finished session against the provider's
// recording metadata. The channel's timeline boundaries are overwritten with
// the segment boundaries, which are authoritative. A session that produced
// no recording at all is discarded.
func (s *Service) reconcileDuration(ctx context.Context, channelID int64) scheduler.Outcome {
	began := time.Now()

	channel, err := s.repos.Channels.GetByID(ctx, channelID)
	if err != nil {
		if db.IsNotFound(err) {
			return scheduler.Success("channel gone")
		}
		return scheduler.RetryAfterErr(s.cfg.ReconcileDelay, err)
	}
	if channel.Status != models.StatusCalculating && channel.Status != models.StatusBanned {
		return scheduler.Success("channel not awaiting reconciliation")
	}
	if channel.StartedAt == nil {
		return scheduler.PermanentFailure(fmt.Errorf("channel %d has no start time", channelID))
	}

	stoppedAt := time.Now().UTC()
	if channel.StoppedAt != nil {
		stoppedAt = *channel.StoppedAt
	}

	// The provider call stays outside the row lock; the guarded re-read
	// below catches any transition that happened meanwhile.
	segments, err := s.stream.Segments(ctx, channel.StreamID, channel.StartedAt.Unix(), stoppedAt.Unix())
	if err != nil {
		if gateway.IsTransient(err) {
			telemetry.CountReconcileFailure()
			return scheduler.RetryAfterErr(s.cfg.ReconcileDelay, err)
		}
		telemetry.CountReconcileFailure()
		return scheduler.PermanentFailure(fmt.Errorf("fetch segments: %w", err))
	}

	var outcome scheduler.Outcome
	err = s.repos.Channels.WithChannelLock(ctx, channelID, func(tx *gorm.DB, current *models.Channel) error {
		if current.Status != models.StatusCalculating && current.Status != models.StatusBanned {
			outcome = scheduler.Success("channel not awaiting reconciliation")
			return nil
		}

		if segments.Duration <= 0 || len(segments.Items) == 0 {
			if err := tx.Delete(&models.Channel{}, current.ID).Error; err != nil {
				return err
			}
			telemetry.CountDiscarded()
			logger.With("lifecycle").Warn().
				Int64("channel_id", channelID).
				Str("stream_id", current.StreamID).
				Msg("Discarded channel with no recording")
			outcome = scheduler.Success("channel discarded")
			return nil
		}

		first := segments.Items[0]
		last := segments.Items[len(segments.Items)-1]
		fields := map[string]interface{}{
			"duration":   segments.Duration,
			"started_at": time.Unix(first.Start, 0).UTC(),
			"stopped_at": time.Unix(last.End, 0).UTC(),
		}
		if current.Status == models.StatusCalculating {
			fields["status"] = models.StatusPublished
		}
		if err := tx.Model(&models.Channel{}).Where("id = ?", current.ID).Updates(fields).Error; err != nil {
			return err
		}

		if current.Status == models.StatusCalculating {
			telemetry.RecordTransition(string(models.StatusCalculating) + "->" + string(models.StatusPublished))
		}
		outcome = scheduler.Success(segments.Duration)
		return nil
	})
	if err != nil {
		if db.IsNotFound(err) {
			return scheduler.Success("channel gone")
		}
		telemetry.CountReconcileFailure()
		return scheduler.RetryAfterErr(s.cfg.ReconcileDelay, err)
	}

	telemetry.CountReconciliation()
	if telemetry.ReconcileDuration != nil {
		telemetry.ReconcileDuration.Observe(time.Since(began).Seconds())
	}

	logger.With("lifecycle").Info().
		Int64("channel_id", channelID).
		Int64("duration", segments.Duration).
		Msg("Channel reconciled")

	return outcome
}

// createChatRoom creates the external chat room for a live channel
func (s *Service) createChatRoom(ctx context.Context, channelID int64, title string) scheduler.Outcome {
	channel, err := s.repos.Channels.GetByID(ctx, channelID)
	if err != nil {
		if db.IsNotFound(err) {
			return scheduler.Success("channel gone")
		}
		return scheduler.RetryAfterErr(s.cfg.ChatCreateBackoff, err)
	}
	if !channel.IsPublishing() {
		return scheduler.Success("channel no longer publishing")
	}

	if err := s.chat.Create(ctx, channelID, title); err != nil {
		if gateway.IsTransient(err) {
			return scheduler.RetryAfterErr(s.cfg.ChatCreateBackoff, err)
		}
		return scheduler.PermanentFailure(fmt.Errorf("create chat room: %w", err))
	}

	logger.With("lifecycle").Debug().Int64("channel_id", channelID).Msg("Chat room created")
	return scheduler.Success(nil)
}

// destroyChatRoom tears down the external chat room after a session ends
func (s *Service) destroyChatRoom(ctx context.Context, channelID int64) scheduler.Outcome {
	if err := s.chat.Destroy(ctx, channelID); err != nil {
		if gateway.IsTransient(err) {
			return scheduler.RetryAfterErr(s.cfg.ChatDestroyBackoff, err)
		}
		return scheduler.PermanentFailure(fmt.Errorf("destroy chat room: %w", err))
	}

	logger.With("lifecycle").Debug().Int64("channel_id", channelID).Msg("Chat room destroyed")
	return scheduler.Success(nil)
}

// mirrorMessage publishes a stored message into the live chat room
func (s *Service) mirrorMessage(ctx context.Context, channelID, authorID int64, content string) scheduler.Outcome {
	if err := s.chat.Publish(ctx, channelID, authorID, content); err != nil {
		if gateway.IsTransient(err) {
			return scheduler.RetryAfterErr(time.Second, err)
		}
		return scheduler.PermanentFailure(fmt.Errorf("publish chat message: %w", err))
	}
	return scheduler.Success(nil)
}
