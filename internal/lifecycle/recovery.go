package lifecycle

import (
	"context"
	"fmt"

	"github.com/sy264115809/techshow/internal/logger"
	"github.com/sy264115809/techshow/internal/models"
)

// RecoverInterrupted re-arms background tasks for channels whose loops were
// lost with the previous process. The channel rows are the durable record:
// every publishing channel gets its liveness monitor back and every stopped
// but unsettled channel gets a reconciliation. Runs once at boot, after the
// scheduler has started.
func (s *Service) RecoverInterrupted(ctx context.Context) error {
	publishing, err := s.repos.Channels.ListByStatus(ctx, models.StatusPublishing, nil, 0, 0)
	if err != nil {
		return fmt.Errorf("list publishing channels: %w", err)
	}
	for _, channel := range publishing {
		s.scheduleMonitor(channel.ID, s.cfg.MonitorInterval)
	}

	pending, err := s.repos.Channels.ListByStatus(ctx, models.StatusCalculating, nil, 0, 0)
	if err != nil {
		return fmt.Errorf("list calculating channels: %w", err)
	}

	banned, err := s.repos.Channels.ListByStatus(ctx, models.StatusBanned, nil, 0, 0)
	if err != nil {
		return fmt.Errorf("list banned channels: %w", err)
	}
	for _, channel := range banned {
		// A channel banned while live still owes its duration measurement
		if channel.StoppedAt != nil && channel.Duration == nil {
			pending = append(pending, channel)
		}
	}

	for _, channel := range pending {
		s.scheduleReconcile(channel.ID, s.cfg.ReconcileDelay)
	}

	if len(publishing) > 0 || len(pending) > 0 {
		logger.With("lifecycle").Info().
			Int("monitors", len(publishing)).
			Int("reconciliations", len(pending)).
			Msg("Re-armed background tasks for interrupted channels")
	}
	return nil
}
