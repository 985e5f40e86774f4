package background

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// SessionSweeper removes expired session records
type SessionSweeper interface {
	CleanupExpiredSessions(ctx context.Context) (int, error)
}

// EventTrimmer trims security events past the retention horizon
type EventTrimmer interface {
	DeleteOlderThan(ctx context.Context, retentionDays int) (int64, error)
}

// CleanupConfig holds the schedules for the background jobs
type CleanupConfig struct {
	SessionSweepSchedule   string // cron expression, e.g. "*/5 * * * *"
	EventRetentionSchedule string // cron expression, e.g. "0 3 * * *"
	EventRetentionDays     int
}

// CleanupManager runs the periodic session sweep and event retention jobs.
// Both operate per-record and tolerate concurrent normal traffic.
type CleanupManager struct {
	sessions SessionSweeper
	events   EventTrimmer
	config   CleanupConfig
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(sessions SessionSweeper, events EventTrimmer, config CleanupConfig, logger *slog.Logger) *CleanupManager {
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
	)))

	return &CleanupManager{
		sessions: sessions,
		events:   events,
		config:   config,
		logger:   logger,
		cron:     c,
	}
}

// Start registers the jobs and starts the scheduler. The session sweep also
// runs once immediately so a restart does not leave stale records lingering
// until the next tick.
func (cm *CleanupManager) Start() error {
	if _, err := cm.cron.AddFunc(cm.config.SessionSweepSchedule, cm.runSessionSweep); err != nil {
		return fmt.Errorf("invalid session sweep schedule %q: %w", cm.config.SessionSweepSchedule, err)
	}

	if cm.events != nil {
		if _, err := cm.cron.AddFunc(cm.config.EventRetentionSchedule, cm.runEventRetention); err != nil {
			return fmt.Errorf("invalid event retention schedule %q: %w", cm.config.EventRetentionSchedule, err)
		}
	}

	go cm.runSessionSweep()
	cm.cron.Start()
	cm.logger.Info("cleanup scheduler started",
		slog.String("session_sweep", cm.config.SessionSweepSchedule),
		slog.String("event_retention", cm.config.EventRetentionSchedule))

	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (cm *CleanupManager) Stop() {
	ctx := cm.cron.Stop()
	<-ctx.Done()
	cm.logger.Info("cleanup scheduler stopped")
}

func (cm *CleanupManager) runSessionSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := cm.sessions.CleanupExpiredSessions(ctx)
	if err != nil {
		cm.logger.Error("session sweep failed", slog.Any("error", err))
		return
	}
	if removed > 0 {
		cm.logger.Info("session sweep completed", slog.Int("removed", removed))
	}
}

func (cm *CleanupManager) runEventRetention() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	trimmed, err := cm.events.DeleteOlderThan(ctx, cm.config.EventRetentionDays)
	if err != nil {
		cm.logger.Error("event retention failed", slog.Any("error", err))
		return
	}
	if trimmed > 0 {
		cm.logger.Info("event retention completed", slog.Int64("trimmed", trimmed))
	}
}
