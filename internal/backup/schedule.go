package backup

import (
	"context"
	"time"

	"github.com/meeteat/pos/internal/apperr"
)

// DefaultTick is how often a Scheduler rereads the interval setting.
const DefaultTick = time.Minute

// Scheduler writes a backup every backup_interval_minutes. The interval is
// reread on each tick, so a settings change takes effect without a restart.
// An interval of 0 disables scheduled backups.
type Scheduler struct {
	m    *Manager
	tick time.Duration
	last time.Time
}

// NewScheduler creates a Scheduler whose first window starts now.
func NewScheduler(m *Manager, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{m: m, tick: tick, last: m.clock.Now()}
}

// Run checks the schedule every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			path, err := s.Step(ctx)
			switch {
			case apperr.Retryable(err):
				s.m.log.Debug("scheduled backup deferred", "error", err)
			case err != nil:
				s.m.log.Warn("scheduled backup failed", "error", err)
			case path != "":
				s.m.log.Info("scheduled backup written", "path", path)
			}
		}
	}
}

// Step runs a backup if the interval has elapsed since the last one and
// returns the path written, or "" when nothing was due.
func (s *Scheduler) Step(ctx context.Context) (string, error) {
	settings, err := s.m.Settings(ctx)
	if err != nil {
		return "", err
	}
	if settings.BackupIntervalMinutes <= 0 {
		return "", nil
	}

	now := s.m.clock.Now()
	if now.Sub(s.last) < time.Duration(settings.BackupIntervalMinutes)*time.Minute {
		return "", nil
	}

	path, err := s.m.Backup(ctx, "")
	if err != nil {
		return "", err
	}
	s.last = now
	return path, nil
}
