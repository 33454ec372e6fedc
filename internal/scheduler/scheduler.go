// Package scheduler runs background housekeeping for the login server:
// daily pruning of the handshake audit log and periodic stats logging.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shardgate-project/shardgate/internal/config"
	"github.com/shardgate-project/shardgate/internal/huffman"
	"github.com/shardgate-project/shardgate/internal/network"
)

// AuditStore is the part of the login store the scheduler maintains.
type AuditStore interface {
	PruneLoginEvents(ctx context.Context, olderThan time.Time) (int64, error)
	PruneSessions(ctx context.Context, olderThan time.Time) (int64, error)
	CountByKind(ctx context.Context) (map[string]int64, error)
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg      *config.Config
	store    AuditStore // nil when storage is disabled
	registry *network.ConnectionRegistry
	cache    *huffman.Cache
	logger   zerolog.Logger
	now      func() time.Time
}

// NewScheduler creates a new task scheduler.
func NewScheduler(cfg *config.Config, store AuditStore, registry *network.ConnectionRegistry, cache *huffman.Cache) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		registry: registry,
		cache:    cache,
		logger:   log.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
	}
}

// Start runs all scheduled tasks and blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	app := s.cfg.GetApplicationData()
	s.logger.Info().Msg("scheduler started")

	if app.AuditCleaner.Enabled && s.store != nil {
		go s.runAuditCleanerLoop(ctx)
	}
	if app.Timers.StatsLogInterval > 0 {
		go s.runStatsLoop(ctx, time.Duration(app.Timers.StatsLogInterval)*time.Second)
	}

	<-ctx.Done()
	s.logger.Info().Msg("scheduler stopped")
}

// runAuditCleanerLoop prunes the audit log daily at the configured time.
func (s *Scheduler) runAuditCleanerLoop(ctx context.Context) {
	for {
		nextRun := nextCleanupTime(s.now(), s.cfg.GetApplicationData().AuditCleaner.CleanupTime)
		sleep := nextRun.Sub(s.now())

		s.logger.Info().
			Time("next_run", nextRun).
			Dur("sleep", sleep).
			Msg("audit cleaner scheduled")

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.RunAuditCleaner(ctx)
		}
	}
}

// RunAuditCleaner deletes audit events and sessions older than the
// retention window.
func (s *Scheduler) RunAuditCleaner(ctx context.Context) {
	if s.store == nil {
		return
	}
	days := s.cfg.GetApplicationData().AuditCleaner.RetentionDays
	if days < 1 {
		days = 1
	}
	cutoff := s.now().AddDate(0, 0, -days)

	events, err := s.store.PruneLoginEvents(ctx, cutoff)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to prune login events")
	}
	sessions, err := s.store.PruneSessions(ctx, cutoff)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to prune sessions")
	}

	s.logger.Info().
		Int("retention_days", days).
		Int64("deleted_events", events).
		Int64("deleted_sessions", sessions).
		Msg("audit cleaner completed")
}

func (s *Scheduler) runStatsLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.LogStats(ctx)
		}
	}
}

// LogStats writes a summary of connections, handshakes and compression.
func (s *Scheduler) LogStats(ctx context.Context) {
	stats := s.cache.Stats()
	ev := s.logger.Info().
		Int("connections", s.registry.Count()).
		Uint64("cache_hits", stats.Hits).
		Uint64("cache_misses", stats.Misses)

	if s.store != nil {
		if counts, err := s.store.CountByKind(ctx); err == nil {
			d := zerolog.Dict()
			for kind, n := range counts {
				d.Int64(kind, n)
			}
			ev = ev.Dict("logins", d)
		} else {
			s.logger.Warn().Err(err).Msg("failed to count login events")
		}
	}
	ev.Msg("login stats")
}

// nextCleanupTime returns the next occurrence of the HH:MM clock time after
// now. An unparsable value falls back to 04:00.
func nextCleanupTime(now time.Time, hhmm string) time.Time {
	hour, minute := 4, 0
	if t, err := time.Parse("15:04", hhmm); err == nil {
		hour, minute = t.Hour(), t.Minute()
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
