// Package health runs the periodic heartbeat and idle-connection checks of
// the login server.
package health

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shardgate-project/shardgate/internal/config"
	"github.com/shardgate-project/shardgate/internal/events"
	"github.com/shardgate-project/shardgate/internal/network"
	"github.com/shardgate-project/shardgate/internal/util"
)

// Manager runs periodic health checks.
type Manager struct {
	cfg       *config.Config
	eventBus  *events.EventBus
	registry  *network.ConnectionRegistry
	logger    zerolog.Logger
	startedAt time.Time

	// Host probes, replaceable in tests.
	cpuUsage func() (float64, error)
	memUsage func() (*util.MemoryUsage, error)
}

// NewManager creates a new health check manager.
func NewManager(cfg *config.Config, eventBus *events.EventBus, registry *network.ConnectionRegistry) *Manager {
	return &Manager{
		cfg:       cfg,
		eventBus:  eventBus,
		registry:  registry,
		logger:    log.With().Str("component", "health").Logger(),
		startedAt: time.Now(),
		cpuUsage:  util.GetCPUUsage,
		memUsage:  util.GetMemoryUsage,
	}
}

// Start launches the checks and blocks until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	timers := m.cfg.GetApplicationData().Timers
	idleTimeout := time.Duration(m.cfg.GetShardData().IdleTimeoutSec) * time.Second

	checks := []struct {
		name     string
		interval int
		fn       func(context.Context)
	}{
		{"heartbeat", timers.HeartbeatInterval, m.Heartbeat},
		{"idle_connections", timers.IdleCheckInterval, func(context.Context) { m.CleanIdle(idleTimeout) }},
	}
	if idleTimeout <= 0 {
		checks = checks[:1]
	}

	started := 0
	for _, check := range checks {
		check := check
		if check.interval <= 0 {
			continue
		}
		started++
		go func() {
			ticker := time.NewTicker(time.Duration(check.interval) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					check.fn(ctx)
				}
			}
		}()
	}

	m.logger.Info().Int("checks", started).Msg("health check manager started")
	<-ctx.Done()
	m.logger.Info().Msg("health check manager stopped")
}

// Heartbeat emits a snapshot of connection count and host usage.
func (m *Manager) Heartbeat(ctx context.Context) {
	payload := events.HeartbeatPayload{
		Connections: m.registry.Count(),
		UptimeSec:   int64(time.Since(m.startedAt).Seconds()),
	}
	if cpu, err := m.cpuUsage(); err == nil {
		payload.CPUPercent = cpu
	} else {
		m.logger.Debug().Err(err).Msg("cpu usage unavailable")
	}
	if mem, err := m.memUsage(); err == nil {
		payload.MemPercent = mem.UsedPercent
	} else {
		m.logger.Debug().Err(err).Msg("memory usage unavailable")
	}

	m.logger.Debug().
		Int("connections", payload.Connections).
		Float64("cpu", payload.CPUPercent).
		Float64("mem", payload.MemPercent).
		Msg("heartbeat")

	m.eventBus.Emit(ctx, events.Event{
		Type:    events.EventHeartbeat,
		Source:  "health",
		Payload: payload,
	})
}

// CleanIdle closes connections idle for longer than timeout.
func (m *Manager) CleanIdle(timeout time.Duration) int {
	cleaned := m.registry.CleanStale(timeout)
	if cleaned > 0 {
		m.logger.Info().Int("cleaned", cleaned).Dur("timeout", timeout).Msg("closed idle connections")
	}
	return cleaned
}
