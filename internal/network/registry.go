package network

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ConnectionRegistry tracks live login connections by id.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[uint64]*Connection
}

// NewConnectionRegistry creates a new ConnectionRegistry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns: make(map[uint64]*Connection),
	}
}

// Register adds a connection to the registry.
func (r *ConnectionRegistry) Register(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[conn.ID()] = conn
	log.Debug().Uint64("conn_id", conn.ID()).Msg("connection registered")
}

// Unregister removes a connection from the registry without closing it.
func (r *ConnectionRegistry) Unregister(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[id]; ok {
		delete(r.conns, id)
		log.Debug().Uint64("conn_id", id).Msg("connection unregistered")
	}
}

// Get returns the connection with the given id.
func (r *ConnectionRegistry) Get(id uint64) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// List returns snapshots of all live connections ordered by id.
func (r *ConnectionRegistry) List() []ConnInfo {
	r.mu.RLock()
	out := make([]ConnInfo, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c.Info())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of live connections.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Kick closes the connection with the given id. The connection's own loop
// unregisters it.
func (r *ConnectionRegistry) Kick(id uint64) bool {
	conn, ok := r.Get(id)
	if !ok {
		return false
	}
	return conn.Close(ReasonKicked)
}

// CloseAll closes every live connection.
func (r *ConnectionRegistry) CloseAll(reason string) int {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	closed := 0
	for _, c := range conns {
		if c.Close(reason) {
			closed++
		}
	}
	if closed > 0 {
		log.Info().Int("count", closed).Str("reason", reason).Msg("connections closed")
	}
	return closed
}

// CleanStale closes connections inactive for longer than timeout.
func (r *ConnectionRegistry) CleanStale(timeout time.Duration) int {
	if timeout <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-timeout)

	r.mu.RLock()
	var stale []*Connection
	for _, c := range r.conns {
		if c.LastActivity().Before(cutoff) {
			stale = append(stale, c)
		}
	}
	r.mu.RUnlock()

	cleaned := 0
	for _, c := range stale {
		if c.Close(ReasonIdle) {
			cleaned++
			log.Warn().
				Uint64("conn_id", c.ID()).
				Time("last_activity", c.LastActivity()).
				Msg("cleaned stale connection")
		}
	}
	return cleaned
}
