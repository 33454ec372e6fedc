// Package network implements the login TCP listener, the per-connection
// read/dispatch loop and the registry of live connections.
package network

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrConnClosed is returned when writing to a closed connection.
var ErrConnClosed = errors.New("connection is closed")

// Close reasons reported in logs, events and metrics.
const (
	ReasonPeerClosed      = "peer_closed"
	ReasonIOError         = "io_error"
	ReasonDecodeError     = "decode_error"
	ReasonPendingOverflow = "pending_overflow"
	ReasonIdle            = "idle_timeout"
	ReasonKicked          = "kicked"
	ReasonShutdown        = "shutdown"
	ReasonCapacity        = "capacity"
)

// Connection wraps one accepted login client. Reads happen only on the
// connection's own loop; writes and Close are safe from other goroutines.
type Connection struct {
	id     uint64
	conn   net.Conn
	remote string
	logger zerolog.Logger

	writeMu sync.Mutex

	connectedAt  time.Time
	lastActivity atomic.Int64 // unix nanos

	packetsIn atomic.Uint64
	bytesIn   atomic.Uint64
	bytesOut  atomic.Uint64

	mu          sync.Mutex
	account     string
	closed      bool
	closeReason string
}

// NewConnection wraps an accepted net.Conn under the given id.
func NewConnection(id uint64, conn net.Conn) *Connection {
	now := time.Now()
	remote := conn.RemoteAddr().String()
	c := &Connection{
		id:          id,
		conn:        conn,
		remote:      remote,
		connectedAt: now,
		logger: log.With().
			Str("component", "connection").
			Uint64("conn_id", id).
			Str("remote", remote).
			Logger(),
	}
	c.lastActivity.Store(now.UnixNano())
	return c
}

// ID returns the connection id.
func (c *Connection) ID() uint64 { return c.id }

// Remote returns the peer address.
func (c *Connection) Remote() string { return c.remote }

// Logger returns the per-connection logger.
func (c *Connection) Logger() zerolog.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

// Read reads from the socket into p and records activity.
func (c *Connection) Read(p []byte) (int, error) {
	n, err := c.conn.Read(p)
	if n > 0 {
		c.bytesIn.Add(uint64(n))
		c.touch()
	}
	return n, err
}

// Write sends pkt as one contiguous write.
func (c *Connection) Write(pkt []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.IsClosed() {
		return ErrConnClosed
	}

	n, err := c.conn.Write(pkt)
	c.bytesOut.Add(uint64(n))
	if err != nil {
		return fmt.Errorf("failed to write %d bytes: %w", len(pkt), err)
	}
	c.touch()
	return nil
}

// AddPackets records n decoded inbound packets.
func (c *Connection) AddPackets(n int) {
	if n > 0 {
		c.packetsIn.Add(uint64(n))
	}
}

// SetAccount records the account name once the client has logged in.
func (c *Connection) SetAccount(account string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if account != "" && account != c.account {
		c.account = account
		c.logger = c.logger.With().Str("account", account).Logger()
	}
}

// Close closes the connection once; later calls are no-ops. It reports
// whether this call closed it.
func (c *Connection) Close(reason string) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.closed = true
	c.closeReason = reason
	c.mu.Unlock()

	c.conn.Close()
	return true
}

// IsClosed returns whether the connection has been closed.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CloseReason returns why the connection was closed, or "".
func (c *Connection) CloseReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeReason
}

func (c *Connection) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the time of the last read or write.
func (c *Connection) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// ConnectedAt returns the time the connection was accepted.
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// ConnInfo is a point-in-time view of a connection.
type ConnInfo struct {
	ID           uint64    `json:"id"`
	Remote       string    `json:"remote"`
	Account      string    `json:"account,omitempty"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
	PacketsIn    uint64    `json:"packets_in"`
	BytesIn      uint64    `json:"bytes_in"`
	BytesOut     uint64    `json:"bytes_out"`
}

// Info returns a snapshot of the connection's state.
func (c *Connection) Info() ConnInfo {
	c.mu.Lock()
	account := c.account
	c.mu.Unlock()

	return ConnInfo{
		ID:           c.id,
		Remote:       c.remote,
		Account:      account,
		ConnectedAt:  c.connectedAt,
		LastActivity: c.LastActivity(),
		PacketsIn:    c.packetsIn.Load(),
		BytesIn:      c.bytesIn.Load(),
		BytesOut:     c.bytesOut.Load(),
	}
}
