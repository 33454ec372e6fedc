package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shardgate-project/shardgate/internal/events"
	"github.com/shardgate-project/shardgate/internal/protocol"
	"github.com/shardgate-project/shardgate/internal/telemetry"
)

// ErrBind wraps a failure to bind the login listener.
var ErrBind = errors.New("failed to bind login listener")

// Dispatcher consumes inbound bytes for one connection and queues the
// responses they trigger.
type Dispatcher interface {
	// Dispatch decodes complete packets from the start of buf and returns
	// how many bytes it consumed. A trailing partial packet is reported as
	// protocol.ErrIncompleteBuffer and left unconsumed.
	Dispatch(ctx context.Context, buf []byte) (int, error)

	// Drain passes each queued response to write, in order, until the
	// queue is empty or write fails.
	Drain(write func(pkt []byte) error) error

	// Account returns the account name seen so far, or "".
	Account() string

	// Packets returns the number of packets decoded so far.
	Packets() int
}

// DispatcherFactory creates the dispatcher of a newly accepted connection.
type DispatcherFactory func(conn *Connection) Dispatcher

// ListenerOptions configures a TCPListener.
type ListenerOptions struct {
	Addr            string
	ReadBufferSize  int
	MaxPendingBytes int
	MaxConnections  int // 0 = unlimited
}

// TCPListener accepts login clients and runs one read/dispatch loop per
// connection.
type TCPListener struct {
	opts     ListenerOptions
	registry *ConnectionRegistry
	eventBus *events.EventBus
	metrics  *telemetry.Metrics
	factory  DispatcherFactory
	logger   zerolog.Logger

	listener net.Listener
	nextID   atomic.Uint64
	wg       sync.WaitGroup
}

// NewTCPListener creates a new TCP listener. metrics may be nil.
func NewTCPListener(opts ListenerOptions, registry *ConnectionRegistry, eventBus *events.EventBus,
	metrics *telemetry.Metrics, factory DispatcherFactory) *TCPListener {
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = 4096
	}
	if opts.MaxPendingBytes < opts.ReadBufferSize {
		opts.MaxPendingBytes = opts.ReadBufferSize
	}
	return &TCPListener{
		opts:     opts,
		registry: registry,
		eventBus: eventBus,
		metrics:  metrics,
		factory:  factory,
		logger:   log.With().Str("component", "tcp_listener").Logger(),
	}
}

// Listen binds the listener socket. A failure wraps ErrBind.
func (l *TCPListener) Listen(ctx context.Context) error {
	lc := ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", l.opts.Addr)
	if err != nil {
		return fmt.Errorf("%w on %s: %v", ErrBind, l.opts.Addr, err)
	}
	l.listener = ln
	l.logger.Info().Str("addr", ln.Addr().String()).Msg("login listener started")
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (l *TCPListener) Addr() net.Addr {
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// Start binds (if needed) and accepts connections until ctx is cancelled.
func (l *TCPListener) Start(ctx context.Context) error {
	if l.listener == nil {
		if err := l.Listen(ctx); err != nil {
			return err
		}
	}

	stop := context.AfterFunc(ctx, func() { l.listener.Close() })
	defer stop()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				l.logger.Info().Msg("login listener stopping")
				return nil
			}
			l.logger.Error().Err(err).Msg("failed to accept connection")
			continue
		}

		if max := l.opts.MaxConnections; max > 0 && l.registry.Count() >= max {
			l.logger.Warn().
				Str("remote", conn.RemoteAddr().String()).
				Int("max", max).
				Str("reason", ReasonCapacity).
				Msg("connection limit reached, refusing client")
			conn.Close()
			l.metrics.ConnRefused(ReasonCapacity)
			continue
		}

		c := NewConnection(l.nextID.Add(1), conn)
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handleConnection(ctx, c)
		}()
	}
}

// Stop closes the listener socket. Live connections are not touched.
func (l *TCPListener) Stop() error {
	if l.listener != nil {
		return l.listener.Close()
	}
	return nil
}

// Wait blocks until every connection loop has returned.
func (l *TCPListener) Wait() {
	l.wg.Wait()
}

// handleConnection runs the read/dispatch loop of one client until the
// peer disconnects, an I/O or decode error occurs, or ctx is cancelled.
func (l *TCPListener) handleConnection(ctx context.Context, conn *Connection) {
	l.registry.Register(conn)
	l.metrics.ConnOpened()
	logger := conn.Logger()
	logger.Info().Msg("client connected")

	l.eventBus.Emit(ctx, events.Event{
		Type:    events.EventConnectionOpened,
		Source:  conn.Remote(),
		Payload: events.ConnectionPayload{ConnID: conn.ID(), Remote: conn.Remote()},
	})

	stop := context.AfterFunc(ctx, func() { conn.Close(ReasonShutdown) })
	reason := l.serve(ctx, conn)
	stop()

	if !conn.Close(reason) {
		// Closed elsewhere (kick, idle cleanup, shutdown).
		reason = conn.CloseReason()
	}
	l.registry.Unregister(conn.ID())
	l.metrics.ConnClosed(reason)

	info := conn.Info()
	closeLogger := conn.Logger()
	closeLogger.Info().
		Str("reason", reason).
		Uint64("packets", info.PacketsIn).
		Uint64("bytes_in", info.BytesIn).
		Uint64("bytes_out", info.BytesOut).
		Msg("client disconnected")

	l.eventBus.Emit(context.WithoutCancel(ctx), events.Event{
		Type:   events.EventConnectionClosed,
		Source: conn.Remote(),
		Payload: events.ConnectionPayload{
			ConnID:   conn.ID(),
			Remote:   conn.Remote(),
			Reason:   reason,
			BytesIn:  info.BytesIn,
			BytesOut: info.BytesOut,
		},
	})
}

// serve is the read loop proper. It returns the close reason.
func (l *TCPListener) serve(ctx context.Context, conn *Connection) string {
	d := l.factory(conn)
	chunk := make([]byte, l.opts.ReadBufferSize)
	pending := make([]byte, 0, l.opts.ReadBufferSize)

	write := func(pkt []byte) error {
		if err := conn.Write(pkt); err != nil {
			return err
		}
		l.metrics.BytesOut(len(pkt))
		return nil
	}

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			l.metrics.BytesIn(n)
			pending = append(pending, chunk[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ReasonPeerClosed
			}
			if conn.IsClosed() || ctx.Err() != nil {
				return ReasonShutdown
			}
			lg := conn.Logger()
			lg.Debug().Err(err).Msg("read failed")
			return ReasonIOError
		}
		if n == 0 {
			return ReasonPeerClosed
		}

		before := d.Packets()
		consumed, derr := d.Dispatch(ctx, pending)
		conn.AddPackets(d.Packets() - before)
		conn.SetAccount(d.Account())
		pending = append(pending[:0], pending[consumed:]...)

		if werr := d.Drain(write); werr != nil {
			lg := conn.Logger()
			lg.Debug().Err(werr).Msg("write failed")
			return ReasonIOError
		}

		switch {
		case derr == nil:
		case errors.Is(derr, protocol.ErrIncompleteBuffer):
			if len(pending) > l.opts.MaxPendingBytes {
				lg := conn.Logger()
				lg.Warn().
					Int("pending", len(pending)).
					Int("max", l.opts.MaxPendingBytes).
					Msg("pending bytes exceed limit")
				return ReasonPendingOverflow
			}
		default:
			lg := conn.Logger()
			lg.Warn().Err(derr).Msg("closing connection on decode error")
			return ReasonDecodeError
		}
	}
}
