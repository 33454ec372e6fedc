// Package login drives the login handshake: it turns decoded client packets
// into server responses, one Dispatcher per connection.
package login

import (
	"context"
	"errors"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shardgate-project/shardgate/internal/db"
	"github.com/shardgate-project/shardgate/internal/events"
	"github.com/shardgate-project/shardgate/internal/huffman"
	"github.com/shardgate-project/shardgate/internal/protocol"
	"github.com/shardgate-project/shardgate/internal/telemetry"
)

const tracerName = "github.com/shardgate-project/shardgate/internal/login"

// SessionLookup finds the session issued on server select.
type SessionLookup interface {
	LookupSession(ctx context.Context, key uint32, account string) (*db.Session, error)
}

// Service holds what every connection's dispatcher shares.
type Service struct {
	responses Responses
	cache     *huffman.Cache
	bus       *events.EventBus
	metrics   *telemetry.Metrics
	sessions  SessionLookup
	tracer    trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithCache memoizes compressed responses.
func WithCache(c *huffman.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithMetrics records packet and compression metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSessions verifies post-login keys against stored sessions.
func WithSessions(l SessionLookup) Option {
	return func(s *Service) { s.sessions = l }
}

// NewService creates a login service. bus may be nil.
func NewService(responses Responses, bus *events.EventBus, opts ...Option) *Service {
	s := &Service{
		responses: responses,
		bus:       bus,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Responses returns the configured responses.
func (s *Service) Responses() Responses { return s.responses }

// NewDispatcher creates the dispatcher of one connection.
func (s *Service) NewDispatcher(connID uint64, remote string, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		svc:    s,
		parser: protocol.NewParser(logger),
		out:    queue.New(),
		connID: connID,
		remote: remote,
		logger: logger,
	}
}

// Dispatcher decodes the packets of one connection and queues the responses.
// It is not safe for concurrent use; only the connection's loop calls it.
type Dispatcher struct {
	svc    *Service
	parser *protocol.Parser
	out    *queue.Queue

	connID  uint64
	remote  string
	logger  zerolog.Logger
	account string
	packets int
}

// Dispatch decodes every complete packet at the start of buf, in order, and
// returns the number of bytes consumed. A trailing partial packet stops the
// loop with protocol.ErrIncompleteBuffer. A packet that fails to decode is
// consumed, reported and returned as the error.
func (d *Dispatcher) Dispatch(ctx context.Context, buf []byte) (int, error) {
	off := 0
	for off < len(buf) {
		pkt, n, err := d.parser.Next(buf[off:])
		if err != nil {
			if errors.Is(err, protocol.ErrIncompleteBuffer) {
				return off, err
			}
			d.decodeFailed(ctx, buf[off], err)
			return off + n, err
		}
		off += n
		d.packets++
		d.handle(ctx, pkt)
	}
	return off, nil
}

// Drain writes queued responses in order. A response stays queued if its
// write fails.
func (d *Dispatcher) Drain(write func(pkt []byte) error) error {
	for d.out.Length() > 0 {
		pkt := d.out.Peek().([]byte)
		if err := write(pkt); err != nil {
			return err
		}
		d.out.Remove()
	}
	return nil
}

// Pending returns the number of queued responses.
func (d *Dispatcher) Pending() int { return d.out.Length() }

// Account returns the account name the client logged in with, or "".
func (d *Dispatcher) Account() string { return d.account }

// Packets returns the number of packets decoded so far.
func (d *Dispatcher) Packets() int { return d.packets }

func (d *Dispatcher) handle(ctx context.Context, pkt protocol.Packet) {
	name := protocol.OpcodeName(pkt.Opcode())
	ctx, span := d.svc.tracer.Start(ctx, "login."+name, trace.WithAttributes(
		attribute.Int64("conn_id", int64(d.connID)),
		attribute.String("opcode", protocol.FormatOpcode(pkt.Opcode())),
	))
	defer span.End()

	d.svc.metrics.Packet(name)

	switch p := pkt.(type) {
	case protocol.LoginSeed:
		d.logger.Debug().
			Uint32("seed", p.Seed).
			Str("version", p.Version()).
			Msg("login seed")
		d.emit(ctx, events.EventLoginSeed, events.LoginSeedPayload{
			ConnID: d.connID, Remote: d.remote, Seed: p.Seed, Version: p.Version(),
		})

	case protocol.AccountLogin:
		d.account = p.Username
		span.SetAttributes(attribute.String("account", p.Username))
		d.logger.Info().Str("account", p.Username).Msg("account login")
		d.enqueue(protocol.OpServerList, d.svc.responses.ServerList())
		d.emit(ctx, events.EventAccountLogin, events.AccountLoginPayload{
			ConnID: d.connID, Remote: d.remote, Account: p.Username,
		})

	case protocol.ServerSelect:
		key := d.svc.responses.SessionKey
		d.logger.Info().
			Uint16("index", p.Index).
			Uint32("key", key).
			Msg("server selected, redirecting")
		d.enqueue(protocol.OpServerRedirect, d.svc.responses.Redirect())
		d.emit(ctx, events.EventServerSelect, events.ServerSelectPayload{
			ConnID: d.connID, Remote: d.remote, Account: d.account, Index: p.Index, Key: key,
		})

	case protocol.PostLogin:
		d.account = p.Username
		span.SetAttributes(attribute.String("account", p.Username))
		d.verifySession(ctx, p)
		d.enqueue(protocol.OpFeatures, d.compress(d.svc.responses.Features()))
		d.enqueue(protocol.OpCharacterList, d.compress(d.svc.responses.CharacterList()))
		d.emit(ctx, events.EventPostLogin, events.PostLoginPayload{
			ConnID: d.connID, Remote: d.remote, Account: p.Username, Key: p.Key,
		})

	case protocol.Ping:
		d.logger.Trace().Uint8("seq", p.Sequence).Msg("ping")

	case protocol.Unknown:
		d.svc.metrics.DecodeError("unknown_opcode")
		span.SetAttributes(attribute.Int("count", p.Count))
		d.emit(ctx, events.EventUnknownOpcode, events.UnknownOpcodePayload{
			ConnID: d.connID, Remote: d.remote, Opcode: p.Op, Count: p.Count,
		})
	}
}

func (d *Dispatcher) verifySession(ctx context.Context, p protocol.PostLogin) {
	if d.svc.sessions == nil {
		return
	}
	_, err := d.svc.sessions.LookupSession(ctx, p.Key, p.Username)
	switch {
	case err == nil:
		d.logger.Debug().Uint32("key", p.Key).Msg("session verified")
	case errors.Is(err, db.ErrSessionNotFound):
		d.logger.Warn().
			Uint32("key", p.Key).
			Str("account", p.Username).
			Msg("post-login without a matching session")
	default:
		d.logger.Warn().Err(err).Msg("session lookup failed")
	}
}

func (d *Dispatcher) decodeFailed(ctx context.Context, op byte, err error) {
	_, span := d.svc.tracer.Start(ctx, "login.decode_error")
	span.RecordError(err)
	span.SetStatus(codes.Error, "decode failed")
	span.End()

	field := ""
	kind := "decode"
	var de *protocol.DecodeError
	if errors.As(err, &de) {
		field = de.Field
	}
	if errors.Is(err, protocol.ErrInvalidUTF8) {
		kind = "invalid_utf8"
	}
	d.svc.metrics.DecodeError(kind)

	d.logger.Warn().
		Err(err).
		Str("opcode", protocol.FormatOpcode(op)).
		Str("field", field).
		Msg("packet decode failed")
	d.emit(ctx, events.EventDecodeError, events.DecodeErrorPayload{
		ConnID: d.connID, Remote: d.remote, Opcode: op, Field: field, Error: err.Error(),
	})
}

func (d *Dispatcher) compress(raw []byte) []byte {
	out, hit := d.svc.cache.Compress(raw)
	if d.svc.cache != nil {
		d.svc.metrics.CacheLookup(hit)
	}
	d.svc.metrics.Compressed(len(raw), len(out))
	return out
}

func (d *Dispatcher) enqueue(op byte, pkt []byte) {
	d.logger.Debug().
		Str("opcode", protocol.FormatOpcode(op)).
		Int("len", len(pkt)).
		Msg("response queued")
	d.out.Add(pkt)
}

func (d *Dispatcher) emit(ctx context.Context, t events.EventType, payload interface{}) {
	if d.svc.bus == nil {
		return
	}
	d.svc.bus.Emit(ctx, events.Event{Type: t, Source: d.remote, Payload: payload})
}
