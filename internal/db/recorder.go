package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shardgate-project/shardgate/internal/events"
)

const recorderHandler = "login_recorder"

// Recorder persists handshake events from the bus into the Store.
type Recorder struct {
	store  *Store
	bus    *events.EventBus
	logger zerolog.Logger
}

// NewRecorder creates a recorder; call Start to subscribe it.
func NewRecorder(store *Store, bus *events.EventBus) *Recorder {
	return &Recorder{
		store:  store,
		bus:    bus,
		logger: log.With().Str("component", "recorder").Logger(),
	}
}

// Start subscribes the recorder to every login event type.
func (r *Recorder) Start() {
	for _, t := range events.LoginEventTypes {
		r.bus.Subscribe(t, recorderHandler, r.Handle)
	}
}

// Stop unsubscribes the recorder.
func (r *Recorder) Stop() {
	for _, t := range events.LoginEventTypes {
		r.bus.Unsubscribe(t, recorderHandler)
	}
}

// Handle writes one event. Server select also records the issued session.
func (r *Recorder) Handle(ctx context.Context, e events.Event) error {
	ev, ok := toLoginEvent(e)
	if !ok {
		return nil
	}
	ev.CreatedAt = e.Time

	if _, err := r.store.RecordLoginEvent(ctx, ev); err != nil {
		return err
	}

	if p, ok := e.Payload.(events.ServerSelectPayload); ok && p.Account != "" {
		sess := Session{Key: p.Key, Account: p.Account, Remote: p.Remote, CreatedAt: e.Time}
		if err := r.store.RecordSession(ctx, sess); err != nil {
			return err
		}
		r.logger.Debug().Str("account", p.Account).Uint32("key", p.Key).Msg("session recorded")
	}
	return nil
}

func toLoginEvent(e events.Event) (LoginEvent, bool) {
	ev := LoginEvent{Kind: string(e.Type)}
	switch p := e.Payload.(type) {
	case events.LoginSeedPayload:
		ev.ConnID, ev.Remote, ev.Opcode = p.ConnID, p.Remote, 0xEF
		ev.Detail = fmt.Sprintf("seed=%08x version=%s", p.Seed, p.Version)
	case events.AccountLoginPayload:
		ev.ConnID, ev.Remote, ev.Account, ev.Opcode = p.ConnID, p.Remote, p.Account, 0x80
	case events.ServerSelectPayload:
		ev.ConnID, ev.Remote, ev.Account, ev.Opcode = p.ConnID, p.Remote, p.Account, 0xA0
		ev.Detail = fmt.Sprintf("index=%d key=%08x", p.Index, p.Key)
	case events.PostLoginPayload:
		ev.ConnID, ev.Remote, ev.Account, ev.Opcode = p.ConnID, p.Remote, p.Account, 0x91
		ev.Detail = fmt.Sprintf("key=%08x", p.Key)
	case events.UnknownOpcodePayload:
		ev.ConnID, ev.Remote, ev.Opcode = p.ConnID, p.Remote, int(p.Opcode)
		ev.Detail = fmt.Sprintf("count=%d", p.Count)
	case events.DecodeErrorPayload:
		ev.ConnID, ev.Remote, ev.Opcode = p.ConnID, p.Remote, int(p.Opcode)
		ev.Detail = fmt.Sprintf("%s: %s", p.Field, p.Error)
	default:
		return ev, false
	}
	return ev, true
}
