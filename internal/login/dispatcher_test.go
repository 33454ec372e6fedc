package login

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/shardgate-project/shardgate/internal/config"
	"github.com/shardgate-project/shardgate/internal/db"
	"github.com/shardgate-project/shardgate/internal/events"
	"github.com/shardgate-project/shardgate/internal/huffman"
	"github.com/shardgate-project/shardgate/internal/protocol"
	"github.com/shardgate-project/shardgate/internal/telemetry"
)

func fixed(s string, width int) []byte {
	b := make([]byte, width)
	copy(b, s)
	return b
}

func accountLoginPacket(user, pass string) []byte {
	pkt := []byte{protocol.OpAccountLogin}
	pkt = append(pkt, fixed(user, 30)...)
	pkt = append(pkt, fixed(pass, 30)...)
	return append(pkt, 0x00)
}

func postLoginPacket(key uint32, user, pass string) []byte {
	pkt := []byte{protocol.OpPostLogin, byte(key >> 24), byte(key >> 16), byte(key >> 8), byte(key)}
	pkt = append(pkt, fixed(user, 30)...)
	return append(pkt, fixed(pass, 30)...)
}

func testResponses() Responses {
	sd := config.DefaultConfig().ShardData
	sd.Characters = []string{"Hero"}
	sd.Cities = []config.CityConfig{{Name: "Britain", Building: "Inn"}}
	return ResponsesFromConfig(sd)
}

func drainAll(t *testing.T, d *Dispatcher) [][]byte {
	t.Helper()
	var out [][]byte
	if err := d.Drain(func(pkt []byte) error {
		out = append(out, pkt)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	return out
}

func newDispatcher(opts ...Option) *Dispatcher {
	return NewService(testResponses(), nil, opts...).NewDispatcher(1, "127.0.0.1:5000", zerolog.Nop())
}

func TestAccountLoginReturnsServerList(t *testing.T) {
	d := newDispatcher()
	buf := accountLoginPacket("alice", "secret")

	n, err := d.Dispatch(context.Background(), buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != 62 {
		t.Fatalf("consumed %d, want 62", n)
	}

	out := drainAll(t, d)
	if len(out) != 1 {
		t.Fatalf("got %d responses, want 1", len(out))
	}
	pkt := out[0]
	if len(pkt) != 46 || pkt[0] != protocol.OpServerList {
		t.Fatalf("bad server list: % x", pkt)
	}
	if count := int(pkt[4])<<8 | int(pkt[5]); count != 1 {
		t.Fatalf("server count = %d", count)
	}
	if name := string(bytes.TrimRight(pkt[8:40], "\x00")); name != config.DefaultShardName {
		t.Fatalf("shard name = %q", name)
	}
	if d.Account() != "alice" || d.Packets() != 1 {
		t.Fatalf("account=%q packets=%d", d.Account(), d.Packets())
	}
}

func TestServerSelectReturnsRedirect(t *testing.T) {
	d := newDispatcher()
	if _, err := d.Dispatch(context.Background(), []byte{protocol.OpServerSelect, 0x00, 0x00}); err != nil {
		t.Fatal(err)
	}
	out := drainAll(t, d)
	want := []byte{0x8C, 127, 0, 0, 1, 0x0A, 0x21, 0x43, 0x2F, 0x3F, 0xF0}
	if len(out) != 1 || !bytes.Equal(out[0], want) {
		t.Fatalf("redirect = % x, want % x", out, want)
	}
}

type fakeSessions struct {
	calls int
	err   error
}

func (f *fakeSessions) LookupSession(ctx context.Context, key uint32, account string) (*db.Session, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &db.Session{Key: key, Account: account}, nil
}

func TestPostLoginSendsCompressedFeaturesThenCharacters(t *testing.T) {
	sessions := &fakeSessions{err: db.ErrSessionNotFound}
	reg := prometheus.NewRegistry()
	d := newDispatcher(
		WithCache(huffman.NewCache(8)),
		WithMetrics(telemetry.NewMetrics(reg)),
		WithSessions(sessions),
	)
	resp := d.svc.Responses()

	buf := postLoginPacket(resp.SessionKey, "alice", "secret")
	if _, err := d.Dispatch(context.Background(), buf); err != nil {
		t.Fatal(err)
	}
	out := drainAll(t, d)
	if len(out) != 2 {
		t.Fatalf("got %d responses, want 2", len(out))
	}
	if want := huffman.Compress(resp.Features()); !bytes.Equal(out[0], want) {
		t.Fatalf("features = % x, want % x", out[0], want)
	}
	if want := huffman.Compress(resp.CharacterList()); !bytes.Equal(out[1], want) {
		t.Fatalf("character list = % x, want % x", out[1], want)
	}
	if sessions.calls != 1 {
		t.Fatalf("session lookups = %d", sessions.calls)
	}

	// Second post-login is served from the cache.
	d.Dispatch(context.Background(), buf)
	drainAll(t, d)
	if st := d.svc.cache.Stats(); st.Hits != 2 || st.Misses != 2 {
		t.Fatalf("cache stats = %+v", st)
	}
}

func TestDispatchIncompleteKeepsTail(t *testing.T) {
	seed := make([]byte, 21)
	seed[0] = protocol.OpLoginSeed
	buf := append(seed, accountLoginPacket("bob", "pw")[:10]...)

	d := newDispatcher()
	n, err := d.Dispatch(context.Background(), buf)
	if !errors.Is(err, protocol.ErrIncompleteBuffer) {
		t.Fatalf("err = %v, want ErrIncompleteBuffer", err)
	}
	if n != 21 {
		t.Fatalf("consumed %d, want 21", n)
	}
	if d.Pending() != 0 {
		t.Fatal("partial packet produced a response")
	}
}

func TestDispatchSkipsUnknownAndPing(t *testing.T) {
	buf := []byte{0x01, 0x02, protocol.OpPing, 0x07, 0x03}
	buf = append(buf, protocol.OpServerSelect, 0x00, 0x01)

	d := newDispatcher()
	n, err := d.Dispatch(context.Background(), buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(buf) {
		t.Fatalf("consumed %d, want %d", n, len(buf))
	}
	// Two unknown runs, one ping and one server select.
	if d.Packets() != 4 {
		t.Fatalf("packets = %d, want 4", d.Packets())
	}
	if out := drainAll(t, d); len(out) != 1 || out[0][0] != protocol.OpServerRedirect {
		t.Fatalf("responses = % x", out)
	}
}

func TestDispatchFoldsGarbageIntoOneEventPerRun(t *testing.T) {
	bus := events.NewEventBus()
	var (
		mu       sync.Mutex
		payloads []events.UnknownOpcodePayload
	)
	bus.Subscribe(events.EventUnknownOpcode, "test", func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		payloads = append(payloads, e.Payload.(events.UnknownOpcodePayload))
		return nil
	})

	d := NewService(testResponses(), bus).NewDispatcher(1, "127.0.0.1:5000", zerolog.Nop())
	garbage := make([]byte, 4096)
	const reads = 4
	for i := 0; i < reads; i++ {
		n, err := d.Dispatch(context.Background(), garbage)
		if err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
		if n != len(garbage) {
			t.Fatalf("consumed %d, want %d", n, len(garbage))
		}
	}
	bus.Stop()

	if d.Packets() != reads {
		t.Fatalf("packets = %d, want %d", d.Packets(), reads)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(payloads) != reads {
		t.Fatalf("got %d unknown-opcode events, want %d", len(payloads), reads)
	}
	for _, p := range payloads {
		if p.Count != len(garbage) || p.Opcode != 0x00 {
			t.Fatalf("payload = %+v", p)
		}
	}
}

func TestDispatchDecodeErrorStops(t *testing.T) {
	bad := accountLoginPacket("alice", "secret")
	bad[1] = 0xFF // invalid UTF-8 in username
	buf := append(bad, protocol.OpServerSelect, 0x00, 0x00)

	d := newDispatcher()
	n, err := d.Dispatch(context.Background(), buf)
	var de *protocol.DecodeError
	if !errors.As(err, &de) || de.Field != "username" {
		t.Fatalf("err = %v, want username DecodeError", err)
	}
	if n != 62 {
		t.Fatalf("consumed %d, want 62", n)
	}
	if d.Pending() != 0 {
		t.Fatal("responses queued after decode error")
	}
}

func TestDrainKeepsUnwrittenResponses(t *testing.T) {
	d := newDispatcher()
	d.Dispatch(context.Background(), append(accountLoginPacket("a", "b"), protocol.OpServerSelect, 0, 0))

	boom := errors.New("boom")
	if err := d.Drain(func([]byte) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if d.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", d.Pending())
	}
	if out := drainAll(t, d); len(out) != 2 || out[0][0] != protocol.OpServerList {
		t.Fatal("order not preserved")
	}
}

func TestResponsesFromConfig(t *testing.T) {
	sd := config.DefaultConfig().ShardData
	sd.ShardAddress = "10.0.0.5"
	sd.Cities = []config.CityConfig{{Name: "A"}, {Name: "B"}}
	r := ResponsesFromConfig(sd)

	if !r.Server.Address.Equal(net.IPv4(10, 0, 0, 5)) {
		t.Fatalf("address = %v", r.Server.Address)
	}
	if r.Cities[1].Index != 1 || r.Cities[1].Name != "B" {
		t.Fatalf("cities = %+v", r.Cities)
	}
}
