package network

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shardgate-project/shardgate/internal/events"
	"github.com/shardgate-project/shardgate/internal/protocol"
	"github.com/shardgate-project/shardgate/internal/telemetry"
)

// frameDispatcher echoes 4-byte frames and rejects frames starting 0xFF.
type frameDispatcher struct {
	mu      sync.Mutex
	out     [][]byte
	packets int
}

func (d *frameDispatcher) Dispatch(ctx context.Context, buf []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	off := 0
	for {
		rest := buf[off:]
		if len(rest) == 0 {
			return off, nil
		}
		if rest[0] == 0xFF {
			return off, errors.New("bad frame")
		}
		if len(rest) < 4 {
			return off, protocol.ErrIncompleteBuffer
		}
		d.out = append(d.out, append([]byte(nil), rest[:4]...))
		d.packets++
		off += 4
	}
}

func (d *frameDispatcher) Drain(write func([]byte) error) error {
	d.mu.Lock()
	out := d.out
	d.out = nil
	d.mu.Unlock()
	for _, pkt := range out {
		if err := write(pkt); err != nil {
			return err
		}
	}
	return nil
}

func (d *frameDispatcher) Account() string { return "alice" }

func (d *frameDispatcher) Packets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.packets
}

func startListener(t *testing.T, opts ListenerOptions) (*TCPListener, *ConnectionRegistry, *events.EventBus, context.CancelFunc) {
	t.Helper()
	return startListenerWithMetrics(t, opts, nil)
}

func startListenerWithMetrics(t *testing.T, opts ListenerOptions, metrics *telemetry.Metrics) (*TCPListener, *ConnectionRegistry, *events.EventBus, context.CancelFunc) {
	t.Helper()
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	registry := NewConnectionRegistry()
	bus := events.NewEventBus()
	l := NewTCPListener(opts, registry, bus, metrics, func(*Connection) Dispatcher { return &frameDispatcher{} })

	ctx, cancel := context.WithCancel(context.Background())
	if err := l.Listen(ctx); err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		l.Wait()
		bus.Stop()
	})
	return l, registry, bus, cancel
}

func dial(t *testing.T, l *TCPListener) net.Conn {
	t.Helper()
	c, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	c.SetDeadline(time.Now().Add(5 * time.Second))
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestListenerEchoesSplitFrames(t *testing.T) {
	l, registry, _, _ := startListener(t, ListenerOptions{})
	c := dial(t, l)

	// One frame split across writes, then two frames in one write.
	for _, chunk := range [][]byte{{1, 2}, {3, 4}, {5, 6, 7, 8, 9, 10, 11, 12}} {
		if _, err := c.Write(chunk); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	got := make([]byte, 12)
	if _, err := io.ReadFull(c, got); err != nil {
		t.Fatal(err)
	}
	if want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}; !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}

	waitFor(t, func() bool {
		list := registry.List()
		return len(list) == 1 && list[0].BytesOut == 12
	})
	info := registry.List()[0]
	if info.Account != "alice" || info.PacketsIn != 3 || info.BytesIn != 12 {
		t.Fatalf("info = %+v", info)
	}
}

func TestListenerClosesOnDecodeError(t *testing.T) {
	l, registry, bus, _ := startListener(t, ListenerOptions{})

	closed := make(chan events.ConnectionPayload, 1)
	bus.Subscribe(events.EventConnectionClosed, "test", func(ctx context.Context, e events.Event) error {
		closed <- e.Payload.(events.ConnectionPayload)
		return nil
	})

	c := dial(t, l)
	c.Write([]byte{0xFF})

	if _, err := c.Read(make([]byte, 1)); err == nil {
		t.Fatal("expected connection to be closed")
	}
	select {
	case p := <-closed:
		if p.Reason != ReasonDecodeError {
			t.Fatalf("reason = %q", p.Reason)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no close event")
	}
	waitFor(t, func() bool { return registry.Count() == 0 })
}

func TestListenerPendingOverflow(t *testing.T) {
	l, registry, _, _ := startListener(t, ListenerOptions{ReadBufferSize: 2, MaxPendingBytes: 2})
	c := dial(t, l)

	// Each 3-byte prefix stays incomplete; pending grows past the limit.
	c.Write([]byte{1, 2, 3})
	if _, err := c.Read(make([]byte, 1)); err == nil {
		t.Fatal("expected overflow close")
	}
	waitFor(t, func() bool { return registry.Count() == 0 })
}

// closedTotal reads connections_closed_total{reason} from reg.
func closedTotal(t *testing.T, reg *prometheus.Registry, reason string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		if f.GetName() != "shardgate_connections_closed_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "reason" && lp.GetValue() == reason {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestListenerCapacity(t *testing.T) {
	reg := prometheus.NewRegistry()
	l, registry, _, _ := startListenerWithMetrics(t, ListenerOptions{MaxConnections: 1}, telemetry.NewMetrics(reg))
	dial(t, l)
	waitFor(t, func() bool { return registry.Count() == 1 })

	c := dial(t, l)
	if _, err := c.Read(make([]byte, 1)); err == nil {
		t.Fatal("expected refused connection to be closed")
	}
	if registry.Count() != 1 {
		t.Fatalf("count = %d", registry.Count())
	}
	waitFor(t, func() bool { return closedTotal(t, reg, ReasonCapacity) == 1 })
}

func TestRegistryKickAndCleanStale(t *testing.T) {
	l, registry, _, _ := startListener(t, ListenerOptions{})
	dial(t, l)
	dial(t, l)
	waitFor(t, func() bool { return registry.Count() == 2 })

	first := registry.List()[0]
	if !registry.Kick(first.ID) {
		t.Fatal("kick failed")
	}
	if registry.Kick(999) {
		t.Fatal("kicked unknown id")
	}
	waitFor(t, func() bool { return registry.Count() == 1 })

	if n := registry.CleanStale(0); n != 0 {
		t.Fatalf("disabled timeout cleaned %d", n)
	}
	time.Sleep(20 * time.Millisecond)
	if n := registry.CleanStale(time.Millisecond); n != 1 {
		t.Fatalf("cleaned %d, want 1", n)
	}
	waitFor(t, func() bool { return registry.Count() == 0 })
}

func TestListenBindError(t *testing.T) {
	l := NewTCPListener(ListenerOptions{Addr: "256.0.0.1:0"}, NewConnectionRegistry(), events.NewEventBus(), nil, nil)
	if err := l.Listen(context.Background()); !errors.Is(err, ErrBind) {
		t.Fatalf("err = %v, want ErrBind", err)
	}
	if l.Addr() != nil {
		t.Fatal("addr set after failed bind")
	}
}
