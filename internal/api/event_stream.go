package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shardgate-project/shardgate/internal/events"
)

const (
	streamHandlerName = "api_event_stream"
	streamWriteWait   = 5 * time.Second
)

// EventStream relays bus events to websocket clients as JSON messages.
type EventStream struct {
	bus      *events.EventBus
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.Mutex // guards clients and serializes writes
	clients map[*websocket.Conn]bool
}

// NewEventStream creates a stream; call Start to subscribe it to the bus.
func NewEventStream(bus *events.EventBus) *EventStream {
	return &EventStream{
		bus:     bus,
		clients: make(map[*websocket.Conn]bool),
		logger:  log.With().Str("component", "event_stream").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Access is gated by the token middleware.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start subscribes to every event type.
func (es *EventStream) Start() {
	es.bus.SubscribeAll(streamHandlerName, es.onEvent)
}

// Stop unsubscribes and closes every client.
func (es *EventStream) Stop() {
	es.bus.UnsubscribeAll(streamHandlerName)

	es.mu.Lock()
	defer es.mu.Unlock()
	for conn := range es.clients {
		conn.Close()
		delete(es.clients, conn)
	}
}

// Handle upgrades the request and keeps the client until it disconnects.
func (es *EventStream) Handle(c *gin.Context) {
	conn, err := es.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		es.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	es.mu.Lock()
	es.clients[conn] = true
	es.mu.Unlock()
	es.logger.Debug().Str("client_ip", c.ClientIP()).Msg("event stream client connected")

	// Clients only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	es.remove(conn)
}

// ClientCount returns the number of connected clients.
func (es *EventStream) ClientCount() int {
	es.mu.Lock()
	defer es.mu.Unlock()
	return len(es.clients)
}

func (es *EventStream) remove(conn *websocket.Conn) {
	es.mu.Lock()
	defer es.mu.Unlock()
	if es.clients[conn] {
		delete(es.clients, conn)
		conn.Close()
	}
}

func (es *EventStream) onEvent(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	es.mu.Lock()
	defer es.mu.Unlock()
	for conn := range es.clients {
		conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			delete(es.clients, conn)
			conn.Close()
		}
	}
	return nil
}
