// Package events defines event types and payloads for the Shardgate event system.
package events

import "time"

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Connection lifecycle
	EventConnectionOpened EventType = "connection_opened"
	EventConnectionClosed EventType = "connection_closed"

	// Login handshake packets
	EventLoginSeed     EventType = "login_seed"
	EventAccountLogin  EventType = "account_login"
	EventServerSelect  EventType = "server_select"
	EventPostLogin     EventType = "post_login"
	EventUnknownOpcode EventType = "unknown_opcode"
	EventDecodeError   EventType = "decode_error"

	// System events
	EventHeartbeat     EventType = "heartbeat"
	EventConfigChanged EventType = "config_changed"
	EventShutdown      EventType = "shutdown"
)

// LoginEventTypes are the handshake events persisted to the audit log.
var LoginEventTypes = []EventType{
	EventLoginSeed,
	EventAccountLogin,
	EventServerSelect,
	EventPostLogin,
	EventUnknownOpcode,
	EventDecodeError,
}

// AllEventTypes lists every event type the server emits.
var AllEventTypes = []EventType{
	EventConnectionOpened,
	EventConnectionClosed,
	EventLoginSeed,
	EventAccountLogin,
	EventServerSelect,
	EventPostLogin,
	EventUnknownOpcode,
	EventDecodeError,
	EventHeartbeat,
	EventConfigChanged,
	EventShutdown,
}

// Event represents a single event in the system.
type Event struct {
	Type    EventType   `json:"type"`
	Source  string      `json:"source"`
	Time    time.Time   `json:"time"`
	Payload interface{} `json:"payload,omitempty"`
}

// ConnectionPayload describes a connection opening or closing.
type ConnectionPayload struct {
	ConnID   uint64 `json:"conn_id"`
	Remote   string `json:"remote"`
	Reason   string `json:"reason,omitempty"`
	BytesIn  uint64 `json:"bytes_in,omitempty"`
	BytesOut uint64 `json:"bytes_out,omitempty"`
}

// LoginSeedPayload is emitted for packet 0xEF.
type LoginSeedPayload struct {
	ConnID  uint64 `json:"conn_id"`
	Remote  string `json:"remote"`
	Seed    uint32 `json:"seed"`
	Version string `json:"version"`
}

// AccountLoginPayload is emitted for packet 0x80. It never carries the password.
type AccountLoginPayload struct {
	ConnID  uint64 `json:"conn_id"`
	Remote  string `json:"remote"`
	Account string `json:"account"`
}

// ServerSelectPayload is emitted for packet 0xA0 once the redirect key is issued.
type ServerSelectPayload struct {
	ConnID  uint64 `json:"conn_id"`
	Remote  string `json:"remote"`
	Account string `json:"account,omitempty"`
	Index   uint16 `json:"index"`
	Key     uint32 `json:"key"`
}

// PostLoginPayload is emitted for packet 0x91.
type PostLoginPayload struct {
	ConnID  uint64 `json:"conn_id"`
	Remote  string `json:"remote"`
	Account string `json:"account"`
	Key     uint32 `json:"key"`
}

// UnknownOpcodePayload is emitted once per run of skipped opcode bytes.
type UnknownOpcodePayload struct {
	ConnID uint64 `json:"conn_id"`
	Remote string `json:"remote"`
	Opcode byte   `json:"opcode"` // first byte of the run
	Count  int    `json:"count"`
}

// DecodeErrorPayload is emitted when a packet fails to decode.
type DecodeErrorPayload struct {
	ConnID uint64 `json:"conn_id"`
	Remote string `json:"remote"`
	Opcode byte   `json:"opcode"`
	Field  string `json:"field"`
	Error  string `json:"error"`
}

// HeartbeatPayload is the periodic health snapshot.
type HeartbeatPayload struct {
	Connections int     `json:"connections"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemPercent  float64 `json:"mem_percent"`
	UptimeSec   int64   `json:"uptime_sec"`
}

// ConfigChangedPayload is emitted when configuration changes occur.
type ConfigChangedPayload struct {
	Section string      `json:"section"`
	Key     string      `json:"key"`
	Value   interface{} `json:"value"`
}

// ConnID extracts the connection id from any per-connection payload.
func (e Event) ConnID() (uint64, bool) {
	switch p := e.Payload.(type) {
	case ConnectionPayload:
		return p.ConnID, true
	case LoginSeedPayload:
		return p.ConnID, true
	case AccountLoginPayload:
		return p.ConnID, true
	case ServerSelectPayload:
		return p.ConnID, true
	case PostLoginPayload:
		return p.ConnID, true
	case UnknownOpcodePayload:
		return p.ConnID, true
	case DecodeErrorPayload:
		return p.ConnID, true
	default:
		return 0, false
	}
}
