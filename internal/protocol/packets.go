// Package protocol implements the fixed-layout binary packets of the login
// handshake. Every packet starts with a one-byte opcode. Inbound packets have
// no length prefix: the opcode alone determines the body length. All
// integers are big-endian.
package protocol

import "fmt"

// Inbound opcodes (client -> login server).
const (
	OpLoginSeed    byte = 0xEF // Encrypted login seed and client version
	OpAccountLogin byte = 0x80 // Account name and password
	OpServerSelect byte = 0xA0 // Chosen shard index
	OpPostLogin    byte = 0x91 // Game login with the redirect key
	OpPing         byte = 0x73 // Keepalive, ignored
)

// Outbound opcodes (login server -> client).
const (
	OpServerList     byte = 0xA8
	OpServerRedirect byte = 0x8C
	OpFeatures       byte = 0xB9
	OpCharacterList  byte = 0xA9
)

// Inbound body lengths, excluding the opcode byte.
const (
	LoginSeedBodyLen    = 20
	AccountLoginBodyLen = 61
	ServerSelectBodyLen = 2
	PostLoginBodyLen    = 64
	PingBodyLen         = 1
)

// Outbound sizes and field widths.
const (
	ServerListLen     = 46
	ServerRedirectLen = 11
	FeaturesLen       = 3

	CredentialLen    = 30
	ShardNameLen     = 32
	CityNameLen      = 31
	CharacterSlotLen = 2 * CredentialLen
	CityEntryLen     = 1 + 2*CityNameLen

	// ServerListFlags is the system info flag byte of the server list.
	ServerListFlags byte = 0x5D
)

// MaxCharacterSlots bounds the slot count byte of the character list.
const MaxCharacterSlots = 7

// BodyLen returns the fixed body length of an inbound opcode.
func BodyLen(op byte) (int, bool) {
	switch op {
	case OpLoginSeed:
		return LoginSeedBodyLen, true
	case OpAccountLogin:
		return AccountLoginBodyLen, true
	case OpServerSelect:
		return ServerSelectBodyLen, true
	case OpPostLogin:
		return PostLoginBodyLen, true
	case OpPing:
		return PingBodyLen, true
	default:
		return 0, false
	}
}

var opcodeNames = map[byte]string{
	OpLoginSeed:      "login_seed",
	OpAccountLogin:   "account_login",
	OpServerSelect:   "server_select",
	OpPostLogin:      "post_login",
	OpPing:           "ping",
	OpServerList:     "server_list",
	OpServerRedirect: "server_redirect",
	OpFeatures:       "features",
	OpCharacterList:  "character_list",
}

// OpcodeName returns a stable lowercase name for op, used in logs and metrics.
func OpcodeName(op byte) string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "unknown"
}

// FormatOpcode renders op as 0xNN.
func FormatOpcode(op byte) string {
	return fmt.Sprintf("0x%02X", op)
}

// Packet is a decoded inbound packet. The set of implementations is closed:
// LoginSeed, AccountLogin, ServerSelect, PostLogin, Ping and Unknown.
type Packet interface {
	Opcode() byte
	packet()
}

// LoginSeed is packet 0xEF.
type LoginSeed struct {
	Seed     uint32
	Major    uint32
	Minor    uint32
	Revision uint32
	Patch    uint32
}

// Version renders the client version as major.minor.revision.patch.
func (p LoginSeed) Version() string {
	return fmt.Sprintf("%d.%d.%d.%d", p.Major, p.Minor, p.Revision, p.Patch)
}

// AccountLogin is packet 0x80.
type AccountLogin struct {
	Username     string
	Password     string
	NextLoginKey uint8
}

// ServerSelect is packet 0xA0.
type ServerSelect struct {
	Index uint16
}

// PostLogin is packet 0x91.
type PostLogin struct {
	Key      uint32
	Username string
	Password string
}

// Ping is packet 0x73.
type Ping struct {
	Sequence uint8
}

// Unknown is a run of opcodes without a modeled layout. Op is the first
// byte of the run and Count its length; nothing past the run is consumed.
type Unknown struct {
	Op    byte
	Count int
}

func (LoginSeed) Opcode() byte    { return OpLoginSeed }
func (AccountLogin) Opcode() byte { return OpAccountLogin }
func (ServerSelect) Opcode() byte { return OpServerSelect }
func (PostLogin) Opcode() byte    { return OpPostLogin }
func (Ping) Opcode() byte         { return OpPing }
func (p Unknown) Opcode() byte    { return p.Op }

func (LoginSeed) packet()    {}
func (AccountLogin) packet() {}
func (ServerSelect) packet() {}
func (PostLogin) packet()    {}
func (Ping) packet()         {}
func (Unknown) packet()      {}
