package protocol

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Parser decodes inbound login packets from a byte stream.
type Parser struct {
	logger zerolog.Logger
}

// NewParser creates a new parser for the login protocol that logs through
// logger, normally the owning connection's logger.
func NewParser(logger zerolog.Logger) *Parser {
	return &Parser{logger: logger}
}

// Next decodes the packet at the start of buf and returns it together with
// the number of bytes it occupies.
//
// A packet whose body is not fully present yields ErrIncompleteBuffer and a
// consumed count of zero; the caller keeps the bytes and retries once more
// data arrives. A run of consecutive unmodeled opcodes yields one Unknown
// packet that consumes the whole run, one byte per opcode. A field that fails to decode yields a *DecodeError and the full
// packet length as consumed.
func (p *Parser) Next(buf []byte) (Packet, int, error) {
	if len(buf) == 0 {
		return nil, 0, fmt.Errorf("%w: no opcode", ErrIncompleteBuffer)
	}

	op := buf[0]
	bodyLen, ok := BodyLen(op)
	if !ok {
		n := unknownRun(buf)
		p.logger.Warn().
			Str("opcode", FormatOpcode(op)).
			Int("count", n).
			Int("buffered", len(buf)).
			Msg("skipping unknown opcodes")
		return Unknown{Op: op, Count: n}, n, nil
	}

	if len(buf)-1 < bodyLen {
		return nil, 0, fmt.Errorf("%w: %s needs %d body bytes, have %d",
			ErrIncompleteBuffer, OpcodeName(op), bodyLen, len(buf)-1)
	}

	pkt, err := DecodeBody(op, buf[1:1+bodyLen])
	if err != nil {
		p.logger.Debug().Err(err).Msg("decode failed")
		return nil, 1 + bodyLen, err
	}

	p.logger.Trace().
		Str("opcode", FormatOpcode(op)).
		Str("packet", OpcodeName(op)).
		Msg("decoded packet")
	return pkt, 1 + bodyLen, nil
}

// unknownRun returns the number of leading bytes of buf that are not
// modeled opcodes.
func unknownRun(buf []byte) int {
	n := 0
	for n < len(buf) {
		if _, ok := BodyLen(buf[n]); ok {
			break
		}
		n++
	}
	return n
}

// DecodeBody decodes the body of a known inbound opcode. body must not
// include the opcode byte.
func DecodeBody(op byte, body []byte) (Packet, error) {
	r := NewReader(body)
	switch op {
	case OpLoginSeed:
		return decodeLoginSeed(r)
	case OpAccountLogin:
		return decodeAccountLogin(r)
	case OpServerSelect:
		return decodeServerSelect(r)
	case OpPostLogin:
		return decodePostLogin(r)
	case OpPing:
		return decodePing(r)
	default:
		return nil, &DecodeError{Opcode: op, Field: "opcode", Err: ErrUnknownOpcode}
	}
}

// decodeLoginSeed handles packet 0xEF.
// Format: [seed:4][major:4][minor:4][revision:4][patch:4]
func decodeLoginSeed(r *Reader) (Packet, error) {
	var p LoginSeed
	fields := []struct {
		name string
		dst  *uint32
	}{
		{"seed", &p.Seed},
		{"major", &p.Major},
		{"minor", &p.Minor},
		{"revision", &p.Revision},
		{"patch", &p.Patch},
	}
	for _, f := range fields {
		v, err := r.Uint32()
		if err != nil {
			return nil, &DecodeError{Opcode: OpLoginSeed, Field: f.name, Err: err}
		}
		*f.dst = v
	}
	return p, nil
}

// decodeAccountLogin handles packet 0x80.
// Format: [username:30][password:30][next_login_key:1]
func decodeAccountLogin(r *Reader) (Packet, error) {
	var (
		p   AccountLogin
		err error
	)
	if p.Username, err = r.FixedString(CredentialLen); err != nil {
		return nil, &DecodeError{Opcode: OpAccountLogin, Field: "username", Err: err}
	}
	if p.Password, err = r.FixedString(CredentialLen); err != nil {
		return nil, &DecodeError{Opcode: OpAccountLogin, Field: "password", Err: err}
	}
	if p.NextLoginKey, err = r.Uint8(); err != nil {
		return nil, &DecodeError{Opcode: OpAccountLogin, Field: "next_login_key", Err: err}
	}
	return p, nil
}

// decodeServerSelect handles packet 0xA0.
// Format: [index:2]
func decodeServerSelect(r *Reader) (Packet, error) {
	idx, err := r.Uint16()
	if err != nil {
		return nil, &DecodeError{Opcode: OpServerSelect, Field: "index", Err: err}
	}
	return ServerSelect{Index: idx}, nil
}

// decodePostLogin handles packet 0x91.
// Format: [key:4][username:30][password:30]
func decodePostLogin(r *Reader) (Packet, error) {
	var (
		p   PostLogin
		err error
	)
	if p.Key, err = r.Uint32(); err != nil {
		return nil, &DecodeError{Opcode: OpPostLogin, Field: "key", Err: err}
	}
	if p.Username, err = r.FixedString(CredentialLen); err != nil {
		return nil, &DecodeError{Opcode: OpPostLogin, Field: "username", Err: err}
	}
	if p.Password, err = r.FixedString(CredentialLen); err != nil {
		return nil, &DecodeError{Opcode: OpPostLogin, Field: "password", Err: err}
	}
	return p, nil
}

func decodePing(r *Reader) (Packet, error) {
	seq, err := r.Uint8()
	if err != nil {
		return nil, &DecodeError{Opcode: OpPing, Field: "sequence", Err: err}
	}
	return Ping{Sequence: seq}, nil
}
