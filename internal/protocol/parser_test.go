package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func fixed(s string, width int) []byte {
	b := make([]byte, width)
	copy(b, s)
	return b
}

func accountLoginPacket(user, pass string, key byte) []byte {
	pkt := []byte{OpAccountLogin}
	pkt = append(pkt, fixed(user, CredentialLen)...)
	pkt = append(pkt, fixed(pass, CredentialLen)...)
	return append(pkt, key)
}

func TestParseLoginSeed(t *testing.T) {
	body := []byte{
		0xC0, 0xA8, 0x01, 0x02, // seed
		0x00, 0x00, 0x00, 0x07, // major
		0x00, 0x00, 0x00, 0x00, // minor
		0x00, 0x00, 0x00, 0x2D, // revision
		0x00, 0x01, 0x00, 0x03, // patch
	}
	buf := append([]byte{OpLoginSeed}, body...)

	pkt, n, err := NewParser(zerolog.Nop()).Next(buf)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if n != 1+LoginSeedBodyLen {
		t.Fatalf("consumed %d, want %d", n, 1+LoginSeedBodyLen)
	}
	got, ok := pkt.(LoginSeed)
	if !ok {
		t.Fatalf("packet type %T, want LoginSeed", pkt)
	}
	want := LoginSeed{Seed: 0xC0A80102, Major: 7, Minor: 0, Revision: 45, Patch: 0x00010003}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if got.Version() != "7.0.45.65539" {
		t.Fatalf("Version() = %q", got.Version())
	}
}

func TestParseAccountLoginTrimsNULs(t *testing.T) {
	buf := accountLoginPacket("alice", "secret", 0x5A)
	if len(buf) != 1+AccountLoginBodyLen {
		t.Fatalf("test packet is %d bytes", len(buf))
	}

	pkt, n, err := NewParser(zerolog.Nop()).Next(buf)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("consumed %d, want %d", n, len(buf))
	}
	want := AccountLogin{Username: "alice", Password: "secret", NextLoginKey: 0x5A}
	if pkt != want {
		t.Fatalf("got %+v, want %+v", pkt, want)
	}
}

func TestParseServerSelectAndPostLogin(t *testing.T) {
	p := NewParser(zerolog.Nop())

	pkt, n, err := p.Next([]byte{OpServerSelect, 0x00, 0x03})
	if err != nil || n != 3 || pkt != (ServerSelect{Index: 3}) {
		t.Fatalf("server select: %+v %d %v", pkt, n, err)
	}

	buf := []byte{OpPostLogin}
	buf = binary.BigEndian.AppendUint32(buf, 0x432F3FF0)
	buf = append(buf, fixed("alice", CredentialLen)...)
	buf = append(buf, fixed("secret", CredentialLen)...)
	pkt, n, err = p.Next(buf)
	if err != nil || n != 1+PostLoginBodyLen {
		t.Fatalf("post login: %d %v", n, err)
	}
	if pkt != (PostLogin{Key: 0x432F3FF0, Username: "alice", Password: "secret"}) {
		t.Fatalf("post login: %+v", pkt)
	}
}

func TestParseIncompleteBuffer(t *testing.T) {
	full := accountLoginPacket("alice", "secret", 0)
	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"opcode only", full[:1]},
		{"mid username", full[:10]},
		{"one short", full[:len(full)-1]},
		{"server select one byte", []byte{OpServerSelect, 0x00}},
		{"ping without sequence", []byte{OpPing}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt, n, err := NewParser(zerolog.Nop()).Next(tt.buf)
			if !errors.Is(err, ErrIncompleteBuffer) {
				t.Fatalf("err = %v, want ErrIncompleteBuffer", err)
			}
			if pkt != nil || n != 0 {
				t.Fatalf("got packet %+v consumed %d on incomplete buffer", pkt, n)
			}
		})
	}
}

func TestParseUnknownOpcodeRuns(t *testing.T) {
	garbage := make([]byte, 4096)
	tests := []struct {
		name string
		buf  []byte
		want Unknown
	}{
		{"single byte before known opcode", []byte{0x42, OpLoginSeed, 0x00}, Unknown{Op: 0x42, Count: 1}},
		{"run stops at known opcode", []byte{0x01, 0x02, 0x03, OpServerSelect, 0x00, 0x01}, Unknown{Op: 0x01, Count: 3}},
		{"run to end of buffer", garbage, Unknown{Op: 0x00, Count: len(garbage)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt, n, err := NewParser(zerolog.Nop()).Next(tt.buf)
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if n != tt.want.Count {
				t.Fatalf("consumed %d, want %d", n, tt.want.Count)
			}
			if pkt != tt.want {
				t.Fatalf("got %+v, want %+v", pkt, tt.want)
			}
		})
	}
}

func TestParserLogsThroughGivenLogger(t *testing.T) {
	var out bytes.Buffer
	logger := zerolog.New(&out).With().Uint64("conn_id", 7).Str("remote", "10.0.0.1:4000").Logger()

	if _, _, err := NewParser(logger).Next([]byte{0x42}); err != nil {
		t.Fatalf("Next: %v", err)
	}
	for _, want := range []string{`"conn_id":7`, `"remote":"10.0.0.1:4000"`, `"count":1`} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("log %q missing %s", out.String(), want)
		}
	}
}

func TestParsePingSplitAcrossReads(t *testing.T) {
	p := NewParser(zerolog.Nop())

	// A lone trailing ping opcode waits for its sequence byte.
	pkt, n, err := p.Next([]byte{OpPing})
	if !errors.Is(err, ErrIncompleteBuffer) || pkt != nil || n != 0 {
		t.Fatalf("lone ping: packet %+v consumed %d err %v", pkt, n, err)
	}

	// The next read completes it and the following packet decodes normally.
	buf := []byte{OpPing, 0x09, OpServerSelect, 0x00, 0x02}
	pkt, n, err = p.Next(buf)
	if err != nil || n != 1+PingBodyLen || pkt != (Ping{Sequence: 0x09}) {
		t.Fatalf("ping: packet %+v consumed %d err %v", pkt, n, err)
	}
	pkt, n, err = p.Next(buf[n:])
	if err != nil || n != 1+ServerSelectBodyLen || pkt != (ServerSelect{Index: 2}) {
		t.Fatalf("server select: packet %+v consumed %d err %v", pkt, n, err)
	}
}

func TestParseInvalidUTF8(t *testing.T) {
	buf := accountLoginPacket("", "secret", 0)
	buf[1], buf[2] = 0xC3, 0x28

	pkt, n, err := NewParser(zerolog.Nop()).Next(buf)
	if !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("err = %v, want ErrInvalidUTF8", err)
	}
	var de *DecodeError
	if !errors.As(err, &de) || de.Field != "username" || de.Opcode != OpAccountLogin {
		t.Fatalf("err = %#v, want DecodeError on username", err)
	}
	if pkt != nil || n != len(buf) {
		t.Fatalf("packet %+v consumed %d", pkt, n)
	}
}

func TestReaderBoundsChecks(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03})
	if _, err := r.Uint32(); !errors.Is(err, ErrIncompleteBuffer) {
		t.Fatalf("Uint32 on 3 bytes: %v", err)
	}
	if r.Offset() != 0 {
		t.Fatalf("failed read moved cursor to %d", r.Offset())
	}
	v, err := r.Uint16()
	if err != nil || v != 0x0102 {
		t.Fatalf("Uint16 = %#x, %v", v, err)
	}
	if r.Remaining() != 1 {
		t.Fatalf("remaining = %d", r.Remaining())
	}
	if _, err := r.FixedString(2); !errors.Is(err, ErrIncompleteBuffer) {
		t.Fatalf("FixedString past end: %v", err)
	}
}

func TestDecodeBodyRejectsUnmodeledOpcode(t *testing.T) {
	_, err := DecodeBody(0x42, nil)
	if !errors.Is(err, ErrUnknownOpcode) {
		t.Fatalf("err = %v, want ErrUnknownOpcode", err)
	}
}
