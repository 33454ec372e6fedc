package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	// ErrIncompleteBuffer means fewer bytes remain than a field or packet needs.
	ErrIncompleteBuffer = errors.New("incomplete buffer")

	// ErrInvalidUTF8 means a fixed-length string field is not valid text.
	ErrInvalidUTF8 = errors.New("invalid utf-8 in string field")

	// ErrUnknownOpcode marks an opcode with no modeled layout.
	ErrUnknownOpcode = errors.New("unknown opcode")
)

// DecodeError reports which field of which packet failed to decode.
type DecodeError struct {
	Opcode byte
	Field  string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s (%s) field %s: %v", OpcodeName(e.Opcode), FormatOpcode(e.Opcode), e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Reader decodes big-endian fields from a byte slice. Every read advances
// the cursor by exactly the field width, or fails without moving it.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a Reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// Offset returns the cursor position.
func (r *Reader) Offset() int {
	return r.off
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrIncompleteBuffer, n, r.off, r.Remaining())
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Uint8 reads one byte.
func (r *Reader) Uint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16 reads a big-endian uint16.
func (r *Reader) Uint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// Uint32 reads a big-endian uint32.
func (r *Reader) Uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// Bytes reads n raw bytes. The result aliases the underlying buffer.
func (r *Reader) Bytes(n int) ([]byte, error) {
	return r.take(n)
}

// FixedString reads an n-byte string field. Trailing NUL bytes are trimmed
// and the remainder must be valid UTF-8.
func (r *Reader) FixedString(n int) (string, error) {
	b, err := r.take(n)
	if err != nil {
		return "", err
	}
	b = bytes.TrimRight(b, "\x00")
	if !utf8.Valid(b) {
		r.off -= n
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}
