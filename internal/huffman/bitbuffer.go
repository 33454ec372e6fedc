// Package huffman implements the static Huffman compression used for
// outbound login packets. Codes come from a fixed 256-entry table, every
// message ends with a terminal code, and the stream is zero-padded to a
// whole byte.
package huffman

import "io"

// MaxWriteBits is the widest code accepted by a single WriteBits call.
const MaxWriteBits = 32

// BitBuffer packs variable-width codes into bytes, most significant bit
// first. Completed bytes are queued until read. A BitBuffer belongs to a
// single encode operation and is not safe for concurrent use.
type BitBuffer struct {
	// pending holds the bits of the byte in progress in its low nbits bits.
	pending uint64
	nbits   uint

	done []byte
	head int
}

// WriteBits appends the low n bits of value. n must not exceed MaxWriteBits.
func (b *BitBuffer) WriteBits(value uint32, n uint8) {
	if n == 0 {
		return
	}
	bits := uint(n)
	mask := uint64(1)<<bits - 1

	b.pending = b.pending<<bits | uint64(value)&mask
	b.nbits += bits

	for b.nbits >= 8 {
		b.nbits -= 8
		b.done = append(b.done, byte(b.pending>>b.nbits))
	}
	b.pending &= uint64(1)<<b.nbits - 1
}

// WriteCode appends c.
func (b *BitBuffer) WriteCode(c Code) {
	b.WriteBits(c.Value, c.Bits)
}

// ReadByte returns the oldest completed byte, or io.EOF when none is ready.
// The byte in progress is never returned.
func (b *BitBuffer) ReadByte() (byte, error) {
	if b.head == len(b.done) {
		return 0, io.EOF
	}
	v := b.done[b.head]
	b.head++
	if b.head == len(b.done) {
		b.done = b.done[:0]
		b.head = 0
	}
	return v, nil
}

// Drain appends every completed byte to dst and returns the extended slice.
func (b *BitBuffer) Drain(dst []byte) []byte {
	dst = append(dst, b.done[b.head:]...)
	b.done = b.done[:0]
	b.head = 0
	return dst
}

// Buffered returns the number of completed bytes waiting to be read.
func (b *BitBuffer) Buffered() int {
	return len(b.done) - b.head
}

// PendingBits returns how many bits of the byte in progress are filled.
func (b *BitBuffer) PendingBits() int {
	return int(b.nbits)
}

// ByteBoundaryOffset returns how many bits of the byte in progress are still
// unfilled, or 0 when the stream is byte aligned.
func (b *BitBuffer) ByteBoundaryOffset() int {
	if b.nbits == 0 {
		return 0
	}
	return 8 - int(b.nbits)
}

// Reset discards all state.
func (b *BitBuffer) Reset() {
	b.pending = 0
	b.nbits = 0
	b.done = b.done[:0]
	b.head = 0
}
