package huffman

import (
	"bytes"
	"io"
	"testing"
)

func TestBitBufferPacksMSBFirst(t *testing.T) {
	tests := []struct {
		name   string
		writes []Code
		want   []byte
		tail   int // filled bits left in the byte in progress
	}{
		{
			name:   "single full byte",
			writes: []Code{{0xA5, 8}},
			want:   []byte{0xA5},
		},
		{
			name:   "two nibbles",
			writes: []Code{{0xA, 4}, {0x5, 4}},
			want:   []byte{0xA5},
		},
		{
			name:   "code spanning bytes",
			writes: []Code{{0x1, 1}, {0x1FF, 9}},
			want:   []byte{0xFF},
			tail:   2,
		},
		{
			name:   "high bits beyond width ignored",
			writes: []Code{{0xFFF3, 2}, {0x3F, 6}},
			want:   []byte{0xFF},
		},
		{
			name:   "32-bit write",
			writes: []Code{{0xDEADBEEF, 32}},
			want:   []byte{0xDE, 0xAD, 0xBE, 0xEF},
		},
		{
			name:   "partial byte only",
			writes: []Code{{0x5, 3}},
			want:   nil,
			tail:   3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b BitBuffer
			for _, c := range tt.writes {
				b.WriteCode(c)
			}
			got := b.Drain(nil)
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("drained %x, want %x", got, tt.want)
			}
			if b.PendingBits() != tt.tail {
				t.Fatalf("pending bits = %d, want %d", b.PendingBits(), tt.tail)
			}
		})
	}
}

func TestBitBufferReadByte(t *testing.T) {
	var b BitBuffer
	if _, err := b.ReadByte(); err != io.EOF {
		t.Fatalf("empty buffer: err = %v, want io.EOF", err)
	}

	b.WriteBits(0x12, 8)
	b.WriteBits(0x3, 4)
	if b.Buffered() != 1 {
		t.Fatalf("buffered = %d, want 1", b.Buffered())
	}

	v, err := b.ReadByte()
	if err != nil || v != 0x12 {
		t.Fatalf("ReadByte = %#x, %v; want 0x12, nil", v, err)
	}
	if _, err := b.ReadByte(); err != io.EOF {
		t.Fatalf("partial byte must not be readable, got err %v", err)
	}

	b.WriteBits(0x4, 4)
	v, err = b.ReadByte()
	if err != nil || v != 0x34 {
		t.Fatalf("ReadByte = %#x, %v; want 0x34, nil", v, err)
	}
}

func TestBitBufferByteBoundaryOffset(t *testing.T) {
	var b BitBuffer
	if got := b.ByteBoundaryOffset(); got != 0 {
		t.Fatalf("empty offset = %d, want 0", got)
	}
	for filled := 1; filled <= 16; filled++ {
		b.Reset()
		b.WriteBits(0, uint8(filled))
		want := (8 - filled%8) % 8
		if got := b.ByteBoundaryOffset(); got != want {
			t.Errorf("after %d bits offset = %d, want %d", filled, got, want)
		}
	}
}
