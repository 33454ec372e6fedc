package huffman

import (
	"fmt"
	"io"
)

// Encoder compresses a single message. Bytes written to it are translated
// through the code table; Finish appends the terminal code and the padding.
// Completed output bytes can be drained at any point, and the concatenation
// of all drains equals the batch result of Compress.
type Encoder struct {
	buf      BitBuffer
	finished bool
	inBytes  int
}

// NewEncoder returns an Encoder ready for a new message.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// WriteByte compresses c.
func (e *Encoder) WriteByte(c byte) error {
	if e.finished {
		return fmt.Errorf("huffman: write after finish")
	}
	e.buf.WriteCode(table[c])
	e.inBytes++
	return nil
}

// Write compresses every byte of p. It never fails before Finish.
func (e *Encoder) Write(p []byte) (int, error) {
	if e.finished {
		return 0, fmt.Errorf("huffman: write after finish")
	}
	for _, c := range p {
		e.buf.WriteCode(table[c])
	}
	e.inBytes += len(p)
	return len(p), nil
}

// Finish writes the terminal code and zero-pads to a byte boundary.
// Calling Finish more than once has no further effect.
func (e *Encoder) Finish() {
	if e.finished {
		return
	}
	e.finished = true
	e.buf.WriteCode(TerminalCode)
	if pad := e.buf.ByteBoundaryOffset(); pad != 0 {
		e.buf.WriteBits(0, uint8(pad))
	}
}

// ReadByte returns the next completed output byte or io.EOF.
func (e *Encoder) ReadByte() (byte, error) {
	return e.buf.ReadByte()
}

// Drain appends all completed output bytes to dst.
func (e *Encoder) Drain(dst []byte) []byte {
	return e.buf.Drain(dst)
}

// InputLen returns the number of bytes compressed so far.
func (e *Encoder) InputLen() int {
	return e.inBytes
}

// Reset prepares e for a new message.
func (e *Encoder) Reset() {
	e.buf.Reset()
	e.finished = false
	e.inBytes = 0
}

// Compress returns the compressed form of src, terminal code and padding
// included. It is total over all inputs, including the empty one.
func Compress(src []byte) []byte {
	return AppendCompressed(make([]byte, 0, CompressedLen(src)), src)
}

// AppendCompressed appends the compressed form of src to dst.
func AppendCompressed(dst, src []byte) []byte {
	var e Encoder
	e.Write(src)
	e.Finish()
	return e.Drain(dst)
}

// CompressedBits returns the number of significant bits Compress produces
// for src, before byte padding.
func CompressedBits(src []byte) int {
	n := int(TerminalCode.Bits)
	for _, c := range src {
		n += int(table[c].Bits)
	}
	return n
}

// CompressedLen returns len(Compress(src)) without compressing.
func CompressedLen(src []byte) int {
	return (CompressedBits(src) + 7) / 8
}

// Writer streams a compressed message to an underlying writer. Completed
// bytes are forwarded after every Write; Close finishes the message.
type Writer struct {
	w   io.Writer
	enc Encoder
	out []byte
	err error
}

// NewWriter returns a Writer that compresses into w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write compresses p and forwards any completed bytes.
func (w *Writer) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	n, err := w.enc.Write(p)
	if err != nil {
		return n, err
	}
	return n, w.flush()
}

// Close appends the terminal code and padding and flushes the remainder.
// It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.err != nil {
		return w.err
	}
	w.enc.Finish()
	return w.flush()
}

func (w *Writer) flush() error {
	w.out = w.enc.Drain(w.out[:0])
	if len(w.out) == 0 {
		return nil
	}
	if _, err := w.w.Write(w.out); err != nil {
		w.err = fmt.Errorf("huffman: write compressed output: %w", err)
	}
	return w.err
}
