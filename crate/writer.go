package crate

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/oy3o/usd"
	"github.com/oy3o/usd/intcodec"
)

const bufferSize = 4096

var empty [bufferSize]byte

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// Writer simplifies writing little-endian crate data into a growable buffer.
// It tracks the first error that occurs; after an error all subsequent write
// operations become no-ops. Earlier output can be patched in place, which the
// encoder needs for forward offsets.
type Writer struct {
	buf   []byte
	err   error // first error encountered. Subsequent writes become no-ops.
	order byteOrder
}

// NewWriter creates a Writer appending to buf[:0].
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf[:0], order: binary.LittleEndian}
}

func (w *Writer) Count() int64  { return int64(len(w.buf)) }
func (w *Writer) Err() error    { return w.err }
func (w *Writer) Bytes() []byte { return w.buf }

// setError records the first non-nil error.
// This preserves the root cause of a failure chain instead of a later,
// less relevant error.
func (w *Writer) setError(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

// Fail latches err unless an earlier error is already recorded.
func (w *Writer) Fail(err error) { w.setError(err) }

// Result returns the written bytes and the final error state.
func (w *Writer) Result() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

// Write implements the io.Writer interface.
func (w *Writer) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// WriteBytes writes a byte slice.
func (w *Writer) WriteBytes(p []byte) {
	if len(p) == 0 || w.err != nil {
		return
	}
	_, _ = w.Write(p)
}

// WriteZeros writes n zero bytes, often for padding.
func (w *Writer) WriteZeros(n int64) {
	for w.err == nil && n > 0 {
		chunk := min(n, bufferSize)
		w.buf = append(w.buf, empty[:chunk]...)
		n -= chunk
	}
}

// Align writes zero bytes until the offset is a multiple of n.
func (w *Writer) Align(n int) {
	if n > 1 {
		w.WriteZeros(intcodec.Roundup(w.Count(), int64(n)) - w.Count())
	}
}

// PatchUint64 overwrites eight already written bytes at offset.
func (w *Writer) PatchUint64(offset int64, v uint64) {
	if w.err != nil {
		return
	}
	if offset < 0 || offset+8 > w.Count() {
		w.err = fmt.Errorf("%w: patch at %d beyond %d written bytes", usd.ErrParsing, offset, w.Count())
		return
	}
	w.order.PutUint64(w.buf[offset:], v)
}

// --- Primitive Write Operations ---

func (w *Writer) WriteUint8(v uint8) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteInt8(v int8) { w.WriteUint8(uint8(v)) }

func (w *Writer) WriteUint32(v uint32) {
	if w.err != nil {
		return
	}
	w.buf = w.order.AppendUint32(w.buf, v)
}

func (w *Writer) WriteUint64(v uint64) {
	if w.err != nil {
		return
	}
	w.buf = w.order.AppendUint64(w.buf, v)
}

func (w *Writer) WriteInt32(v int32) { w.WriteUint32(uint32(v)) }
func (w *Writer) WriteInt64(v int64) { w.WriteUint64(uint64(v)) }

func (w *Writer) WriteFloat64(v float64) { w.WriteUint64(math.Float64bits(v)) }
