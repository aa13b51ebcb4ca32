package crate

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Reader simplifies reading little-endian crate data from an in-memory file.
// It tracks the first error. Subsequent reads become no-ops that leave their
// destinations untouched.
type Reader struct {
	r     *BytesReader
	err   error // first error encountered.
	order binary.ByteOrder
}

// NewReader creates a Reader positioned at the start of b.
func NewReader(b []byte) *Reader {
	return &Reader{r: NewBytesReader(b), order: binary.LittleEndian}
}

func (r *Reader) Size() int      { return r.r.Size() }
func (r *Reader) Tell() int64    { return int64(r.r.N) }
func (r *Reader) Available() int { return r.r.Available() }
func (r *Reader) Err() error     { return r.err }

// setError records the first non-nil error.
func (r *Reader) setError(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

// Fail latches err unless an earlier error is already recorded.
func (r *Reader) Fail(err error) { r.setError(err) }

// Read implements the io.Reader interface.
func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	n, err := r.r.Read(p)
	if err != io.EOF {
		r.setError(err)
	}
	return n, err
}

// SeekTo moves the read pointer to an absolute offset.
func (r *Reader) SeekTo(offset int64) {
	if r.err != nil {
		return
	}
	if _, err := r.r.Seek(offset, io.SeekStart); err != nil {
		r.err = fmt.Errorf("%w: offset %d in a %d byte file", err, offset, r.r.Size())
	}
}

// Fork returns a Reader over the same file at the same position with no
// error recorded. Reads through the fork leave r where it is.
func (r *Reader) Fork() *Reader {
	f := NewReader(r.r.B)
	f.r.N = r.r.N
	f.order = r.order
	return f
}

// readFull returns the next n bytes of the file without copying.
func (r *Reader) readFull(n int) []byte {
	if r.err != nil {
		return nil
	}
	buf := r.r.Next(n)
	if buf == nil {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, r.r.N, r.r.Available())
	}
	return buf
}

// ReadBytes returns the next n bytes. The slice aliases the file.
func (r *Reader) ReadBytes(n int) []byte {
	if n == 0 {
		return []byte{}
	}
	return r.readFull(n)
}

// --- Primitive Read Operations ---

func (r *Reader) ReadUint8(dest *uint8) {
	if buf := r.readFull(1); r.err == nil {
		*dest = buf[0]
	}
}

func (r *Reader) ReadInt8(dest *int8) {
	if buf := r.readFull(1); r.err == nil {
		*dest = int8(buf[0])
	}
}

func (r *Reader) ReadUint32(dest *uint32) {
	buf := r.readFull(4)
	if r.err == nil {
		*dest = r.order.Uint32(buf)
	}
}

func (r *Reader) ReadUint64(dest *uint64) {
	buf := r.readFull(8)
	if r.err == nil {
		*dest = r.order.Uint64(buf)
	}
}

func (r *Reader) ReadInt32(dest *int32) {
	buf := r.readFull(4)
	if r.err == nil {
		*dest = int32(r.order.Uint32(buf))
	}
}

func (r *Reader) ReadInt64(dest *int64) {
	buf := r.readFull(8)
	if r.err == nil {
		*dest = int64(r.order.Uint64(buf))
	}
}

func (r *Reader) ReadFloat64(dest *float64) {
	buf := r.readFull(8)
	if r.err == nil {
		*dest = math.Float64frombits(r.order.Uint64(buf))
	}
}
