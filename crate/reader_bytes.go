package crate

import "io"

// BytesReader is an io.ReadSeeker over an in-memory file.
type BytesReader struct {
	B []byte // file contents
	N int    // current read position
}

// NewBytesReader creates a new BytesReader.
func NewBytesReader(b []byte) *BytesReader {
	return &BytesReader{B: b}
}

// Read implements the [io.Reader] interface.
func (r *BytesReader) Read(p []byte) (int, error) {
	if r.N >= len(r.B) {
		return 0, io.EOF
	}
	n := copy(p, r.B[r.N:])
	r.N += n
	return n, nil
}

// ReadByte implements the [io.ByteReader] interface.
func (r *BytesReader) ReadByte() (byte, error) {
	if r.N >= len(r.B) {
		return 0, io.EOF
	}
	b := r.B[r.N]
	r.N++
	return b, nil
}

// Next returns the next n bytes without copying them, or nil if fewer remain.
func (r *BytesReader) Next(n int) []byte {
	if n < 0 || n > r.Available() {
		return nil
	}
	b := r.B[r.N : r.N+n : r.N+n]
	r.N += n
	return b
}

// Seek implements the [io.Seeker] interface. Unlike a file, positions past
// the end are rejected, since every crate offset must land inside the file.
func (r *BytesReader) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(r.N) + offset
	case io.SeekEnd:
		abs = int64(len(r.B)) + offset
	default:
		return 0, ErrInvalidWhence
	}

	if abs < 0 || abs > int64(len(r.B)) {
		return 0, ErrInvalidSeek
	}

	r.N = int(abs)
	return abs, nil
}

// Size returns the size of the underlying byte slice.
func (r *BytesReader) Size() int {
	return len(r.B)
}

// Available returns the number of bytes available for reading.
func (r *BytesReader) Available() int {
	length := len(r.B) - r.N
	if length <= 0 {
		return 0
	}
	return length
}
