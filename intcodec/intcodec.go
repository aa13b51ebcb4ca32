// Package intcodec implements the crate integer compression: a run of
// integers stored as deltas from their predecessor, each delta either the
// most common one or a 1/2/4 byte (2/4/8 byte for 64-bit) signed value.
//
// Layout of an encoded buffer of N integers of width W:
//
//	[W bytes: common delta][ceil(2N/8) bytes: 2-bit codes, low bits first][deltas]
//
// Code 0 means "add the common delta"; codes 1, 2 and 3 read a signed delta
// of W/4, W/2 or W bytes from the delta stream. The accumulator starts at 0.
package intcodec

import (
	"encoding/binary"
	"fmt"

	"github.com/oy3o/usd"
	"golang.org/x/exp/constraints"
)

var le = binary.LittleEndian

// Integer is the set of element types the codec handles.
type Integer interface {
	int32 | int64
}

// Roundup rounds n up to the nearest multiple of align, a power of two.
func Roundup[T constraints.Integer](n, align T) T { return (n + (align - 1)) &^ (align - 1) }

func width[T Integer]() int {
	var zero T
	if _, ok := any(zero).(int64); ok {
		return 8
	}
	return 4
}

func codeBytes(n int) int { return Roundup(2*n, 8) / 8 }

// deltaSize is the byte width of a delta for a non-zero code.
func deltaSize(w int, code byte) int { return w / 4 << (code - 1) }

// EncodedSize is the largest buffer Encode can produce for n integers of w bytes.
func EncodedSize(n, w int) int { return w + codeBytes(n) + n*w }

func readSigned(b []byte) int64 {
	switch len(b) {
	case 1:
		return int64(int8(b[0]))
	case 2:
		return int64(int16(le.Uint16(b)))
	case 4:
		return int64(int32(le.Uint32(b)))
	default:
		return int64(le.Uint64(b))
	}
}

func putSigned(b []byte, v int64) {
	switch len(b) {
	case 1:
		b[0] = byte(v)
	case 2:
		le.PutUint16(b, uint16(v))
	case 4:
		le.PutUint32(b, uint32(v))
	default:
		le.PutUint64(b, uint64(v))
	}
}

// Decode reconstructs n integers from buf. buf must hold exactly the header,
// n codes and the delta bytes those codes call for.
func Decode[T Integer](buf []byte, n int) ([]T, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative integer count %d", usd.ErrDecode, n)
	}
	w := width[T]()
	header := w + codeBytes(n)
	if len(buf) < header {
		return nil, fmt.Errorf("%w: %d integers need a %d byte header, have %d bytes", usd.ErrDecode, n, header, len(buf))
	}
	common := T(readSigned(buf[:w]))
	codes := buf[w:header]
	deltas := buf[header:]

	out := make([]T, n)
	var acc T
	pos := 0
	for i := range out {
		code := codes[i/4] >> (2 * (i % 4)) & 3
		delta := common
		if code != 0 {
			size := deltaSize(w, code)
			if len(deltas)-pos < size {
				return nil, fmt.Errorf("%w: delta stream short at integer %d", usd.ErrDecode, i)
			}
			delta = T(readSigned(deltas[pos : pos+size]))
			pos += size
		}
		acc += delta
		out[i] = acc
	}
	if pos != len(deltas) {
		return nil, fmt.Errorf("%w: %d trailing delta bytes", usd.ErrDecode, len(deltas)-pos)
	}
	return out, nil
}

// Encode is the inverse of Decode.
func Encode[T Integer](values []T) []byte {
	w := width[T]()
	n := len(values)

	deltas := make([]T, n)
	var prev T
	for i, v := range values {
		deltas[i] = v - prev
		prev = v
	}
	common := mostCommon(deltas)

	buf := make([]byte, w+codeBytes(n), EncodedSize(n, w))
	putSigned(buf[:w], int64(common))
	codes := buf[w:]
	for i, d := range deltas {
		if d == common {
			continue
		}
		code := smallestCode(w, int64(d))
		codes[i/4] |= code << (2 * (i % 4))
		start := len(buf)
		buf = buf[:start+deltaSize(w, code)]
		putSigned(buf[start:], int64(d))
	}
	return buf
}

func smallestCode(w int, d int64) byte {
	for code := byte(1); code < 3; code++ {
		bits := 8 * deltaSize(w, code)
		lo, hi := -int64(1)<<(bits-1), int64(1)<<(bits-1)-1
		if d >= lo && d <= hi {
			return code
		}
	}
	return 3
}

// mostCommon picks the most frequent delta, the smallest one on ties so the
// encoding is deterministic.
func mostCommon[T Integer](deltas []T) T {
	counts := make(map[T]int, len(deltas))
	var best T
	bestCount := 0
	for _, d := range deltas {
		counts[d]++
		c := counts[d]
		if c > bestCount || (c == bestCount && d < best) {
			best, bestCount = d, c
		}
	}
	return best
}
