// Package lz4block implements the LZ4 block format used inside crate files,
// plus the crate's one-byte chunk-count container around it.
package lz4block

import (
	"fmt"

	"github.com/oy3o/usd"
	"github.com/pierrec/lz4/v4"
)

const (
	minMatch = 4
	extended = 15 // nibble value that continues into extension bytes
)

// Decompress decodes one LZ4 block. size is the exact decompressed length
// when known; a negative size lets the output grow as needed.
func Decompress(src []byte, size int) ([]byte, error) {
	capacity := size
	if capacity < 0 {
		capacity = 3 * len(src)
	}
	out := make([]byte, 0, capacity)

	i := 0
	for i < len(src) {
		token := src[i]
		i++

		literals := int(token >> 4)
		if literals == extended {
			n, err := extension(src, &i)
			if err != nil {
				return nil, err
			}
			literals += n
		}
		if literals > len(src)-i {
			return nil, fmt.Errorf("%w: literal run of %d bytes overruns input at %d", usd.ErrDecode, literals, i)
		}
		out = append(out, src[i:i+literals]...)
		i += literals

		// The last sequence is literals only.
		if i == len(src) {
			break
		}

		if len(src)-i < 2 {
			return nil, fmt.Errorf("%w: truncated match offset at %d", usd.ErrDecode, i)
		}
		offset := int(src[i]) | int(src[i+1])<<8
		i += 2
		if offset == 0 {
			return nil, fmt.Errorf("%w: zero match offset at %d", usd.ErrDecode, i-2)
		}
		if offset > len(out) {
			return nil, fmt.Errorf("%w: match offset %d before start of output (%d bytes)", usd.ErrDecode, offset, len(out))
		}

		length := int(token & 0x0f)
		if length == extended {
			n, err := extension(src, &i)
			if err != nil {
				return nil, err
			}
			length += n
		}
		length += minMatch

		// Byte-wise so that offset < length repeats the bytes being written.
		start := len(out) - offset
		for k := 0; k < length; k++ {
			out = append(out, out[start+k])
		}
		if size >= 0 && len(out) > size {
			return nil, fmt.Errorf("%w: output exceeds declared size %d", usd.ErrDecode, size)
		}
	}

	if size >= 0 && len(out) != size {
		return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", usd.ErrDecode, len(out), size)
	}
	return out, nil
}

// extension reads length extension bytes: each adds 0-255 and a byte below
// 255 ends the run.
func extension(src []byte, i *int) (int, error) {
	n := 0
	for {
		if *i >= len(src) {
			return 0, fmt.Errorf("%w: truncated length extension", usd.ErrDecode)
		}
		b := src[*i]
		*i++
		n += int(b)
		if b < 255 {
			return n, nil
		}
	}
}

// Compress encodes data as a single LZ4 block. Input the compressor cannot
// shrink is stored as one literal run, so the result always decodes.
func Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return literalBlock(data), nil
	}
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if written == 0 {
		return literalBlock(data), nil
	}
	return dst[:written], nil
}

func literalBlock(data []byte) []byte {
	n := len(data)
	out := make([]byte, 0, 1+n/255+1+n)
	if n < extended {
		out = append(out, byte(n)<<4)
	} else {
		out = append(out, extended<<4)
		for rest := n - extended; ; rest -= 255 {
			if rest < 255 {
				out = append(out, byte(rest))
				break
			}
			out = append(out, 255)
		}
	}
	return append(out, data...)
}

// DecompressContainer decodes a crate compressed buffer: a chunk-count byte
// followed by the block. Only the single-block form (count 0) is supported.
func DecompressContainer(src []byte, size int) ([]byte, error) {
	if len(src) == 0 {
		return nil, fmt.Errorf("%w: empty compressed buffer", usd.ErrDecode)
	}
	if chunks := src[0]; chunks != 0 {
		return nil, fmt.Errorf("%w: unimplemented: %d-chunk compressed buffer", usd.ErrDecode, chunks)
	}
	return Decompress(src[1:], size)
}

// CompressContainer is the inverse of DecompressContainer.
func CompressContainer(data []byte) ([]byte, error) {
	block, err := Compress(data)
	if err != nil {
		return nil, err
	}
	return append([]byte{0}, block...), nil
}
