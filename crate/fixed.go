package crate

import (
	"encoding/binary"
	"reflect"

	"github.com/puzpuzpuz/xsync/v4"
)

// sizeCache avoids the cost of reflection in `binary.Size` on every call.
var sizeCache = xsync.NewMap[reflect.Type, int]()

// fixedSize returns the encoded size of the fixed-layout record T.
//
// Constraint: T MUST NOT contain variable-size fields like slices, maps, or
// strings, and its fields must be exported so encoding/binary can fill them.
func fixedSize[T any]() int {
	t := reflect.TypeFor[T]()
	if size, ok := sizeCache.Load(t); ok {
		return size
	}
	var zero T
	size := binary.Size(&zero)
	sizeCache.Store(t, size)
	return size
}

// readFixed decodes one fixed-layout record at the current position.
func readFixed[T any](r *Reader, dest *T) {
	buf := r.readFull(fixedSize[T]())
	if r.err != nil {
		return
	}
	if _, err := binary.Decode(buf, r.order, dest); err != nil {
		r.setError(ErrTruncated)
	}
}

// writeFixed appends one fixed-layout record.
func writeFixed[T any](w *Writer, v *T) {
	if w.err != nil {
		return
	}
	buf, err := binary.Append(w.buf, w.order, v)
	if err != nil {
		w.setError(err)
		return
	}
	w.buf = buf
}
