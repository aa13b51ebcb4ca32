package crate

import (
	"bytes"
	"sync"
)

// bytesBufPool reuses buffers for Read, which must hold a whole file before
// decoding. Decoded scenes never alias the buffer.
var bytesBufPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 64*1024))
	},
}

func getBuffer() *bytes.Buffer {
	buf := bytesBufPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// putBuffer returns buf to the pool unless it grew past what is worth keeping.
func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 64<<20 {
		return
	}
	bytesBufPool.Put(buf)
}
