package stage

import "io"

// peekReader lets the format sniffer look at the head of a stream and then
// hand the whole stream, head included, to the decoder.
type peekReader struct {
	r   io.Reader
	buf []byte
}

func newPeekReader(r io.Reader) *peekReader {
	if pr, ok := r.(*peekReader); ok {
		return pr
	}
	return &peekReader{r: r}
}

// Peek returns up to n bytes without consuming them. A short result comes
// with the error that cut it short.
func (r *peekReader) Peek(n int) ([]byte, error) {
	if len(r.buf) >= n {
		return r.buf[:n], nil
	}
	i := len(r.buf)
	r.buf = append(r.buf, make([]byte, n-i)...)
	var err error
	for i < n {
		read, er := r.r.Read(r.buf[i:])
		i += read
		if er != nil {
			err = er
			break
		}
	}
	r.buf = r.buf[:i]
	return r.buf, err
}

// Read drains the peeked bytes before reading on.
func (r *peekReader) Read(p []byte) (int, error) {
	if len(r.buf) > 0 {
		n := copy(p, r.buf)
		r.buf = r.buf[n:]
		return n, nil
	}
	return r.r.Read(p)
}
