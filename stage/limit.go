package stage

import (
	"fmt"
	"io"
)

// limitReader reads at most limit bytes from r. Unlike io.LimitedReader it
// fails once the stream goes past the limit, so an oversized pipe or a file
// that grew after Stat is rejected rather than decoded truncated.
type limitReader struct {
	*io.LimitedReader
	limit int64
}

func newLimitReader(r io.Reader, limit int64) *limitReader {
	return &limitReader{&io.LimitedReader{R: r, N: limit + 1}, limit}
}

// Read implements the io.Reader interface.
func (r *limitReader) Read(p []byte) (int, error) {
	n, err := r.LimitedReader.Read(p)
	if r.N == 0 {
		return n, fmt.Errorf("stream exceeds %d bytes", r.limit)
	}
	return n, err
}
