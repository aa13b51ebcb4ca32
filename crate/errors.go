package crate

import (
	"fmt"

	"github.com/oy3o/usd"
)

var (
	// ErrTruncated indicates a read that ran past the end of the file.
	ErrTruncated = fmt.Errorf("%w: truncated data", usd.ErrParsing)

	// ErrInvalidSeek indicates an offset that points outside the file.
	ErrInvalidSeek = fmt.Errorf("%w: seek to an invalid position", usd.ErrParsing)

	// ErrInvalidWhence indicates that an invalid 'whence' parameter was provided to a Seek operation.
	ErrInvalidWhence = fmt.Errorf("%w: unsupported whence", usd.ErrParsing)

	// ErrMissingSection indicates the table of contents lacks a required section.
	ErrMissingSection = fmt.Errorf("%w: missing section", usd.ErrParsing)

	// ErrIndex indicates a token, string, path or field index beyond its table.
	ErrIndex = fmt.Errorf("%w: index out of range", usd.ErrParsing)

	// ErrUnsupportedValue indicates a value type this package cannot read from
	// or write to a crate file. The decoder skips such fields with a warning.
	ErrUnsupportedValue = fmt.Errorf("%w: unsupported crate value", usd.ErrType)
)
