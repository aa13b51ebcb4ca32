package usda

import (
	"fmt"

	"github.com/oy3o/usd"
)

// SyntaxError is a grammar violation at a 1-based line and column. It matches
// usd.ErrParsing under errors.Is.
type SyntaxError struct {
	Line int
	Col  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("usda: %d:%d: %s", e.Line, e.Col, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return usd.ErrParsing }
