package usd

import (
	"fmt"
	"strconv"
	"strings"
)

// LiteralKind classifies a parsed text literal.
type LiteralKind uint8

const (
	LitAtom   LiteralKind = iota // number, identifier or keyword
	LitString                    // "…", '…' or """…"""
	LitAsset                     // @…@
	LitPath                      // <…>
	LitTuple                     // ( … )
	LitList                      // [ … ]
)

// Literal is the syntax tree of one value in the text encoding, before it is
// converted to a typed payload by ParseLiteral.
type Literal struct {
	Kind  LiteralKind
	Text  string
	Items []Literal
}

func (l Literal) String() string {
	switch l.Kind {
	case LitString:
		return strconv.Quote(l.Text)
	case LitAsset:
		return "@" + l.Text + "@"
	case LitPath:
		return "<" + l.Text + ">"
	case LitTuple, LitList:
		parts := make([]string, len(l.Items))
		for i, item := range l.Items {
			parts[i] = item.String()
		}
		if l.Kind == LitTuple {
			return "(" + strings.Join(parts, ", ") + ")"
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return l.Text
}

func literalError(want string, l Literal) error {
	return fmt.Errorf("%w: expected %s, got %s", ErrParsing, want, l)
}

func litAtom(l Literal) (string, error) {
	if l.Kind != LitAtom {
		return "", literalError("a number", l)
	}
	return l.Text, nil
}

func litFloat(l Literal, bits int) (float64, error) {
	s, err := litAtom(l)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrParsing, err)
	}
	return v, nil
}

func litInt(l Literal, bits int) (int64, error) {
	s, err := litAtom(l)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrParsing, err)
	}
	return v, nil
}

func litUint(l Literal, bits int) (uint64, error) {
	s, err := litAtom(l)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrParsing, err)
	}
	return v, nil
}

func litBool(l Literal) (bool, error) {
	s, err := litAtom(l)
	if err != nil {
		return false, err
	}
	switch s {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, literalError("a bool", l)
}

// litTuple returns the n members of a tuple literal.
func litTuple(l Literal, n int) ([]Literal, error) {
	if l.Kind != LitTuple || len(l.Items) != n {
		return nil, literalError(fmt.Sprintf("a %d-tuple", n), l)
	}
	return l.Items, nil
}

// litText accepts quoted strings and, leniently, bare identifiers.
func litText(l Literal) (string, error) {
	switch l.Kind {
	case LitString, LitAtom:
		return l.Text, nil
	}
	return "", literalError("a string", l)
}
