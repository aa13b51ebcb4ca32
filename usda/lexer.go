package usda

import (
	"fmt"
	"strings"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokAsset
	tokPath
	tokPunct
)

var tokenKindNames = [...]string{"end of input", "identifier", "number", "string", "asset path", "path", "punctuation"}

func (k tokenKind) String() string { return tokenKindNames[k] }

type token struct {
	kind tokenKind
	text string
	line int
	col  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokString:
		return fmt.Sprintf("string %q", t.text)
	case tokAsset:
		return "@" + t.text + "@"
	case tokPath:
		return "<" + t.text + ">"
	}
	return fmt.Sprintf("%q", t.text)
}

const punctuation = "()[]{}=,;:"

type lexer struct {
	src  string
	pos  int
	line int
	col  int
}

// lex splits src into tokens. Comments and whitespace, newlines included, are
// dropped: the grammar never depends on line structure.
func lex(src string) ([]token, error) {
	l := &lexer{src: src, line: 1, col: 1}
	var toks []token
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, t)
		if t.kind == tokEOF {
			return toks, nil
		}
	}
}

func (l *lexer) errorf(line, col int, format string, args ...any) error {
	return &SyntaxError{Line: line, Col: col, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) advance(n int) {
	for i := 0; i < n; i++ {
		if l.src[l.pos] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
}

func (l *lexer) peekByte(off int) byte {
	if l.pos+off < len(l.src) {
		return l.src[l.pos+off]
	}
	return 0
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		switch c := l.src[l.pos]; {
		case c == '#':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advance(1)
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			l.advance(1)
		default:
			return
		}
	}
}

func isLetter(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }

func (l *lexer) next() (token, error) {
	l.skipSpace()
	start, line, col := l.pos, l.line, l.col
	tok := func(kind tokenKind, text string) token { return token{kind: kind, text: text, line: line, col: col} }
	if l.pos >= len(l.src) {
		return tok(tokEOF, ""), nil
	}

	c := l.src[l.pos]
	switch {
	case isLetter(c):
		for l.pos < len(l.src) {
			c := l.src[l.pos]
			if !isLetter(c) && !isDigit(c) && c != ':' && c != '.' {
				break
			}
			l.advance(1)
		}
		return tok(tokIdent, l.src[start:l.pos]), nil

	case isDigit(c) || ((c == '-' || c == '+' || c == '.') && (isDigit(l.peekByte(1)) || l.peekByte(1) == '.')):
		l.number()
		return tok(tokNumber, l.src[start:l.pos]), nil

	case c == '-' && isLetter(l.peekByte(1)):
		// -inf
		l.advance(1)
		for l.pos < len(l.src) && isLetter(l.src[l.pos]) {
			l.advance(1)
		}
		return tok(tokNumber, l.src[start:l.pos]), nil

	case c == '"' || c == '\'':
		s, err := l.quoted(c)
		if err != nil {
			return token{}, err
		}
		return tok(tokString, s), nil

	case c == '@':
		delim := "@"
		if strings.HasPrefix(l.src[l.pos:], "@@@") {
			delim = "@@@"
		}
		l.advance(len(delim))
		end := strings.Index(l.src[l.pos:], delim)
		if end < 0 {
			return token{}, l.errorf(line, col, "unterminated asset path")
		}
		text := l.src[l.pos : l.pos+end]
		l.advance(end + len(delim))
		return tok(tokAsset, text), nil

	case c == '<':
		end := strings.IndexByte(l.src[l.pos:], '>')
		if end < 0 || strings.ContainsAny(l.src[l.pos:l.pos+end], "\n") {
			return token{}, l.errorf(line, col, "unterminated path")
		}
		text := l.src[l.pos+1 : l.pos+end]
		l.advance(end + 1)
		return tok(tokPath, text), nil

	case strings.IndexByte(punctuation, c) >= 0:
		l.advance(1)
		return tok(tokPunct, string(c)), nil
	}
	return token{}, l.errorf(line, col, "unexpected character %q", c)
}

func (l *lexer) number() {
	if c := l.src[l.pos]; c == '-' || c == '+' {
		l.advance(1)
	}
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case isDigit(c) || c == '.':
		case c == 'e' || c == 'E':
			if n := l.peekByte(1); n == '-' || n == '+' {
				l.advance(1)
			}
		default:
			return
		}
		l.advance(1)
	}
}

// quoted reads a single, double or triple quoted string and resolves escapes.
func (l *lexer) quoted(q byte) (string, error) {
	line, col := l.line, l.col
	delim := string(q)
	if strings.HasPrefix(l.src[l.pos:], strings.Repeat(delim, 3)) {
		delim = strings.Repeat(delim, 3)
	}
	l.advance(len(delim))

	var b strings.Builder
	for {
		if l.pos >= len(l.src) {
			return "", l.errorf(line, col, "unterminated string")
		}
		if strings.HasPrefix(l.src[l.pos:], delim) {
			l.advance(len(delim))
			return b.String(), nil
		}
		c := l.src[l.pos]
		if c == '\n' && len(delim) == 1 {
			return "", l.errorf(line, col, "newline in string")
		}
		if c == '\\' && l.pos+1 < len(l.src) {
			l.advance(1)
			switch e := l.src[l.pos]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(e)
			}
			l.advance(1)
			continue
		}
		b.WriteByte(c)
		l.advance(1)
	}
}
