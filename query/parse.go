package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// SyntaxError is the error returned by Parse for malformed input.
type SyntaxError struct {
	Pos int // byte offset into the input
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("query syntax error at offset %d: %s", e.Pos, e.Msg)
}

// Parse parses the textual form of a query expression.
func Parse(s string) (Expr, error) {
	p := &parser{s: s}
	p.next()
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected %s", p.tok)
	}
	return e, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokErr
	tokIdent
	tokString
	tokNumber
	tokEq
	tokTilde
	tokAnd
	tokOr
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokErr:
		return t.text
	}
	return strconv.Quote(t.text)
}

type parser struct {
	s   string
	pos int
	tok token
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return &SyntaxError{Pos: p.tok.pos, Msg: fmt.Sprintf(format, args...)}
}

func isIdentByte(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '_', c == '-', c == '.':
		return true
	}
	return false
}

// IsIdent tells whether s can appear as an annotation key in a query.
func IsIdent(s string) bool {
	if s == "" {
		return false
	}
	digits := true
	for i := 0; i < len(s); i++ {
		if !isIdentByte(s[i]) {
			return false
		}
		digits = digits && isDigit(s[i])
	}
	return !digits
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

// next advances p.tok.
func (p *parser) next() {
	for p.pos < len(p.s) && strings.IndexByte(" \t\r\n", p.s[p.pos]) >= 0 {
		p.pos++
	}
	start := p.pos
	if p.pos >= len(p.s) {
		p.tok = token{kind: tokEOF, pos: start}
		return
	}

	two := func(kind tokKind, text string) {
		if strings.HasPrefix(p.s[p.pos:], text) {
			p.pos += len(text)
			p.tok = token{kind: kind, text: text, pos: start}
			return
		}
		p.tok = token{kind: tokErr, text: fmt.Sprintf("stray %q", p.s[p.pos]), pos: start}
	}

	switch c := p.s[p.pos]; {
	case c == '=':
		p.pos++
		p.tok = token{kind: tokEq, text: "=", pos: start}
	case c == '~':
		p.pos++
		p.tok = token{kind: tokTilde, text: "~", pos: start}
	case c == '(':
		p.pos++
		p.tok = token{kind: tokLParen, text: "(", pos: start}
	case c == ')':
		p.pos++
		p.tok = token{kind: tokRParen, text: ")", pos: start}
	case c == '&':
		two(tokAnd, "&&")
	case c == '|':
		two(tokOr, "||")
	case c == '"':
		p.pos++
		for p.pos < len(p.s) && p.s[p.pos] != '"' {
			if p.s[p.pos] == '\\' {
				p.pos++
			}
			p.pos++
		}
		if p.pos >= len(p.s) {
			p.tok = token{kind: tokErr, text: "unterminated string", pos: start}
			return
		}
		p.pos++
		p.tok = token{kind: tokString, text: p.s[start:p.pos], pos: start}
	case isDigit(c):
		for p.pos < len(p.s) && isDigit(p.s[p.pos]) {
			p.pos++
		}
		if p.pos < len(p.s) && isIdentByte(p.s[p.pos]) {
			for p.pos < len(p.s) && isIdentByte(p.s[p.pos]) {
				p.pos++
			}
			p.tok = token{kind: tokIdent, text: p.s[start:p.pos], pos: start}
			return
		}
		p.tok = token{kind: tokNumber, text: p.s[start:p.pos], pos: start}
	case isIdentByte(c):
		for p.pos < len(p.s) && isIdentByte(p.s[p.pos]) {
			p.pos++
		}
		p.tok = token{kind: tokIdent, text: p.s[start:p.pos], pos: start}
	default:
		p.tok = token{kind: tokErr, text: fmt.Sprintf("stray %q", c), pos: start}
	}
}

func (p *parser) parseOr() (Expr, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	exprs := []Expr{first}
	for p.tok.kind == tokOr {
		p.next()
		e, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	return Any(exprs...), nil
}

func (p *parser) parseAnd() (Expr, error) {
	first, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	exprs := []Expr{first}
	for p.tok.kind == tokAnd {
		p.next()
		e, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	return All(exprs...), nil
}

func (p *parser) parseTerm() (Expr, error) {
	switch p.tok.kind {
	case tokLParen:
		p.next()
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, p.errorf("want ), got %s", p.tok)
		}
		p.next()
		return e, nil

	case tokIdent:
		key := p.tok.text
		p.next()
		op := p.tok.kind
		if op != tokEq && op != tokTilde {
			return nil, p.errorf("want = or ~ after %s, got %s", key, p.tok)
		}
		p.next()
		val := p.tok
		p.next()

		switch {
		case val.kind == tokString:
			s, err := strconv.Unquote(val.text)
			if err != nil {
				return nil, &SyntaxError{Pos: val.pos, Msg: fmt.Sprintf("bad string literal %s", val.text)}
			}
			if op == tokEq {
				return Str(key, s), nil
			}
			g, err := Glob(key, s)
			if err != nil {
				return nil, &SyntaxError{Pos: val.pos, Msg: errors.Cause(err).Error()}
			}
			return g, nil

		case val.kind == tokNumber && op == tokEq:
			n, err := strconv.ParseUint(val.text, 10, 64)
			if err != nil {
				return nil, &SyntaxError{Pos: val.pos, Msg: fmt.Sprintf("bad number %s", val.text)}
			}
			return Num(key, n), nil

		case val.kind == tokNumber:
			return nil, &SyntaxError{Pos: val.pos, Msg: fmt.Sprintf("glob on %s needs a string pattern", key)}
		}
		return nil, &SyntaxError{Pos: val.pos, Msg: fmt.Sprintf("want a value for %s, got %s", key, val)}
	}

	return nil, p.errorf("unexpected %s", p.tok)
}
