// Package query implements boolean expressions over entity annotations.
//
// The textual form is:
//
//	expr  = or
//	or    = and { "||" and }
//	and   = term { "&&" term }
//	term  = "(" expr ")" | ident "=" string | ident "=" uint | ident "~" string
//
// where string is a Go-quoted string literal
// and ident is a run of letters, digits, and the characters "_", "-", and ".".
// The "~" operator matches a glob pattern
// (see github.com/gobwas/glob)
// against every string annotation with the given key.
package query

import (
	"strconv"
	"strings"

	"github.com/gobwas/glob"
	"github.com/pkg/errors"

	"github.com/bobg/es"
)

// Expr is a parsed query expression.
type Expr interface {
	// String renders the expression in a form that Parse accepts.
	String() string

	// Match tells whether the annotations satisfy the expression.
	Match(es.Annotations) bool
}

type (
	// StrEq matches entities having a string annotation Key with value Value.
	StrEq struct {
		Key, Value string
	}

	// NumEq matches entities having a numeric annotation Key with value Value.
	NumEq struct {
		Key   string
		Value uint64
	}

	// GlobMatch matches entities having a string annotation Key
	// whose value matches the glob Pattern.
	GlobMatch struct {
		Key, Pattern string
		g            glob.Glob
	}

	// And matches when all of its subexpressions match.
	And []Expr

	// Or matches when any of its subexpressions matches.
	Or []Expr
)

var (
	_ Expr = StrEq{}
	_ Expr = NumEq{}
	_ Expr = (*GlobMatch)(nil)
	_ Expr = And{}
	_ Expr = Or{}
)

// Str produces a StrEq expression.
func Str(key, value string) Expr {
	return StrEq{Key: key, Value: value}
}

// Num produces a NumEq expression.
func Num(key string, value uint64) Expr {
	return NumEq{Key: key, Value: value}
}

// Glob produces a GlobMatch expression.
func Glob(key, pattern string) (*GlobMatch, error) {
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "compiling glob %q", pattern)
	}
	return &GlobMatch{Key: key, Pattern: pattern, g: g}, nil
}

// MustGlob is like Glob but panics on a malformed pattern.
func MustGlob(key, pattern string) *GlobMatch {
	m, err := Glob(key, pattern)
	if err != nil {
		panic(err)
	}
	return m
}

// QuoteMeta escapes the glob metacharacters in s.
func QuoteMeta(s string) string {
	return glob.QuoteMeta(s)
}

// All produces the conjunction of its arguments.
func All(exprs ...Expr) Expr {
	if len(exprs) == 1 {
		return exprs[0]
	}
	return And(exprs)
}

// Any produces the disjunction of its arguments.
func Any(exprs ...Expr) Expr {
	if len(exprs) == 1 {
		return exprs[0]
	}
	return Or(exprs)
}

func (e StrEq) String() string {
	return e.Key + " = " + strconv.Quote(e.Value)
}

func (e StrEq) Match(a es.Annotations) bool {
	for _, s := range a.Strings {
		if s.Key == e.Key && s.Value == e.Value {
			return true
		}
	}
	return false
}

func (e NumEq) String() string {
	return e.Key + " = " + strconv.FormatUint(e.Value, 10)
}

func (e NumEq) Match(a es.Annotations) bool {
	for _, n := range a.Numerics {
		if n.Key == e.Key && n.Value == e.Value {
			return true
		}
	}
	return false
}

func (e *GlobMatch) String() string {
	return e.Key + " ~ " + strconv.Quote(e.Pattern)
}

func (e *GlobMatch) Match(a es.Annotations) bool {
	for _, s := range a.Strings {
		if s.Key == e.Key && e.g.Match(s.Value) {
			return true
		}
	}
	return false
}

func (e And) String() string {
	strs := make([]string, 0, len(e))
	for _, sub := range e {
		if _, ok := sub.(Or); ok {
			strs = append(strs, "("+sub.String()+")")
		} else {
			strs = append(strs, sub.String())
		}
	}
	return strings.Join(strs, " && ")
}

func (e And) Match(a es.Annotations) bool {
	for _, sub := range e {
		if !sub.Match(a) {
			return false
		}
	}
	return true
}

func (e Or) String() string {
	strs := make([]string, 0, len(e))
	for _, sub := range e {
		strs = append(strs, sub.String())
	}
	return strings.Join(strs, " || ")
}

func (e Or) Match(a es.Annotations) bool {
	for _, sub := range e {
		if sub.Match(a) {
			return true
		}
	}
	return false
}
