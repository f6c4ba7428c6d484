package query

import (
	"errors"
	"testing"

	"github.com/bobg/es"
)

func annots(strs ...string) es.Annotations {
	var a es.Annotations
	for i := 0; i+1 < len(strs); i += 2 {
		a.AddString(strs[i], strs[i+1])
	}
	return a
}

func TestParseRender(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{in: `type="image"`, want: `type = "image"`},
		{in: `part = 3`, want: `part = 3`},
		{in: `part-of=12`, want: `part-of = 12`},
		{in: `mime-type = "image/png" && app = "x"`, want: `mime-type = "image/png" && app = "x"`},
		{in: `a="1" || b="2" && c="3"`, want: `a = "1" || b = "2" && c = "3"`},
		{in: `(a="1" || b="2") && c="3"`, want: `(a = "1" || b = "2") && c = "3"`},
		{in: `tag ~ "*,cat,*"`, want: `tag ~ "*,cat,*"`},
		{in: `name = "with \"quotes\""`, want: `name = "with \"quotes\""`},
		{in: `((x = 1))`, want: `x = 1`},
	}

	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			e, err := Parse(c.in)
			if err != nil {
				t.Fatal(err)
			}
			if got := e.String(); got != c.want {
				t.Errorf("got %s, want %s", got, c.want)
			}
			e2, err := Parse(e.String())
			if err != nil {
				t.Fatalf("reparsing %s: %s", e, err)
			}
			if e2.String() != e.String() {
				t.Errorf("reparse gave %s, want %s", e2, e)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		``,
		`type`,
		`type =`,
		`type = image`,
		`type == "image"`,
		`part ~ 3`,
		`a = "1" &&`,
		`a = "1" & b = "2"`,
		`(a = "1"`,
		`a = "1")`,
		`a = "unterminated`,
		`a = 99999999999999999999999`,
		`a = "1" b = "2"`,
	}
	for _, c := range cases {
		t.Run(c, func(t *testing.T) {
			_, err := Parse(c)
			var se *SyntaxError
			if !errors.As(err, &se) {
				t.Fatalf("got %v, want a *SyntaxError", err)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	var entity es.Annotations
	entity.AddString("type", "image_chunk")
	entity.AddString("parent", "0xabc")
	entity.AddString("tag", "cat,dog")
	entity.AddString("tag", "bird")
	entity.AddNumeric("part", 2)

	cases := []struct {
		q    string
		want bool
	}{
		{q: `type = "image_chunk"`, want: true},
		{q: `type = "image"`, want: false},
		{q: `part = 2`, want: true},
		{q: `part = 3`, want: false},
		{q: `part-of = 2`, want: false},
		{q: `tag = "bird"`, want: true},
		{q: `tag ~ "cat,*"`, want: true},
		{q: `tag ~ "*,cat"`, want: false},
		{q: `tag ~ "*,dog"`, want: true},
		{q: `type = "image_chunk" && part = 2 && parent = "0xabc"`, want: true},
		{q: `type = "image_chunk" && part = 3`, want: false},
		{q: `part = 3 || tag = "bird"`, want: true},
		{q: `(part = 3 || tag = "fish") && type = "image_chunk"`, want: false},
	}

	for _, c := range cases {
		t.Run(c.q, func(t *testing.T) {
			e, err := Parse(c.q)
			if err != nil {
				t.Fatal(err)
			}
			if got := e.Match(entity); got != c.want {
				t.Errorf("got %v, want %v", got, c.want)
			}
		})
	}
}

func TestQuoteMeta(t *testing.T) {
	g := MustGlob("tag", "*,"+QuoteMeta("a*b?")+",*")
	if !g.Match(annots("tag", "x,a*b?,y")) {
		t.Error("escaped pattern did not match literal metacharacters")
	}
	if g.Match(annots("tag", "x,aXXbY,y")) {
		t.Error("escaped pattern matched as a wildcard")
	}
}

func TestBuilders(t *testing.T) {
	e := All(Str("type", "thumbnail"), Any(Str("tag", "a"), MustGlob("tag", "a,*")))
	const want = `type = "thumbnail" && (tag = "a" || tag ~ "a,*")`
	if got := e.String(); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
	if got := All(Str("a", "b")); got != Str("a", "b") {
		t.Errorf("single-element All should be its element, got %#v", got)
	}
}

func TestIsIdent(t *testing.T) {
	for s, want := range map[string]bool{
		"":          false,
		"camera":    true,
		"part-of":   true,
		"a.b_c":     true,
		"2024":      false,
		"2024x":     true,
		"has space": false,
		"q\"uote":   false,
	} {
		if got := IsIdent(s); got != want {
			t.Errorf("IsIdent(%q) = %v, want %v", s, got, want)
		}
	}
}
