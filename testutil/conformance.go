// Package testutil contains tests that every entity store implementation should pass.
package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/bobg/es"
	"github.com/bobg/es/query"
)

// RunID returns a random string for tagging the entities of one test run,
// so that tests against persistent stores don't see each other's data.
func RunID(t *testing.T) string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		t.Fatal(err)
	}
	return hex.EncodeToString(buf[:])
}

// Conformance checks the basic Create, Get, and Query contract of a store,
// and Delete too if the store is an es.Deleter.
func Conformance(ctx context.Context, t *testing.T, s es.Store) {
	run := RunID(t)

	mk := func(typ, name string, part uint64, payload string) es.Entity {
		e := es.Entity{Payload: []byte(payload), BTL: 100}
		e.AddString("run", run)
		e.AddString("type", typ)
		e.AddString("name", name)
		e.AddString("tag", "red,green")
		e.AddString("tag", "blue")
		e.AddNumeric("part", part)
		return e
	}

	ents := []es.Entity{
		mk("a", "first", 1, "hello"),
		mk("b", "second", 2, "world"),
		mk("b", "third", 3, ""),
	}

	keys, err := s.Create(ctx, ents)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != len(ents) {
		t.Fatalf("got %d keys, want %d", len(keys), len(ents))
	}
	seen := make(map[es.Key]bool)
	for _, k := range keys {
		if k.IsZero() {
			t.Error("got zero key")
		}
		if seen[k] {
			t.Errorf("duplicate key %s", k)
		}
		seen[k] = true
	}

	opts := cmp.Options{cmpopts.EquateEmpty()}

	t.Run("get", func(t *testing.T) {
		for i, k := range keys {
			annots, payload, err := s.Get(ctx, k)
			if err != nil {
				t.Fatalf("getting %s: %s", k, err)
			}
			if diff := cmp.Diff(ents[i].Annotations, annots, opts); diff != "" {
				t.Errorf("annotations mismatch for entity %d (-want +got):\n%s", i, diff)
			}
			if diff := cmp.Diff(ents[i].Payload, payload, opts); diff != "" {
				t.Errorf("payload mismatch for entity %d (-want +got):\n%s", i, diff)
			}
		}
	})

	t.Run("get_missing", func(t *testing.T) {
		_, _, err := s.Get(ctx, es.NewKey([]byte(run), 99, nil))
		if !errors.Is(err, es.ErrNotFound) {
			t.Errorf("got error %v, want ErrNotFound", err)
		}
	})

	inRun := query.Str("run", run)

	cases := []struct {
		name string
		q    query.Expr
		want []es.Key
	}{
		{name: "str", q: query.All(inRun, query.Str("type", "b")), want: keys[1:]},
		{name: "num", q: query.All(inRun, query.Num("part", 1)), want: keys[:1]},
		{name: "repeated_key", q: query.All(inRun, query.Str("tag", "blue")), want: keys},
		{name: "glob", q: query.All(inRun, query.MustGlob("tag", "*,green")), want: keys},
		{name: "glob_miss", q: query.All(inRun, query.MustGlob("tag", "green,*")), want: nil},
		{name: "or", q: query.All(inRun, query.Any(query.Num("part", 1), query.Str("name", "third"))), want: []es.Key{keys[0], keys[2]}},
		{name: "none", q: query.All(inRun, query.Str("type", "c")), want: nil},
	}

	for _, c := range cases {
		t.Run("query_"+c.name, func(t *testing.T) {
			results, err := s.Query(ctx, c.q.String())
			if err != nil {
				t.Fatal(err)
			}
			var got []es.Key
			for _, r := range results {
				got = append(got, r.Key)
				i := indexOf(keys, r.Key)
				if i < 0 {
					t.Errorf("unexpected key %s", r.Key)
					continue
				}
				if diff := cmp.Diff(ents[i].Payload, r.Payload, opts); diff != "" {
					t.Errorf("payload mismatch for %s (-want +got):\n%s", r.Key, diff)
				}
				if diff := cmp.Diff(ents[i].Annotations, r.Annotations, opts); diff != "" {
					t.Errorf("annotations mismatch for %s (-want +got):\n%s", r.Key, diff)
				}
			}
			if diff := cmp.Diff(sortKeys(c.want), sortKeys(got), opts); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("query_malformed", func(t *testing.T) {
		if _, err := s.Query(ctx, `type = `); err == nil {
			t.Error("got no error for malformed query")
		}
	})

	t.Run("create_empty", func(t *testing.T) {
		got, err := s.Create(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 0 {
			t.Errorf("got %d keys, want 0", len(got))
		}
	})

	d, ok := s.(es.Deleter)
	if !ok {
		return
	}

	t.Run("delete", func(t *testing.T) {
		if err := d.Delete(ctx, keys[1:2]); err != nil {
			t.Fatal(err)
		}
		if _, _, err := s.Get(ctx, keys[1]); !errors.Is(err, es.ErrNotFound) {
			t.Errorf("got error %v after delete, want ErrNotFound", err)
		}
		results, err := s.Query(ctx, inRun.String())
		if err != nil {
			t.Fatal(err)
		}
		var got []es.Key
		for _, r := range results {
			got = append(got, r.Key)
		}
		want := []es.Key{keys[0], keys[2]}
		if diff := cmp.Diff(sortKeys(want), sortKeys(got)); diff != "" {
			t.Errorf("mismatch after delete (-want +got):\n%s", diff)
		}
		if err := d.Delete(ctx, keys); err != nil {
			t.Fatal(err)
		}
	})
}

func indexOf(keys []es.Key, k es.Key) int {
	for i, key := range keys {
		if key == k {
			return i
		}
	}
	return -1
}

func sortKeys(keys []es.Key) []es.Key {
	out := append([]es.Key(nil), keys...)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
