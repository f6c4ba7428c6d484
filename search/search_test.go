package search

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/es"
	"github.com/bobg/es/schema"
	"github.com/bobg/es/store/mem"
)

func thumb(ns, tags string) es.Entity {
	m := schema.Meta{Namespace: ns, Tags: tags}
	return es.Entity{
		Payload:     []byte("jpeg"),
		Annotations: m.Derived(es.NewKey(nil, 0, []byte(tags)), schema.TypeThumbnail, "100x100", "thumb_x", "image/jpeg"),
	}
}

func TestByTag(t *testing.T) {
	cases := []struct {
		tags, term string
		want       bool
	}{
		{tags: "cat", term: "cat", want: true},
		{tags: "cat,dog", term: "cat", want: true},
		{tags: "dog,cat", term: "cat", want: true},
		{tags: "dog,cat,bird", term: "cat", want: true},
		{tags: "scatter", term: "cat", want: false},
		{tags: "cats,dog", term: "cat", want: false},
		{tags: "dog,bobcat", term: "cat", want: false},
		{tags: "landscape, nature", term: "nature", want: true},
		{tags: "landscape, nature", term: "landscape", want: true},
		{tags: "a, nature, b", term: "nature", want: true},
		{tags: "cat ,dog", term: "cat", want: true},
		{tags: "dog ,cat", term: "cat", want: true},
		{tags: "dog , cat", term: "cat", want: true},
		{tags: "a , cat , b", term: "cat", want: true},
		{tags: "cat , dog", term: "dog", want: true},
		{tags: "dog ,cats", term: "cat", want: false},
		{tags: "dog,  cat", term: "cat", want: false},
		{tags: "a*b", term: "a*b", want: true},
		{tags: "axxb", term: "a*b", want: false},
		{tags: "x,a?b", term: "a?b", want: true},
		{tags: "x,acb", term: "a?b", want: false},
	}
	for _, c := range cases {
		t.Run(c.tags+"/"+c.term, func(t *testing.T) {
			e := thumb(schema.DefaultNamespace, c.tags)
			if got := ByTag(schema.DefaultNamespace, c.term).Match(e.Annotations); got != c.want {
				t.Errorf("got %v, want %v", got, c.want)
			}
		})
	}
}

func TestFindByTag(t *testing.T) {
	ctx := context.Background()
	s := mem.New()

	ents := []es.Entity{
		thumb(schema.DefaultNamespace, "cat,dog"),
		thumb(schema.DefaultNamespace, "dog,cat"),
		thumb(schema.DefaultNamespace, "scatter"),
		thumb("other", "cat"),
	}
	// A root with a matching tag is not a thumbnail.
	root := es.Entity{Annotations: schema.Meta{Tags: "cat"}.Root(1)}
	ents = append(ents, root)

	keys, err := s.Create(ctx, ents)
	if err != nil {
		t.Fatal(err)
	}

	got, err := FindByTag(ctx, s, schema.DefaultNamespace, "cat")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(keys[:2], got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	got, err = Thumbnails(ctx, s, schema.DefaultNamespace)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(keys[:3], got); diff != "" {
		t.Errorf("thumbnails mismatch (-want +got):\n%s", diff)
	}
}

func TestParent(t *testing.T) {
	ctx := context.Background()
	s := mem.New()

	rootKeys, err := s.Create(ctx, []es.Entity{{Annotations: schema.Meta{}.Root(1)}})
	if err != nil {
		t.Fatal(err)
	}
	root := rootKeys[0]

	thumbKeys, err := s.Create(ctx, []es.Entity{{
		Annotations: schema.Meta{}.Derived(root, schema.TypeThumbnail, "1x1", "t", "image/jpeg"),
	}})
	if err != nil {
		t.Fatal(err)
	}

	got, err := Parent(ctx, s, thumbKeys[0])
	if err != nil {
		t.Fatal(err)
	}
	if got != root {
		t.Errorf("got parent %s, want %s", got, root)
	}

	if _, err := Parent(ctx, s, root); !errors.Is(err, es.ErrNotFound) {
		t.Errorf("got %v for a root, want ErrNotFound", err)
	}
	if _, err := Parent(ctx, s, es.NewKey(nil, 9, nil)); !errors.Is(err, es.ErrNotFound) {
		t.Errorf("got %v for a missing key, want ErrNotFound", err)
	}
}
