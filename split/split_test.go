package split

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/es"
	"github.com/bobg/es/schema"
	"github.com/bobg/es/store/mem"
)

func randBlob(t *testing.T, n int) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(b)
	return b
}

func TestChunk(t *testing.T) {
	cases := []struct {
		n, size int
		want    []int
	}{
		{n: 0, size: 5, want: []int{0}},
		{n: 1, size: 5, want: []int{1}},
		{n: 5, size: 5, want: []int{5}},
		{n: 6, size: 5, want: []int{5, 1}},
		{n: 3, size: 1, want: []int{1, 1, 1}},
		{n: 250000, size: 100000, want: []int{100000, 100000, 50000}},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("%d_%d", c.n, c.size), func(t *testing.T) {
			blob := randBlob(t, c.n)
			pieces := Chunk(blob, c.size)
			var got []int
			for _, p := range pieces {
				got = append(got, len(p))
			}
			if diff := cmp.Diff(c.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
			if !bytes.Equal(bytes.Join(pieces, nil), blob) {
				t.Error("pieces do not concatenate to the original")
			}
		})
	}
}

func TestChunkBadSize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Chunk did not panic on size 0")
		}
	}()
	Chunk([]byte("x"), 0)
}

func TestWriteBadSize(t *testing.T) {
	s := mem.New()
	if _, err := Write(context.Background(), s, []byte("x"), schema.Meta{}, ChunkSize(0)); err == nil {
		t.Error("got no error for chunk size 0")
	}
	if s.Len() != 0 {
		t.Errorf("store has %d entities, want 0", s.Len())
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, size := range []int{1, 7, 1000} {
		for _, n := range []int{0, 1, 6, 7, 8, 999, 1000, 1001, 5000} {
			if size == 1 && n > 1000 {
				continue
			}
			t.Run(fmt.Sprintf("%d_%d", size, n), func(t *testing.T) {
				s := mem.New()
				blob := randBlob(t, n)
				root, err := Write(ctx, s, blob, schema.Meta{Filename: "f.png", MimeType: "image/png"}, ChunkSize(size))
				if err != nil {
					t.Fatal(err)
				}
				got, err := Read(ctx, s, root)
				if err != nil {
					t.Fatal(err)
				}
				if !bytes.Equal(got.Data, blob) {
					t.Errorf("got %d bytes, want %d (contents differ)", len(got.Data), len(blob))
				}
				if got.Filename != "f.png" || got.MimeType != "image/png" {
					t.Errorf("got filename %q, mime type %q", got.Filename, got.MimeType)
				}
				wantParts := len(Chunk(blob, size))
				if got.Parts != uint64(wantParts) {
					t.Errorf("got %d parts, want %d", got.Parts, wantParts)
				}
				if s.Len() != wantParts {
					t.Errorf("store has %d entities, want %d", s.Len(), wantParts)
				}
			})
		}
	}
}

func TestEmpty(t *testing.T) {
	ctx := context.Background()
	s := mem.New()
	root, err := Write(ctx, s, nil, schema.Meta{})
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 1 {
		t.Fatalf("store has %d entities, want 1", s.Len())
	}
	annots, payload, err := s.Get(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	if len(payload) != 0 {
		t.Errorf("root payload has %d bytes, want 0", len(payload))
	}
	if n, _ := annots.NumericValue(schema.KeyPartOf); n != 1 {
		t.Errorf("got part-of %d, want 1", n)
	}
	got, err := Read(ctx, s, root)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Data) != 0 {
		t.Errorf("read %d bytes, want 0", len(got.Data))
	}
	if got.Filename != schema.DefaultFilename || got.MimeType != schema.DefaultMimeType {
		t.Errorf("got filename %q, mime type %q; want defaults", got.Filename, got.MimeType)
	}
}

func TestLayout(t *testing.T) {
	ctx := context.Background()
	s := mem.New()
	blob := randBlob(t, 250000)

	var custom es.Annotations
	custom.AddString("k", "v")
	meta := schema.Meta{Filename: "big.jpg", MimeType: "image/jpeg", Tags: "landscape, nature", Custom: custom}

	root, err := Write(ctx, s, blob, meta)
	if err != nil {
		t.Fatal(err)
	}

	results, err := s.Query(ctx, `app = "golem-images-0.1"`)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d entities, want 3", len(results))
	}

	var (
		parts = make(map[uint64]int)
		sizes = make(map[uint64]int)
	)
	for _, r := range results {
		part, _ := r.NumericValue(schema.KeyPart)
		partOf, _ := r.NumericValue(schema.KeyPartOf)
		if partOf != 3 {
			t.Errorf("entity %s has part-of %d, want 3", r.Key, partOf)
		}
		parts[part]++
		sizes[part] = len(r.Payload)

		typ, _ := r.StringValue(schema.KeyType)
		parent, hasParent := r.StringValue(schema.KeyParent)
		_, hasTag := r.StringValue(schema.KeyTag)
		_, hasCustom := r.StringValue("k")

		if r.Key == root {
			if part != 1 || typ != schema.TypeImage || hasParent {
				t.Errorf("root has part %d, type %q, parent %v", part, typ, hasParent)
			}
			if tag, _ := r.StringValue(schema.KeyTag); tag != "landscape, nature" {
				t.Errorf("root has tag %q", tag)
			}
			if v, _ := r.StringValue("k"); v != "v" {
				t.Errorf("root has custom annotation k=%q", v)
			}
			continue
		}
		if typ != schema.TypeChunk || parent != root.String() {
			t.Errorf("chunk %d has type %q, parent %q", part, typ, parent)
		}
		if hasTag || hasCustom {
			t.Errorf("chunk %d carries tags or custom annotations", part)
		}
		if fn, _ := r.StringValue(schema.KeyFilename); fn != "big.jpg" {
			t.Errorf("chunk %d has filename %q", part, fn)
		}
	}

	if diff := cmp.Diff(map[uint64]int{1: 1, 2: 1, 3: 1}, parts); diff != "" {
		t.Errorf("part numbers mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[uint64]int{1: 100000, 2: 100000, 3: 50000}, sizes); diff != "" {
		t.Errorf("chunk sizes mismatch (-want +got):\n%s", diff)
	}

	got, err := Read(ctx, s, root)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Data, blob) {
		t.Error("reassembled blob differs from original")
	}
}

func TestMissingChunk(t *testing.T) {
	ctx := context.Background()
	const size = 10
	blob := randBlob(t, 5*size)
	pieces := Chunk(blob, size)

	for k := uint64(2); k <= 5; k++ {
		t.Run(fmt.Sprintf("part_%d", k), func(t *testing.T) {
			s := mem.New()
			root, err := Write(ctx, s, blob, schema.Meta{}, ChunkSize(size))
			if err != nil {
				t.Fatal(err)
			}

			results, err := s.Query(ctx, schema.ChunkQuery(schema.DefaultNamespace, root, k).String())
			if err != nil {
				t.Fatal(err)
			}
			if len(results) != 1 {
				t.Fatalf("found %d entities for part %d, want 1", len(results), k)
			}
			if err = s.Delete(ctx, []es.Key{results[0].Key}); err != nil {
				t.Fatal(err)
			}

			got, err := Read(ctx, s, root)
			if !errors.Is(err, es.ErrIncomplete) {
				t.Fatalf("got error %v, want ErrIncomplete", err)
			}
			var inc *IncompleteError
			if !errors.As(err, &inc) {
				t.Fatalf("got %T, want *IncompleteError", err)
			}
			if diff := cmp.Diff([]uint64{k}, inc.Missing); diff != "" {
				t.Errorf("missing parts mismatch (-want +got):\n%s", diff)
			}
			if len(inc.Errs) != 0 {
				t.Errorf("got errors %v for a plain miss", inc.Errs)
			}

			var want []byte
			for i, p := range pieces {
				if uint64(i+1) != k {
					want = append(want, p...)
				}
			}
			if got == nil || !bytes.Equal(got.Data, want) {
				t.Error("recovered bytes are not the concatenation of the surviving chunks")
			}
		})
	}
}

func TestRootNotFound(t *testing.T) {
	_, err := Read(context.Background(), mem.New(), es.NewKey(nil, 0, []byte("nope")))
	if !errors.Is(err, es.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestReadChunkKey(t *testing.T) {
	ctx := context.Background()
	s := mem.New()
	root, err := Write(ctx, s, randBlob(t, 30), schema.Meta{}, ChunkSize(10))
	if err != nil {
		t.Fatal(err)
	}
	results, err := s.Query(ctx, schema.ChunkQuery(schema.DefaultNamespace, root, 2).String())
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("found %d entities for part 2, want 1", len(results))
	}

	_, err = Read(ctx, s, results[0].Key)
	if !errors.Is(err, es.ErrNotFound) {
		t.Errorf("got %v reading a chunk key, want ErrNotFound", err)
	}
	var incomplete *IncompleteError
	if errors.As(err, &incomplete) {
		t.Errorf("got IncompleteError %v reading a chunk key", incomplete)
	}
}

// failStore fails the Create calls whose (1-based) ordinal is in fail.
type failStore struct {
	*mem.Store
	mu      sync.Mutex
	creates int
	fail    map[int]bool
}

func (f *failStore) Create(ctx context.Context, ents []es.Entity) ([]es.Key, error) {
	f.mu.Lock()
	f.creates++
	n := f.creates
	f.mu.Unlock()

	if f.fail[n] {
		return nil, errors.New("boom")
	}
	return f.Store.Create(ctx, ents)
}

func TestRootWriteFailure(t *testing.T) {
	s := &failStore{Store: mem.New(), fail: map[int]bool{1: true}}
	_, err := Write(context.Background(), s, randBlob(t, 30), schema.Meta{}, ChunkSize(10))
	if err == nil {
		t.Fatal("got no error")
	}
	var cwe *ChunkWriteError
	if errors.As(err, &cwe) {
		t.Error("root failure reported as a chunk write failure")
	}
	if s.creates != 1 {
		t.Errorf("got %d Create calls, want 1", s.creates)
	}
	if s.Len() != 0 {
		t.Errorf("store has %d entities, want 0", s.Len())
	}
}

func TestChunkWriteFailure(t *testing.T) {
	ctx := context.Background()
	s := &failStore{Store: mem.New(), fail: map[int]bool{2: true}}
	root, err := Write(ctx, s, randBlob(t, 30), schema.Meta{}, ChunkSize(10))

	var cwe *ChunkWriteError
	if !errors.As(err, &cwe) {
		t.Fatalf("got %v, want *ChunkWriteError", err)
	}
	if cwe.Root != root || root.IsZero() {
		t.Errorf("error names root %s, Write returned %s", cwe.Root, root)
	}
	if cwe.Want != 2 || cwe.Wrote != 0 {
		t.Errorf("got want=%d wrote=%d, want 2 and 0", cwe.Want, cwe.Wrote)
	}

	got, err := Read(ctx, s, root)
	var inc *IncompleteError
	if !errors.As(err, &inc) {
		t.Fatalf("got %v, want *IncompleteError", err)
	}
	if diff := cmp.Diff([]uint64{2, 3}, inc.Missing); diff != "" {
		t.Errorf("missing parts mismatch (-want +got):\n%s", diff)
	}
	if len(got.Data) != 10 {
		t.Errorf("recovered %d bytes, want 10", len(got.Data))
	}
}

// slowStore delays or blocks chunk queries by part number.
type slowStore struct {
	*mem.Store
	delay map[uint64]time.Duration
	block map[uint64]bool
}

func (s *slowStore) Query(ctx context.Context, expr string) ([]es.Result, error) {
	for part, d := range s.delay {
		if bytes.Contains([]byte(expr), []byte(fmt.Sprintf("part = %d", part))) {
			time.Sleep(d)
		}
	}
	for part := range s.block {
		if bytes.Contains([]byte(expr), []byte(fmt.Sprintf("part = %d", part))) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
	}
	return s.Store.Query(ctx, expr)
}

func TestOutOfOrderReplies(t *testing.T) {
	ctx := context.Background()
	s := &slowStore{
		Store: mem.New(),
		delay: map[uint64]time.Duration{2: 60 * time.Millisecond, 3: 30 * time.Millisecond},
	}
	blob := randBlob(t, 40)
	root, err := Write(ctx, s, blob, schema.Meta{}, ChunkSize(10))
	if err != nil {
		t.Fatal(err)
	}
	got, err := Read(ctx, s, root)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Data, blob) {
		t.Error("chunks reassembled out of order")
	}
}

func TestQueryTimeout(t *testing.T) {
	ctx := context.Background()
	s := &slowStore{Store: mem.New(), block: map[uint64]bool{3: true}}
	blob := randBlob(t, 40)
	root, err := Write(ctx, s, blob, schema.Meta{}, ChunkSize(10))
	if err != nil {
		t.Fatal(err)
	}

	got, err := Read(ctx, s, root, QueryTimeout(50*time.Millisecond), Concurrency(2))
	var inc *IncompleteError
	if !errors.As(err, &inc) {
		t.Fatalf("got %v, want *IncompleteError", err)
	}
	if diff := cmp.Diff([]uint64{3}, inc.Missing); diff != "" {
		t.Errorf("missing parts mismatch (-want +got):\n%s", diff)
	}
	if !errors.Is(inc.Errs[3], context.DeadlineExceeded) {
		t.Errorf("got error %v for part 3, want a deadline error", inc.Errs[3])
	}
	want := append(append([]byte(nil), blob[:20]...), blob[30:]...)
	if !bytes.Equal(got.Data, want) {
		t.Error("recovered bytes wrong")
	}
}

func TestCanceled(t *testing.T) {
	s := &slowStore{Store: mem.New(), block: map[uint64]bool{2: true}}
	root, err := Write(context.Background(), s, randBlob(t, 40), schema.Meta{}, ChunkSize(10))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = Read(ctx, s, root)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want the caller's deadline error", err)
	}
	if errors.Is(err, es.ErrIncomplete) {
		t.Error("caller cancellation reported as an incomplete blob")
	}
}
