package testutil

import (
	"bytes"
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/bobg/es"
	"github.com/bobg/es/schema"
	"github.com/bobg/es/split"
)

// RoundTrip permits testing a Store implementation
// by split-writing a blob of n pseudorandom bytes to it,
// then reading it back out to make sure it's the same.
func RoundTrip(ctx context.Context, t *testing.T, s es.Store, n, chunkSize int) {
	data := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(data)

	meta := schema.Meta{
		Namespace: "es-test-" + RunID(t),
		Filename:  "data.bin",
	}

	t1 := time.Now()
	root, err := split.Write(ctx, s, data, meta, split.ChunkSize(chunkSize))
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("wrote %d bytes in %s", len(data), time.Since(t1))

	t2 := time.Now()
	blob, err := split.Read(ctx, s, root)
	if err != nil {
		t.Fatal(err)
	}
	got := blob.Data
	t.Logf("read %d bytes in %d parts in %s", len(got), blob.Parts, time.Since(t2))

	if blob.Filename != meta.Filename {
		t.Errorf("got filename %q, want %q", blob.Filename, meta.Filename)
	}
	if len(got) != len(data) {
		t.Errorf("got length %d, want %d", len(got), len(data))
	} else if !bytes.Equal(got, data) {
		for i := 0; i < len(got); i++ {
			if got[i] != data[i] {
				t.Fatalf("mismatch at position %d (of %d)", i, len(got))
			}
		}
	}
}
