package testutil

import (
	"context"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/es"
	"github.com/bobg/es/query"
)

// AllKeys writes random batches of random payloads to a store
// and makes sure that querying for them returns exactly the keys that Create reported.
func AllKeys(ctx context.Context, t *testing.T, s es.Store) {
	run := RunID(t)
	var batch uint64
	if err := quick.Check(allKeysHelper(ctx, t, s, run, &batch), &quick.Config{MaxCount: 20}); err != nil {
		t.Error(err)
	}
}

func allKeysHelper(ctx context.Context, t *testing.T, s es.Store, run string, batch *uint64) func([][]byte) bool {
	return func(payloads [][]byte) bool {
		*batch++

		ents := make([]es.Entity, 0, len(payloads))
		for _, p := range payloads {
			e := es.Entity{Payload: p}
			e.AddString("run", run)
			e.AddNumeric("batch", *batch)
			ents = append(ents, e)
		}
		want, err := s.Create(ctx, ents)
		if err != nil {
			t.Fatal(err)
		}

		results, err := s.Query(ctx, query.All(query.Str("run", run), query.Num("batch", *batch)).String())
		if err != nil {
			t.Fatal(err)
		}
		var got []es.Key
		for _, r := range results {
			got = append(got, r.Key)
		}

		if diff := cmp.Diff(sortKeys(want), sortKeys(got)); diff != "" {
			t.Logf("mismatch (-want +got):\n%s", diff)
			return false
		}
		return true
	}
}
