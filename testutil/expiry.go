package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bobg/es"
	"github.com/bobg/es/query"
)

// Expiry checks that entities disappear from Get and Query
// once their BTL has elapsed.
// The store must take its notion of the current time from advance's clock:
// each call to advance moves that clock forward.
func Expiry(ctx context.Context, t *testing.T, s es.Store, advance func(time.Duration)) {
	run := RunID(t)

	mk := func(btl uint64) es.Entity {
		e := es.Entity{Payload: []byte("x"), BTL: btl}
		e.AddString("run", run)
		return e
	}

	keys, err := s.Create(ctx, []es.Entity{mk(1), mk(10), mk(0)})
	if err != nil {
		t.Fatal(err)
	}

	count := func() int {
		results, err := s.Query(ctx, query.Str("run", run).String())
		if err != nil {
			t.Fatal(err)
		}
		return len(results)
	}

	if n := count(); n != 3 {
		t.Fatalf("got %d live entities, want 3", n)
	}

	advance(es.BlockTime)

	if _, _, err := s.Get(ctx, keys[0]); !errors.Is(err, es.ErrNotFound) {
		t.Errorf("got %v for expired entity, want ErrNotFound", err)
	}
	if _, _, err := s.Get(ctx, keys[1]); err != nil {
		t.Errorf("getting unexpired entity: %s", err)
	}
	if n := count(); n != 2 {
		t.Errorf("got %d live entities after one block, want 2", n)
	}

	advance(100 * es.BlockTime)

	if n := count(); n != 1 {
		t.Errorf("got %d live entities after many blocks, want 1", n)
	}
	if _, _, err := s.Get(ctx, keys[2]); err != nil {
		t.Errorf("getting immortal entity: %s", err)
	}
}

// FakeClock is a settable clock for use with Expiry.
type FakeClock struct {
	t time.Time
}

// NewFakeClock produces a FakeClock starting at a fixed time.
func NewFakeClock() *FakeClock {
	return &FakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the clock's current time.
func (c *FakeClock) Now() time.Time { return c.t }

// Advance moves the clock forward.
func (c *FakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
