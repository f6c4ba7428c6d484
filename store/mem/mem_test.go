package mem

import (
	"context"
	"testing"

	"github.com/bobg/es/store"
	"github.com/bobg/es/testutil"
)

func TestConformance(t *testing.T) {
	testutil.Conformance(context.Background(), t, New())
}

func TestAllKeys(t *testing.T) {
	testutil.AllKeys(context.Background(), t, New())
}

func TestExpiry(t *testing.T) {
	c := testutil.NewFakeClock()
	s := New(WithClock(c.Now))
	testutil.Expiry(context.Background(), t, s, c.Advance)
	if n := s.Len(); n != 1 {
		t.Errorf("got Len %d, want 1", n)
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, n := range []int{0, 1, 1000, 250000} {
		testutil.RoundTrip(ctx, t, s, n, 100000)
	}
}

func TestRegistered(t *testing.T) {
	s, err := store.Create(context.Background(), "mem", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*Store); !ok {
		t.Errorf("got %T, want *Store", s)
	}
}
