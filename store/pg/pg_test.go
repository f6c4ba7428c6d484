package pg

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/bobg/es/store/sqlstore"
	"github.com/bobg/es/testutil"
)

func TestConformance(t *testing.T) {
	withStore(t, func(ctx context.Context, s *sqlstore.Store) {
		testutil.Conformance(ctx, t, s)
	})
}

func TestAllKeys(t *testing.T) {
	withStore(t, func(ctx context.Context, s *sqlstore.Store) {
		testutil.AllKeys(ctx, t, s)
	})
}

func TestRoundTrip(t *testing.T) {
	withStore(t, func(ctx context.Context, s *sqlstore.Store) {
		testutil.RoundTrip(ctx, t, s, 250000, 100000)
	})
}

func TestExpiry(t *testing.T) {
	c := testutil.NewFakeClock()
	withStore(t, func(ctx context.Context, s *sqlstore.Store) {
		testutil.Expiry(ctx, t, s, c.Advance)
	}, sqlstore.WithClock(c.Now))
}

const connVar = "ES_PG_TESTING_CONN"

func withStore(t *testing.T, f func(context.Context, *sqlstore.Store), opts ...sqlstore.Option) {
	connstr := os.Getenv(connVar)
	if connstr == "" {
		t.Skipf("to run %s, set %s to a valid Postgresql connection string", t.Name(), connVar)
	}

	db, err := sql.Open("postgres", connstr)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	s, err := New(ctx, db, opts...)
	if err != nil {
		t.Fatal(err)
	}

	f(ctx, s)
}
