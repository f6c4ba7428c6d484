package gcs

import (
	"context"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/api/option"

	"github.com/bobg/es"
	"github.com/bobg/es/testutil"
)

func TestMeta(t *testing.T) {
	var annots es.Annotations
	annots.AddString("type", "image")
	annots.AddString("tag", "a, b")
	annots.AddNumeric("part-of", 3)

	in := meta{
		annots:  annots,
		expires: time.Unix(0, 1717243200123456789),
		created: 17,
		seq:     2,
	}
	md, err := encodeMeta(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := decodeMeta(md)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(in.annots, out.annots); diff != "" {
		t.Errorf("annotations mismatch (-want +got):\n%s", diff)
	}
	if !out.expires.Equal(in.expires) || out.created != 17 || out.seq != 2 {
		t.Errorf("got expires %s, created %d, seq %d", out.expires, out.created, out.seq)
	}

	md, err = encodeMeta(meta{})
	if err != nil {
		t.Fatal(err)
	}
	out, err = decodeMeta(md)
	if err != nil {
		t.Fatal(err)
	}
	if !out.expires.IsZero() {
		t.Errorf("got expiry %s for an immortal entity", out.expires)
	}

	if _, err := decodeMeta(map[string]string{annotsKey: "!!", expiresKey: "0"}); err == nil {
		t.Error("got no error for corrupt metadata")
	}
}

func TestObjName(t *testing.T) {
	key := es.NewKey([]byte("n"), 1, []byte("p"))
	got, err := keyFromObjName(objName(key))
	if err != nil {
		t.Fatal(err)
	}
	if got != key {
		t.Errorf("got %s, want %s", got, key)
	}
}

const (
	credsVar  = "ES_GCS_TESTING_CREDS"
	bucketVar = "ES_GCS_TESTING_BUCKET"
)

func withStore(t *testing.T, f func(context.Context, *Store)) {
	var (
		creds      = os.Getenv(credsVar)
		bucketName = os.Getenv(bucketVar)
	)
	if creds == "" || bucketName == "" {
		t.Skipf("to run %s, set %s to the name of a credentials file and %s to a bucket name", t.Name(), credsVar, bucketVar)
	}

	ctx := context.Background()

	client, err := storage.NewClient(ctx, option.WithCredentialsFile(creds))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	f(ctx, New(client.Bucket(bucketName)))
}

func TestConformance(t *testing.T) {
	withStore(t, func(ctx context.Context, s *Store) {
		testutil.Conformance(ctx, t, s)
	})
}

func TestRoundTrip(t *testing.T) {
	withStore(t, func(ctx context.Context, s *Store) {
		testutil.RoundTrip(ctx, t, s, 250000, 100000)
	})
}
