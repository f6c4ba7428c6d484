package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/go-logr/logr/funcr"
	"github.com/go-logr/logr/testr"

	"github.com/bobg/es"
	"github.com/bobg/es/store"
	"github.com/bobg/es/store/mem"
	"github.com/bobg/es/testutil"
)

func TestConformance(t *testing.T) {
	testutil.Conformance(context.Background(), t, New(mem.New(), testr.New(t)))
}

func TestLines(t *testing.T) {
	var lines []string
	log := funcr.New(func(prefix, args string) {
		lines = append(lines, args)
	}, funcr.Options{Verbosity: 1})

	ctx := context.Background()
	s := New(mem.New(), log)

	keys, err := s.Create(ctx, []es.Entity{{Payload: []byte("x")}})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Get(ctx, keys[0]); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Query(ctx, `type = `); err == nil {
		t.Fatal("got no error for malformed query")
	}

	if len(lines) != 3 {
		t.Fatalf("got %d log lines, want 3:\n%s", len(lines), strings.Join(lines, "\n"))
	}
	for i, want := range []string{`"msg"="Create"`, `"msg"="Get"`, `"msg"="Query"`} {
		if !strings.Contains(lines[i], want) {
			t.Errorf("line %d is %s, want it to contain %s", i, lines[i], want)
		}
	}
	if !strings.Contains(lines[2], `"error"=`) {
		t.Errorf("query failure not logged as an error: %s", lines[2])
	}
}

func TestRegistered(t *testing.T) {
	var lines int
	log := funcr.New(func(prefix, args string) { lines++ }, funcr.Options{Verbosity: 1})

	conf := map[string]interface{}{
		"nested":  map[string]interface{}{"type": "mem"},
		LoggerKey: log,
	}
	s, err := store.Create(context.Background(), "logging", conf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(context.Background(), []es.Entity{{}}); err != nil {
		t.Fatal(err)
	}
	if lines != 1 {
		t.Errorf("got %d log lines, want 1", lines)
	}
}
