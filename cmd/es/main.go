// Command es stores images in an entity store.
//
// Usage:
//
//	es [-config FILE] [-v N] SUBCOMMAND [ARGS]
//
// Subcommands are serve, upload, fetch, search, thumbs, parent, resize, and delete.
// See Config for the config file format.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/bobg/subcmd"
	"github.com/go-logr/logr"

	"github.com/bobg/es"
	"github.com/bobg/es/gallery"
	"github.com/bobg/es/store"
	_ "github.com/bobg/es/store/bt"
	_ "github.com/bobg/es/store/file"
	_ "github.com/bobg/es/store/gcs"
	"github.com/bobg/es/store/logging"
	_ "github.com/bobg/es/store/lru"
	_ "github.com/bobg/es/store/mem"
	_ "github.com/bobg/es/store/pg"
	_ "github.com/bobg/es/store/rpc"
	_ "github.com/bobg/es/store/sqlite3"
	_ "github.com/bobg/es/store/transform"
)

type maincmd struct {
	s   es.Store
	svc *gallery.Service
	log logr.Logger
}

func main() {
	var (
		config    = flag.String("config", "es.toml", "path to config file")
		verbosity = flag.Int("v", -1, "log verbosity (overrides config file)")
	)
	flag.Parse()

	if *config == "" {
		log.Fatal("Config value not set")
	}

	conf, err := LoadConfig(*config)
	if err != nil {
		log.Fatal(err)
	}
	if *verbosity >= 0 {
		conf.Verbosity = *verbosity
	}

	logger := newLogger(conf.Verbosity)
	withLogger(conf.Store, logger)

	ctx := context.Background()

	typ := conf.Store["type"].(string)
	s, err := store.Create(ctx, typ, conf.Store)
	if err != nil {
		log.Fatalf("Creating %s-type store: %s", typ, err)
	}

	c := maincmd{
		s:   s,
		svc: conf.Service(s, logger),
		log: logger,
	}
	if err := subcmd.Run(ctx, c, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

// newLogger logs to stderr.
// Verbosity N enables logr's V(N) and below.
func newLogger(verbosity int) logr.Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(-verbosity)})
	return logr.FromSlogHandler(h)
}

// withLogger adds log to conf and to each store table nested within it,
// for the logging store type.
func withLogger(conf map[string]interface{}, log logr.Logger) {
	for conf != nil {
		conf[logging.LoggerKey] = log
		conf, _ = conf["nested"].(map[string]interface{})
	}
}

func (c maincmd) Subcmds() map[string]subcmd.Subcmd {
	return map[string]subcmd.Subcmd{
		"serve":  c.serve,
		"upload": c.upload,
		"fetch":  c.fetch,
		"search": c.search,
		"thumbs": c.thumbs,
		"parent": c.parent,
		"resize": c.resize,
		"delete": c.delete,
	}
}
