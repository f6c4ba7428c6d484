package main

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/bobg/es"
	"github.com/bobg/es/derive"
	"github.com/bobg/es/gallery"
)

// Config is the contents of the config file.
//
// Example:
//
//	namespace = "golem-images-0.1"
//	chunk_size = 100000
//	btl = 25
//	query_timeout = "5s"
//
//	[store]
//	type = "lru"
//	size = 1000
//
//	[store.nested]
//	type = "sqlite3"
//	conn = "/var/lib/es/es.db"
type Config struct {
	// Store is handed to store.Create.
	// Its "type" entry selects the store type.
	Store map[string]interface{} `toml:"store"`

	Namespace    string   `toml:"namespace"`
	ChunkSize    int      `toml:"chunk_size"`
	BTL          uint64   `toml:"btl"`
	ThumbWidth   int      `toml:"thumb_width"`
	ThumbHeight  int      `toml:"thumb_height"`
	QueryTimeout duration `toml:"query_timeout"`
	Concurrency  int      `toml:"concurrency"`
	Verbosity    int      `toml:"verbosity"`
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// LoadConfig reads a TOML config file.
func LoadConfig(filename string) (*Config, error) {
	var c Config
	md, err := toml.DecodeFile(filename, &c)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding config file %s", filename)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		// Keys under [store] land in the map and are never undecoded.
		return nil, errors.Errorf("unknown config key %s in %s", undec[0], filename)
	}
	if c.Store == nil {
		return nil, errors.Errorf("config file %s has no [store] table", filename)
	}
	if _, ok := c.Store["type"].(string); !ok {
		return nil, errors.Errorf("config file %s missing store type", filename)
	}
	if c.ChunkSize < 0 {
		return nil, errors.Errorf("bad chunk_size %d", c.ChunkSize)
	}
	if c.ThumbWidth < 0 || c.ThumbHeight < 0 {
		return nil, errors.Errorf("bad thumbnail dimensions %dx%d", c.ThumbWidth, c.ThumbHeight)
	}
	return &c, nil
}

// Service produces the gallery service that c describes, using s for storage.
func (c *Config) Service(s es.Store, log logr.Logger) *gallery.Service {
	svc := &gallery.Service{
		Store:        s,
		Logger:       log,
		Namespace:    c.Namespace,
		ChunkSize:    c.ChunkSize,
		BTL:          c.BTL,
		QueryTimeout: c.QueryTimeout.Duration,
		Concurrency:  c.Concurrency,
	}
	if c.ThumbWidth > 0 || c.ThumbHeight > 0 {
		w, h := c.ThumbWidth, c.ThumbHeight
		if w == 0 {
			w = h
		}
		if h == 0 {
			h = w
		}
		svc.Thumb = derive.Fill{Width: w, Height: h}
	}
	return svc
}
