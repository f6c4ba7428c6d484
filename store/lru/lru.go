// Package lru implements an entity store that acts as a least-recently-used cache for a nested entity store.
package lru

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/bobg/es"
	"github.com/bobg/es/store"
)

var (
	_ es.Store   = &Store{}
	_ es.Deleter = &Store{}
)

// Store implements a memory-based least-recently-used cache for an entity store.
// It caches only the results of Get, not of Query.
// Writes pass through to the underlying store.
//
// An entity cached by Create is dropped from the cache when it expires.
// An entity cached by Get has no known expiry,
// so it is dropped after the store's maximum age
// and fetched again from the nested store.
type Store struct {
	c      *lru.Cache // es.Key -> entry
	s      es.Store
	now    store.Clock
	maxAge time.Duration
}

type entry struct {
	annots  es.Annotations
	payload []byte
	expiry  time.Time
}

// DefaultMaxAge is the default for MaxAge.
const DefaultMaxAge = es.BlockTime

// Option configures a Store.
type Option func(*Store)

// WithClock makes the store use the given clock for expiry
// instead of time.Now.
func WithClock(c store.Clock) Option {
	return func(s *Store) {
		s.now = c
	}
}

// MaxAge sets how long an entity cached by Get may be served from the cache.
func MaxAge(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

// New produces a new Store backed by s and caching up to size entities.
func New(s es.Store, size int, opts ...Option) (*Store, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	result := &Store{s: s, c: c, now: time.Now, maxAge: DefaultMaxAge}
	for _, opt := range opts {
		opt(result)
	}
	return result, nil
}

// Get implements es.Getter.
func (s *Store) Get(ctx context.Context, key es.Key) (es.Annotations, []byte, error) {
	if got, ok := s.c.Get(key); ok {
		e := got.(entry)
		if !es.Expired(e.expiry, s.now()) {
			return e.annots.Clone(), append([]byte(nil), e.payload...), nil
		}
		s.c.Remove(key)
	}
	annots, payload, err := s.s.Get(ctx, key)
	if err != nil {
		return annots, payload, err
	}
	s.c.Add(key, entry{
		annots:  annots.Clone(),
		payload: append([]byte(nil), payload...),
		expiry:  s.now().Add(s.maxAge),
	})
	return annots, payload, nil
}

// Query implements es.Getter.
func (s *Store) Query(ctx context.Context, expr string) ([]es.Result, error) {
	return s.s.Query(ctx, expr)
}

// Create implements es.Store.
func (s *Store) Create(ctx context.Context, ents []es.Entity) ([]es.Key, error) {
	now := s.now()
	keys, err := s.s.Create(ctx, ents)
	if err != nil {
		return keys, err
	}
	for i, key := range keys {
		if i >= len(ents) {
			break
		}
		e := ents[i]
		s.c.Add(key, entry{
			annots:  e.Annotations.Clone(),
			payload: append([]byte(nil), e.Payload...),
			expiry:  es.Expiry(now, e.BTL),
		})
	}
	return keys, nil
}

// Delete implements es.Deleter.
// It fails if the nested store does not support deletion.
func (s *Store) Delete(ctx context.Context, keys []es.Key) error {
	for _, key := range keys {
		s.c.Remove(key)
	}
	d, ok := s.s.(es.Deleter)
	if !ok {
		return errors.Errorf("nested store %T does not support deletion", s.s)
	}
	return d.Delete(ctx, keys)
}

func init() {
	store.Register("lru", func(ctx context.Context, conf map[string]interface{}) (es.Store, error) {
		size, err := store.Int(conf, "size", 0)
		if err != nil {
			return nil, err
		}
		if size <= 0 {
			return nil, errors.New(`missing "size" parameter`)
		}
		maxAge, err := store.Int(conf, "max_age", 0)
		if err != nil {
			return nil, err
		}
		nested, err := store.Nested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nested, size, MaxAge(time.Duration(maxAge)*time.Second))
	})
}
