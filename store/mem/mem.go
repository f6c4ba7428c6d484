// Package mem implements an in-memory entity store.
package mem

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/es"
	"github.com/bobg/es/query"
	"github.com/bobg/es/store"
)

var (
	_ es.Store   = &Store{}
	_ es.Deleter = &Store{}
)

// Store is a memory-based implementation of an entity store.
type Store struct {
	mu       sync.Mutex
	entities map[es.Key]*record
	order    []es.Key // creation order, for Query
	nonce    uint64
	now      store.Clock
}

type record struct {
	payload []byte
	annots  es.Annotations
	expiry  time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock makes the store use the given clock for expiry
// instead of time.Now.
func WithClock(c store.Clock) Option {
	return func(s *Store) {
		s.now = c
	}
}

// New produces a new Store.
func New(opts ...Option) *Store {
	s := &Store{
		entities: make(map[es.Key]*record),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create implements es.Store.
func (s *Store) Create(_ context.Context, ents []es.Entity) ([]es.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nonce++
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], s.nonce)

	now := s.now()
	keys := make([]es.Key, 0, len(ents))
	for i, e := range ents {
		key := es.NewKey(nonce[:], i, e.Payload)
		s.entities[key] = &record{
			payload: append([]byte(nil), e.Payload...),
			annots:  e.Annotations.Clone(),
			expiry:  es.Expiry(now, e.BTL),
		}
		s.order = append(s.order, key)
		keys = append(keys, key)
	}
	return keys, nil
}

// Get implements es.Getter.
func (s *Store) Get(_ context.Context, key es.Key) (es.Annotations, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.live(key)
	if !ok {
		return es.Annotations{}, nil, es.ErrNotFound
	}
	return r.annots.Clone(), append([]byte(nil), r.payload...), nil
}

// Caller must obtain a lock.
func (s *Store) live(key es.Key) (*record, bool) {
	r, ok := s.entities[key]
	if !ok || es.Expired(r.expiry, s.now()) {
		return nil, false
	}
	return r, true
}

// Query implements es.Getter.
func (s *Store) Query(ctx context.Context, expr string) ([]es.Result, error) {
	q, err := query.Parse(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing query %s", expr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var results []es.Result
	for _, key := range s.order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, ok := s.live(key)
		if !ok || !q.Match(r.annots) {
			continue
		}
		results = append(results, es.Result{
			Key:         key,
			Payload:     append([]byte(nil), r.payload...),
			Annotations: r.annots.Clone(),
		})
	}
	return results, nil
}

// Delete implements es.Deleter.
func (s *Store) Delete(_ context.Context, keys []es.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.entities, key)
	}
	s.compact()
	return nil
}

// Caller must obtain a lock.
func (s *Store) compact() {
	order := s.order[:0]
	for _, key := range s.order {
		if _, ok := s.entities[key]; ok {
			order = append(order, key)
		}
	}
	s.order = order
}

// Len reports the number of live entities in the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for key := range s.entities {
		if _, ok := s.live(key); ok {
			n++
		}
	}
	return n
}

func init() {
	store.Register("mem", func(context.Context, map[string]interface{}) (es.Store, error) {
		return New(), nil
	})
}
