// Package file implements an entity store as a file hierarchy.
//
// Each entity is a CBOR-encoded record in its own file,
// named for the entity's key and sharded by its leading hex digits.
// Queries scan every record.
package file

import (
	"context"
	"encoding/binary"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bobg/flock"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/bobg/es"
	"github.com/bobg/es/query"
	"github.com/bobg/es/store"
)

var (
	_ es.Store   = &Store{}
	_ es.Deleter = &Store{}
)

// Store is a file-based implementation of an entity store.
type Store struct {
	root    string
	flocker flock.Locker
	now     store.Clock
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

// New produces a new Store storing data beneath root.
func New(root string, opts ...Option) *Store {
	s := &Store{root: root, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type record struct {
	Payload     []byte         `cbor:"1,keyasint"`
	Annotations es.Annotations `cbor:"2,keyasint"`
	Expires     int64          `cbor:"3,keyasint"` // Unix nanoseconds, 0 for never
	Created     int64          `cbor:"4,keyasint"`
	Seq         int            `cbor:"5,keyasint"`
}

func (r *record) expiry() time.Time {
	if r.Expires == 0 {
		return time.Time{}
	}
	return time.Unix(0, r.Expires)
}

func (s *Store) entroot() string {
	return filepath.Join(s.root, "entities")
}

func (s *Store) entpath(key es.Key) string {
	h := key.String()[2:]
	return filepath.Join(s.entroot(), h[:2], h[:4], h)
}

func (s *Store) noncePath() string {
	return filepath.Join(s.root, "nonce")
}

// nextNonce increments the counter in the nonce file
// and returns its new value.
// The file lock makes this safe across processes sharing root.
func (s *Store) nextNonce() ([]byte, error) {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return nil, errors.Wrapf(err, "ensuring %s exists", s.root)
	}

	path := s.noncePath()
	if err := s.flocker.Lock(path); err != nil {
		return nil, errors.Wrap(err, "locking nonce file")
	}
	defer s.flocker.Unlock(path)

	var n uint64
	b, err := os.ReadFile(path)
	if err == nil && len(b) == 8 {
		n = binary.BigEndian.Uint64(b)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "reading nonce file")
	}
	n++

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	if err := os.WriteFile(path, buf[:], 0644); err != nil {
		return nil, errors.Wrap(err, "writing nonce file")
	}
	return buf[:], nil
}

// Create implements es.Store.
func (s *Store) Create(_ context.Context, ents []es.Entity) ([]es.Key, error) {
	if len(ents) == 0 {
		return nil, nil
	}

	nonce, err := s.nextNonce()
	if err != nil {
		return nil, err
	}

	now := s.now()
	keys := make([]es.Key, 0, len(ents))
	for i, e := range ents {
		key := es.NewKey(nonce, i, e.Payload)
		r := record{
			Payload:     e.Payload,
			Annotations: e.Annotations,
			Created:     now.UnixNano(),
			Seq:         i,
		}
		if exp := es.Expiry(now, e.BTL); !exp.IsZero() {
			r.Expires = exp.UnixNano()
		}
		if err := s.write(key, &r); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *Store) write(key es.Key, r *record) error {
	var (
		path = s.entpath(key)
		dir  = filepath.Dir(path)
	)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "ensuring path %s exists", dir)
	}

	b, err := cbor.Marshal(r)
	if err != nil {
		return errors.Wrapf(err, "encoding entity %s", key)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return errors.Wrapf(err, "writing %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, path), "renaming %s", tmp)
}

func (s *Store) read(path string) (*record, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, es.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	var r record
	if err := cbor.Unmarshal(b, &r); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return &r, nil
}

// Get implements es.Getter.
func (s *Store) Get(_ context.Context, key es.Key) (es.Annotations, []byte, error) {
	r, err := s.read(s.entpath(key))
	if err != nil {
		return es.Annotations{}, nil, err
	}
	if es.Expired(r.expiry(), s.now()) {
		return es.Annotations{}, nil, es.ErrNotFound
	}
	return r.Annotations, r.Payload, nil
}

// Query implements es.Getter.
func (s *Store) Query(ctx context.Context, expr string) ([]es.Result, error) {
	q, err := query.Parse(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing query %s", expr)
	}

	type hit struct {
		es.Result
		created int64
		seq     int
	}

	var (
		hits []hit
		now  = s.now()
	)
	err = s.forEach(ctx, func(key es.Key, path string) error {
		r, err := s.read(path)
		if errors.Is(err, es.ErrNotFound) {
			// Deleted since the directory was read.
			return nil
		}
		if err != nil {
			return err
		}
		if es.Expired(r.expiry(), now) || !q.Match(r.Annotations) {
			return nil
		}
		hits = append(hits, hit{
			Result:  es.Result{Key: key, Payload: r.Payload, Annotations: r.Annotations},
			created: r.Created,
			seq:     r.Seq,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].created != hits[j].created {
			return hits[i].created < hits[j].created
		}
		return hits[i].seq < hits[j].seq
	})

	results := make([]es.Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, h.Result)
	}
	return results, nil
}

// forEach calls f for each entity file in the store.
func (s *Store) forEach(ctx context.Context, f func(es.Key, string) error) error {
	err := filepath.WalkDir(s.entroot(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		key, err := es.ParseKey(d.Name())
		if err != nil {
			return nil
		}
		return f(key, path)
	})
	if errors.Is(err, os.ErrNotExist) {
		// Nothing stored yet.
		return nil
	}
	return errors.Wrapf(err, "walking %s", s.entroot())
}

// Delete implements es.Deleter.
func (s *Store) Delete(_ context.Context, keys []es.Key) error {
	for _, key := range keys {
		path := s.entpath(key)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.Wrapf(err, "removing %s", path)
		}
	}
	return nil
}

func init() {
	store.Register("file", func(_ context.Context, conf map[string]interface{}) (es.Store, error) {
		root, err := store.String(conf, "root")
		if err != nil {
			return nil, err
		}
		return New(root), nil
	})
}
