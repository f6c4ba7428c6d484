// Package bt implements an entity store on Google Cloud Bigtable.
//
// Each entity is one row,
// keyed by the text form of the entity key.
// Queries scan the entity rows and match their annotations,
// so they cost a full table read.
package bt

import (
	"context"
	"crypto/rand"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/bigtable"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/bobg/es"
	"github.com/bobg/es/query"
	"github.com/bobg/es/store"
)

var (
	_ es.Store   = &Store{}
	_ es.Deleter = &Store{}
)

// Store is a Google Cloud Bigtable-backed implementation of an entity store.
type Store struct {
	t   *bigtable.Table
	now store.Clock
}

// Family is the column family the store uses.
// It must exist in the table.
const Family = "e"

const (
	rowPrefix = "e:"

	payloadCol = "payload"
	annotsCol  = "annots"
	metaCol    = "meta"
)

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
func New(t *bigtable.Table, opts ...Option) *Store {
	s := &Store{t: t, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type rowMeta struct {
	Expires int64 `cbor:"1,keyasint"` // Unix nanos, 0 means never
	Created int64 `cbor:"2,keyasint"`
	Seq     int   `cbor:"3,keyasint"`
}

func rowKey(key es.Key) string {
	return rowPrefix + key.String()
}

func keyFromRow(rk string) (es.Key, error) {
	if len(rk) < len(rowPrefix) {
		return es.Zero, fmt.Errorf("malformed row key %s", rk)
	}
	return es.ParseKey(rk[len(rowPrefix):])
}

// Create implements es.Store.
func (s *Store) Create(ctx context.Context, ents []es.Entity) ([]es.Key, error) {
	if len(ents) == 0 {
		return nil, nil
	}

	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, errors.Wrap(err, "generating nonce")
	}

	var (
		now     = s.now()
		keys    = make([]es.Key, 0, len(ents))
		rowKeys = make([]string, 0, len(ents))
		muts    = make([]*bigtable.Mutation, 0, len(ents))
	)
	for i, e := range ents {
		key := es.NewKey(nonce[:], i, e.Payload)

		annots, err := cbor.Marshal(e.Annotations)
		if err != nil {
			return nil, errors.Wrapf(err, "encoding annotations of entity %d", i)
		}
		m := rowMeta{Created: now.UnixNano(), Seq: i}
		if exp := es.Expiry(now, e.BTL); !exp.IsZero() {
			m.Expires = exp.UnixNano()
		}
		meta, err := cbor.Marshal(m)
		if err != nil {
			return nil, errors.Wrapf(err, "encoding metadata of entity %d", i)
		}

		ts := bigtable.Time(now).TruncateToMilliseconds()
		mut := bigtable.NewMutation()
		mut.Set(Family, payloadCol, ts, e.Payload)
		mut.Set(Family, annotsCol, ts, annots)
		mut.Set(Family, metaCol, ts, meta)

		keys = append(keys, key)
		rowKeys = append(rowKeys, rowKey(key))
		muts = append(muts, mut)
	}

	errs, err := s.t.ApplyBulk(ctx, rowKeys, muts)
	if err != nil {
		return nil, errors.Wrap(err, "applying mutations")
	}
	for i, err := range errs {
		if err != nil {
			return nil, errors.Wrapf(err, "writing row %s", rowKeys[i])
		}
	}
	return keys, nil
}

type entityRow struct {
	es.Result
	rowMeta
}

func decodeRow(row bigtable.Row) (entityRow, error) {
	var er entityRow

	key, err := keyFromRow(row.Key())
	if err != nil {
		return er, err
	}
	er.Key = key

	for _, item := range row[Family] {
		switch item.Column {
		case Family + ":" + payloadCol:
			er.Payload = item.Value
		case Family + ":" + annotsCol:
			if err := cbor.Unmarshal(item.Value, &er.Annotations); err != nil {
				return er, errors.Wrapf(err, "decoding annotations of %s", key)
			}
		case Family + ":" + metaCol:
			if err := cbor.Unmarshal(item.Value, &er.rowMeta); err != nil {
				return er, errors.Wrapf(err, "decoding metadata of %s", key)
			}
		}
	}
	return er, nil
}

func (s *Store) expired(m rowMeta, now time.Time) bool {
	return m.Expires != 0 && es.Expired(time.Unix(0, m.Expires), now)
}

// Get implements es.Getter.
func (s *Store) Get(ctx context.Context, key es.Key) (es.Annotations, []byte, error) {
	rk := rowKey(key)
	row, err := s.t.ReadRow(ctx, rk, bigtable.RowFilter(bigtable.LatestNFilter(1)))
	if err != nil {
		return es.Annotations{}, nil, errors.Wrapf(err, "reading row %s", rk)
	}
	if len(row[Family]) == 0 {
		return es.Annotations{}, nil, es.ErrNotFound
	}
	er, err := decodeRow(row)
	if err != nil {
		return es.Annotations{}, nil, err
	}
	if s.expired(er.rowMeta, s.now()) {
		return es.Annotations{}, nil, es.ErrNotFound
	}
	return er.Annotations, er.Payload, nil
}

// Query implements es.Getter.
func (s *Store) Query(ctx context.Context, expr string) ([]es.Result, error) {
	q, err := query.Parse(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing query %s", expr)
	}

	var (
		hits     []entityRow
		now      = s.now()
		innerErr error
	)
	err = s.t.ReadRows(ctx, bigtable.PrefixRange(rowPrefix), func(row bigtable.Row) bool {
		er, err := decodeRow(row)
		if err != nil {
			innerErr = err
			return false
		}
		if s.expired(er.rowMeta, now) || !q.Match(er.Annotations) {
			return true
		}
		hits = append(hits, er)
		return true
	}, bigtable.RowFilter(bigtable.LatestNFilter(1)))
	if err != nil {
		return nil, errors.Wrap(err, "reading rows")
	}
	if innerErr != nil {
		return nil, innerErr
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Created != hits[j].Created {
			return hits[i].Created < hits[j].Created
		}
		return hits[i].Seq < hits[j].Seq
	})

	results := make([]es.Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, h.Result)
	}
	return results, nil
}

// Delete implements es.Deleter.
func (s *Store) Delete(ctx context.Context, keys []es.Key) error {
	if len(keys) == 0 {
		return nil
	}
	var (
		rowKeys = make([]string, 0, len(keys))
		muts    = make([]*bigtable.Mutation, 0, len(keys))
	)
	for _, key := range keys {
		mut := bigtable.NewMutation()
		mut.DeleteRow()
		rowKeys = append(rowKeys, rowKey(key))
		muts = append(muts, mut)
	}
	errs, err := s.t.ApplyBulk(ctx, rowKeys, muts)
	if err != nil {
		return errors.Wrap(err, "applying deletions")
	}
	for i, err := range errs {
		if err != nil {
			return errors.Wrapf(err, "deleting row %s", rowKeys[i])
		}
	}
	return nil
}

func init() {
	store.Register("bt", func(ctx context.Context, conf map[string]interface{}) (es.Store, error) {
		project, err := store.String(conf, "project")
		if err != nil {
			return nil, err
		}
		instance, err := store.String(conf, "instance")
		if err != nil {
			return nil, err
		}
		table, err := store.String(conf, "table")
		if err != nil {
			return nil, err
		}
		creds, err := store.String(conf, "creds")
		if err != nil {
			return nil, err
		}
		c, err := bigtable.NewClient(ctx, project, instance, option.WithCredentialsFile(creds))
		if err != nil {
			return nil, errors.Wrap(err, "creating bigtable client")
		}
		return New(c.Open(table)), nil
	})
}
