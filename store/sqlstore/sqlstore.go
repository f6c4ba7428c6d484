// Package sqlstore implements an entity store on a SQL database.
// It is the common core of the sqlite3 and pg stores,
// which supply the schema for their dialects.
//
// Annotation queries compile to EXISTS subqueries on the annotation tables.
// Glob matches compile to a test for the annotation's presence only;
// candidate rows are then matched exactly in Go.
package sqlstore

import (
	"context"
	"crypto/rand"
	"database/sql"
	stderrs "errors"
	"fmt"
	"strings"
	"time"

	"github.com/bobg/sqlutil"
	"github.com/pkg/errors"

	"github.com/bobg/es"
	"github.com/bobg/es/query"
	"github.com/bobg/es/store"
)

var (
	_ es.Store   = &Store{}
	_ es.Deleter = &Store{}
)

// Store is a SQL-based entity store.
type Store struct {
	db  *sql.DB
	now store.Clock
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

// New produces a new Store using db for storage.
// It executes schema, which must create the tables
// entities, string_annotations, and numeric_annotations
// if they do not exist.
// See the Schema constants in the sqlite3 and pg packages.
func New(ctx context.Context, db *sql.DB, schema string, opts ...Option) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, errors.Wrap(err, "creating schema")
	}
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Expiry times are stored as Unix nanoseconds, with 0 meaning never.
func expiryCol(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// Numeric annotation values are stored as their int64 bit pattern,
// since neither dialect has an unsigned 64-bit column type.
// Queries only compare them for equality, which the conversion preserves.
func numCol(v uint64) int64 { return int64(v) }

// Create implements es.Store.
func (s *Store) Create(ctx context.Context, ents []es.Entity) ([]es.Key, error) {
	if len(ents) == 0 {
		return nil, nil
	}

	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, errors.Wrap(err, "generating nonce")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	const (
		qEnt = `INSERT INTO entities (id, payload, expires, created, seq) VALUES ($1, $2, $3, $4, $5)`
		qStr = `INSERT INTO string_annotations (entity, seq, name, value) VALUES ($1, $2, $3, $4)`
		qNum = `INSERT INTO numeric_annotations (entity, seq, name, value) VALUES ($1, $2, $3, $4)`
	)

	now := s.now()
	keys := make([]es.Key, 0, len(ents))
	for i, e := range ents {
		key := es.NewKey(nonce[:], i, e.Payload)
		payload := e.Payload
		if payload == nil {
			payload = []byte{}
		}
		if _, err := tx.ExecContext(ctx, qEnt, key, payload, expiryCol(es.Expiry(now, e.BTL)), now.UnixNano(), i); err != nil {
			return nil, errors.Wrapf(err, "inserting entity %d", i)
		}
		for j, a := range e.Strings {
			if _, err := tx.ExecContext(ctx, qStr, key, j, a.Key, a.Value); err != nil {
				return nil, errors.Wrapf(err, "inserting annotation %s of entity %d", a.Key, i)
			}
		}
		for j, a := range e.Numerics {
			if _, err := tx.ExecContext(ctx, qNum, key, j, a.Key, numCol(a.Value)); err != nil {
				return nil, errors.Wrapf(err, "inserting annotation %s of entity %d", a.Key, i)
			}
		}
		keys = append(keys, key)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "committing transaction")
	}
	return keys, nil
}

// Get implements es.Getter.
func (s *Store) Get(ctx context.Context, key es.Key) (es.Annotations, []byte, error) {
	const q = `SELECT payload FROM entities WHERE id = $1 AND (expires = 0 OR expires > $2)`

	var payload []byte
	err := s.db.QueryRowContext(ctx, q, key, s.now().UnixNano()).Scan(&payload)
	if stderrs.Is(err, sql.ErrNoRows) {
		return es.Annotations{}, nil, es.ErrNotFound
	}
	if err != nil {
		return es.Annotations{}, nil, errors.Wrapf(err, "getting entity %s", key)
	}

	annots, err := s.annotations(ctx, key)
	return annots, payload, err
}

func (s *Store) annotations(ctx context.Context, key es.Key) (es.Annotations, error) {
	const (
		qStr = `SELECT name, value FROM string_annotations WHERE entity = $1 ORDER BY seq`
		qNum = `SELECT name, value FROM numeric_annotations WHERE entity = $1 ORDER BY seq`
	)

	var a es.Annotations
	err := sqlutil.ForQueryRows(ctx, s.db, qStr, key, func(name, value string) {
		a.AddString(name, value)
	})
	if err != nil {
		return a, errors.Wrapf(err, "querying string annotations of %s", key)
	}
	err = sqlutil.ForQueryRows(ctx, s.db, qNum, key, func(name string, value int64) {
		a.AddNumeric(name, uint64(value))
	})
	return a, errors.Wrapf(err, "querying numeric annotations of %s", key)
}

// Query implements es.Getter.
func (s *Store) Query(ctx context.Context, expr string) ([]es.Result, error) {
	q, err := query.Parse(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing query %s", expr)
	}

	c := &compiler{args: []interface{}{s.now().UnixNano()}}
	where := c.compile(q)
	sqlq := fmt.Sprintf(`SELECT e.id, e.payload FROM entities e WHERE (e.expires = 0 OR e.expires > $1) AND %s ORDER BY e.created, e.seq`, where)

	var candidates []es.Result
	args := append(c.args, func(key es.Key, payload []byte) {
		candidates = append(candidates, es.Result{Key: key, Payload: payload})
	})
	if err := sqlutil.ForQueryRows(ctx, s.db, sqlq, args...); err != nil {
		return nil, errors.Wrap(err, "querying entities")
	}

	results := candidates[:0]
	for _, r := range candidates {
		if r.Annotations, err = s.annotations(ctx, r.Key); err != nil {
			return nil, err
		}
		if c.inexact && !q.Match(r.Annotations) {
			continue
		}
		results = append(results, r)
	}
	return results, nil
}

type compiler struct {
	args    []interface{}
	inexact bool
}

func (c *compiler) arg(v interface{}) string {
	c.args = append(c.args, v)
	return fmt.Sprintf("$%d", len(c.args))
}

func (c *compiler) compile(e query.Expr) string {
	switch e := e.(type) {
	case query.StrEq:
		return fmt.Sprintf(`EXISTS (SELECT 1 FROM string_annotations a WHERE a.entity = e.id AND a.name = %s AND a.value = %s)`, c.arg(e.Key), c.arg(e.Value))

	case query.NumEq:
		return fmt.Sprintf(`EXISTS (SELECT 1 FROM numeric_annotations a WHERE a.entity = e.id AND a.name = %s AND a.value = %s)`, c.arg(e.Key), c.arg(numCol(e.Value)))

	case *query.GlobMatch:
		c.inexact = true
		return fmt.Sprintf(`EXISTS (SELECT 1 FROM string_annotations a WHERE a.entity = e.id AND a.name = %s)`, c.arg(e.Key))

	case query.And:
		return c.join(e, " AND ")

	case query.Or:
		return c.join(e, " OR ")
	}

	// Unreachable for anything query.Parse produces.
	return "1 = 0"
}

func (c *compiler) join(exprs []query.Expr, op string) string {
	strs := make([]string, 0, len(exprs))
	for _, sub := range exprs {
		strs = append(strs, c.compile(sub))
	}
	return "(" + strings.Join(strs, op) + ")"
}

// Delete implements es.Deleter.
func (s *Store) Delete(ctx context.Context, keys []es.Key) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	for _, key := range keys {
		for _, q := range []string{
			`DELETE FROM string_annotations WHERE entity = $1`,
			`DELETE FROM numeric_annotations WHERE entity = $1`,
			`DELETE FROM entities WHERE id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, q, key); err != nil {
				return errors.Wrapf(err, "deleting %s", key)
			}
		}
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// Purge removes expired entities from the database.
// Expired entities are invisible to Get and Query whether or not they are purged.
func (s *Store) Purge(ctx context.Context) (int, error) {
	const q = `SELECT id FROM entities WHERE expires <> 0 AND expires <= $1`

	var keys []es.Key
	err := sqlutil.ForQueryRows(ctx, s.db, q, s.now().UnixNano(), func(key es.Key) {
		keys = append(keys, key)
	})
	if err != nil {
		return 0, errors.Wrap(err, "finding expired entities")
	}
	return len(keys), s.Delete(ctx, keys)
}
