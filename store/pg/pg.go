// Package pg implements an entity store on a Postgresql database.
package pg

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq" // register the postgres type for sql.Open
	"github.com/pkg/errors"

	"github.com/bobg/es"
	"github.com/bobg/es/store"
	"github.com/bobg/es/store/sqlstore"
)

// Schema is the SQL that New executes.
// It creates the entities and annotation tables if they do not exist.
// (If they do exist, they must have the columns, constraints, and indexing described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS entities (
  id BYTEA PRIMARY KEY NOT NULL,
  payload BYTEA NOT NULL,
  expires BIGINT NOT NULL,
  created BIGINT NOT NULL,
  seq INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS entities_created_idx ON entities (created, seq);

CREATE TABLE IF NOT EXISTS string_annotations (
  entity BYTEA NOT NULL,
  seq INTEGER NOT NULL,
  name TEXT NOT NULL,
  value TEXT NOT NULL,
  PRIMARY KEY (entity, seq)
);

CREATE INDEX IF NOT EXISTS string_annotations_idx ON string_annotations (name, value);

CREATE TABLE IF NOT EXISTS numeric_annotations (
  entity BYTEA NOT NULL,
  seq INTEGER NOT NULL,
  name TEXT NOT NULL,
  value BIGINT NOT NULL,
  PRIMARY KEY (entity, seq)
);

CREATE INDEX IF NOT EXISTS numeric_annotations_idx ON numeric_annotations (name, value);
`

// New produces a new store using db for storage.
func New(ctx context.Context, db *sql.DB, opts ...sqlstore.Option) (*sqlstore.Store, error) {
	return sqlstore.New(ctx, db, Schema, opts...)
}

func init() {
	store.Register("pg", func(ctx context.Context, conf map[string]interface{}) (es.Store, error) {
		conn, err := store.String(conf, "conn")
		if err != nil {
			return nil, err
		}
		db, err := sql.Open("postgres", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
