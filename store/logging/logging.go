// Package logging implements a store that delegates everything to a nested store,
// logging operations as they happen.
package logging

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/bobg/es"
	"github.com/bobg/es/store"
)

var (
	_ es.Store   = &Store{}
	_ es.Deleter = &Store{}
)

// Store logs failures at the error level
// and successful operations at verbosity 1.
type Store struct {
	s   es.Store
	log logr.Logger
}

func New(s es.Store, log logr.Logger) *Store {
	return &Store{s: s, log: log}
}

func (s *Store) Get(ctx context.Context, key es.Key) (es.Annotations, []byte, error) {
	annots, payload, err := s.s.Get(ctx, key)
	if err != nil {
		s.log.Error(err, "Get", "key", key)
	} else {
		s.log.V(1).Info("Get", "key", key, "size", len(payload))
	}
	return annots, payload, err
}

func (s *Store) Query(ctx context.Context, expr string) ([]es.Result, error) {
	results, err := s.s.Query(ctx, expr)
	if err != nil {
		s.log.Error(err, "Query", "query", expr)
	} else {
		s.log.V(1).Info("Query", "query", expr, "results", len(results))
	}
	return results, err
}

func (s *Store) Create(ctx context.Context, ents []es.Entity) ([]es.Key, error) {
	keys, err := s.s.Create(ctx, ents)
	if err != nil {
		s.log.Error(err, "Create", "entities", len(ents))
	} else {
		s.log.V(1).Info("Create", "entities", len(ents), "keys", keys)
	}
	return keys, err
}

func (s *Store) Delete(ctx context.Context, keys []es.Key) error {
	d, ok := s.s.(es.Deleter)
	if !ok {
		err := errors.Errorf("nested store %T does not support deletion", s.s)
		s.log.Error(err, "Delete", "keys", keys)
		return err
	}
	err := d.Delete(ctx, keys)
	if err != nil {
		s.log.Error(err, "Delete", "keys", keys)
	} else {
		s.log.V(1).Info("Delete", "keys", keys)
	}
	return err
}

// LoggerKey is the configuration key under which
// a store created from configuration finds its logr.Logger.
// Configuration files cannot express a logger;
// the program must add it to the configuration map before calling store.Create.
// Without one, the store logs nothing.
const LoggerKey = "logger"

func init() {
	store.Register("logging", func(ctx context.Context, conf map[string]interface{}) (es.Store, error) {
		nested, err := store.Nested(ctx, conf)
		if err != nil {
			return nil, err
		}
		log, ok := conf[LoggerKey].(logr.Logger)
		if !ok {
			log = logr.Discard()
		}
		return New(nested, log), nil
	})
}
