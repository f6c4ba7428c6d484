// Package transform implements an entity store that transforms payloads
// on their way into and out of a nested store,
// for example to compress them.
// Annotations pass through unchanged, so queries work as usual.
package transform

import (
	"compress/lzw"
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/bobg/es"
	"github.com/bobg/es/store"
)

var (
	_ es.Store   = &Store{}
	_ es.Deleter = &Store{}
)

// Store is an entity store wrapping a nested store and a Transformer.
// Payloads are transformed according to the Transformer on their way in and out of the nested store.
// Every entity in the nested store must have been written through a Store with the same Transformer.
type Store struct {
	s es.Store
	x Transformer
}

// Transformer tells how to transform a payload on its way into and out of a Store.
// Out should be the inverse of In.
type Transformer interface {
	// In transforms a payload on its way into the store.
	In(context.Context, []byte) ([]byte, error)

	// Out transforms a payload on its way out of the store.
	Out(context.Context, []byte) ([]byte, error)
}

func New(s es.Store, x Transformer) *Store {
	return &Store{s: s, x: x}
}

// Create implements es.Store.
func (s *Store) Create(ctx context.Context, ents []es.Entity) ([]es.Key, error) {
	xents := make([]es.Entity, 0, len(ents))
	for i, e := range ents {
		payload, err := s.x.In(ctx, e.Payload)
		if err != nil {
			return nil, errors.Wrapf(err, "transforming payload %d", i)
		}
		e.Payload = payload
		xents = append(xents, e)
	}
	return s.s.Create(ctx, xents)
}

// Get implements es.Getter.
func (s *Store) Get(ctx context.Context, key es.Key) (es.Annotations, []byte, error) {
	annots, payload, err := s.s.Get(ctx, key)
	if err != nil {
		return annots, nil, err
	}
	payload, err = s.x.Out(ctx, payload)
	return annots, payload, errors.Wrapf(err, "untransforming payload of %s", key)
}

// Query implements es.Getter.
func (s *Store) Query(ctx context.Context, expr string) ([]es.Result, error) {
	results, err := s.s.Query(ctx, expr)
	if err != nil {
		return nil, err
	}
	for i, r := range results {
		results[i].Payload, err = s.x.Out(ctx, r.Payload)
		if err != nil {
			return nil, errors.Wrapf(err, "untransforming payload of %s", r.Key)
		}
	}
	return results, nil
}

// Delete implements es.Deleter.
func (s *Store) Delete(ctx context.Context, keys []es.Key) error {
	d, ok := s.s.(es.Deleter)
	if !ok {
		return fmt.Errorf("nested store %T does not support deletion", s.s)
	}
	return d.Delete(ctx, keys)
}

func init() {
	store.Register("transform", func(ctx context.Context, conf map[string]interface{}) (es.Store, error) {
		nested, err := store.Nested(ctx, conf)
		if err != nil {
			return nil, err
		}
		transformer, err := store.String(conf, "transformer")
		if err != nil {
			return nil, err
		}
		switch transformer {
		case "lzw":
			order := lzw.LSB
			o, err := store.Int(conf, "order", int(lzw.LSB))
			if err != nil {
				return nil, err
			}
			if lzw.Order(o) == lzw.MSB {
				order = lzw.MSB
			}
			return New(nested, LZW{Order: order}), nil

		case "flate":
			level, err := store.Int(conf, "level", -1)
			if err != nil {
				return nil, err
			}
			return New(nested, Flate{Level: level}), nil

		case "zstd":
			level, err := store.Int(conf, "level", 0)
			if err != nil {
				return nil, err
			}
			return New(nested, Zstd{Level: level}), nil

		case "lz4":
			return New(nested, LZ4{}), nil

		default:
			return nil, fmt.Errorf(`unknown transformer "%s"`, transformer)
		}
	})
}
