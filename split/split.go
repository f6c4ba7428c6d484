// Package split stores large blobs as sequences of chunk entities
// and reassembles them.
//
// A blob of N chunks is N entities.
// The first, the root, carries the blob's full metadata,
// and its key identifies the blob.
// Each of the others carries a "parent" annotation naming the root,
// and every chunk records its 1-based position in "part"
// and the total in "part-of".
// See package schema for the annotation names.
package split

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/bobg/es"
	"github.com/bobg/es/schema"
)

// Chunk splits blob into consecutive pieces of at most size bytes.
// The pieces alias blob.
// An empty blob produces a single empty piece.
// Chunk panics if size is less than 1.
func Chunk(blob []byte, size int) [][]byte {
	if size < 1 {
		panic(fmt.Sprintf("split.Chunk: bad chunk size %d", size))
	}
	if len(blob) == 0 {
		return [][]byte{{}}
	}
	pieces := make([][]byte, 0, (len(blob)+size-1)/size)
	for len(blob) > size {
		pieces = append(pieces, blob[:size:size])
		blob = blob[size:]
	}
	return append(pieces, blob)
}

// RootEntity builds the root entity for a blob split into pieces.
func RootEntity(pieces [][]byte, meta schema.Meta, btl uint64) es.Entity {
	return es.Entity{
		Payload:     pieces[0],
		BTL:         btl,
		Annotations: meta.Root(uint64(len(pieces))),
	}
}

// ChunkEntities builds the entities for pieces[1:],
// which point back at the root entity by its key.
// The root key is not known until the root entity is stored,
// so these can only be built after that.
func ChunkEntities(root es.Key, pieces [][]byte, meta schema.Meta, btl uint64) []es.Entity {
	if len(pieces) < 2 {
		return nil
	}
	parts := uint64(len(pieces))
	ents := make([]es.Entity, 0, len(pieces)-1)
	for i, piece := range pieces[1:] {
		ents = append(ents, es.Entity{
			Payload:     piece,
			BTL:         btl,
			Annotations: meta.Chunk(root, uint64(i+2), parts),
		})
	}
	return ents
}

// ChunkWriteError reports that the root of a blob was stored
// but some or all of its other chunks were not.
// The blob cannot be fully reassembled.
type ChunkWriteError struct {
	Root  es.Key
	Want  int // number of non-root chunks
	Wrote int // number the store acknowledged
	Err   error
}

func (e *ChunkWriteError) Error() string {
	return fmt.Sprintf("stored %d of %d chunks of blob %s: %s", e.Wrote, e.Want, e.Root, e.Err)
}

// Unwrap returns the underlying error.
func (e *ChunkWriteError) Unwrap() error {
	return e.Err
}

type options struct {
	chunkSize int
	btl       uint64
}

// Option is the type of an option to Write.
type Option func(*options)

// ChunkSize sets the maximum chunk size for Write.
// The default is schema.DefaultChunkSize.
func ChunkSize(n int) Option {
	return func(o *options) {
		o.chunkSize = n
	}
}

// BTL sets the lifetime, in blocks, of the entities that Write creates.
// The default is schema.DefaultBTL.
func BTL(n uint64) Option {
	return func(o *options) {
		o.btl = n
	}
}

// Write splits blob into chunks and stores them in s,
// returning the key of the root chunk.
//
// The root is stored first, by itself.
// If that fails, nothing else is written.
// The remaining chunks are then stored with a single call to Create.
// If that fails,
// Write returns the root key together with a *ChunkWriteError.
func Write(ctx context.Context, s es.Store, blob []byte, meta schema.Meta, opts ...Option) (es.Key, error) {
	o := options{
		chunkSize: schema.DefaultChunkSize,
		btl:       schema.DefaultBTL,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.chunkSize < 1 {
		return es.Zero, fmt.Errorf("bad chunk size %d", o.chunkSize)
	}

	pieces := Chunk(blob, o.chunkSize)
	root, err := WriteRoot(ctx, s, pieces, meta, o.btl)
	if err != nil {
		return es.Zero, err
	}
	return root, WriteChunks(ctx, s, root, pieces, meta, o.btl)
}

// WriteRoot stores the root entity of a blob split into pieces.
func WriteRoot(ctx context.Context, s es.Store, pieces [][]byte, meta schema.Meta, btl uint64) (es.Key, error) {
	if len(pieces) == 0 {
		return es.Zero, errors.New("no pieces")
	}
	keys, err := s.Create(ctx, []es.Entity{RootEntity(pieces, meta, btl)})
	if err != nil {
		return es.Zero, errors.Wrap(err, "storing root chunk")
	}
	if len(keys) != 1 {
		return es.Zero, fmt.Errorf("storing root chunk: got %d keys, want 1", len(keys))
	}
	return keys[0], nil
}

// WriteChunks stores the non-root entities of a blob split into pieces,
// in a single call to Create.
// It does nothing if there is only one piece.
// Any failure is reported as a *ChunkWriteError.
func WriteChunks(ctx context.Context, s es.Store, root es.Key, pieces [][]byte, meta schema.Meta, btl uint64) error {
	ents := ChunkEntities(root, pieces, meta, btl)
	if len(ents) == 0 {
		return nil
	}
	keys, err := s.Create(ctx, ents)
	if err != nil {
		return &ChunkWriteError{Root: root, Want: len(ents), Wrote: len(keys), Err: err}
	}
	if len(keys) != len(ents) {
		return &ChunkWriteError{Root: root, Want: len(ents), Wrote: len(keys), Err: errors.New("short write")}
	}
	return nil
}
