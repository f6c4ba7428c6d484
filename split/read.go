package split

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/bobg/es"
	"github.com/bobg/es/schema"
)

// Blob is a reassembled blob.
type Blob struct {
	Root     es.Key
	Data     []byte
	Filename string
	MimeType string

	// Parts is the number of chunks the blob was stored as.
	Parts uint64
}

// IncompleteError is returned by Read,
// together with the recoverable part of the blob,
// when some chunks could not be found.
type IncompleteError struct {
	Root    es.Key
	Parts   uint64
	Missing []uint64 // ascending part numbers

	// Errs holds the query errors, if any, that caused parts to go missing.
	// Parts that simply were not found have no entry.
	Errs map[uint64]error
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("blob %s: %d of %d chunks missing (parts %v)", e.Root, len(e.Missing), e.Parts, e.Missing)
}

// Is implements the interface used by errors.Is.
func (e *IncompleteError) Is(target error) bool {
	return target == es.ErrIncomplete
}

// MaxParts is the largest part-of value Read will believe.
const MaxParts = 1 << 20

type reader struct {
	concurrency  int64
	queryTimeout time.Duration
}

// ReadOption is the type of an option to Read.
type ReadOption func(*reader)

// Concurrency limits the number of chunk queries Read has in flight at once.
// The default is 8.
func Concurrency(n int) ReadOption {
	return func(r *reader) {
		if n > 0 {
			r.concurrency = int64(n)
		}
	}
}

// QueryTimeout bounds each chunk query Read makes.
// A chunk whose query times out is treated as missing.
// The default is no bound beyond the caller's context.
func QueryTimeout(d time.Duration) ReadOption {
	return func(r *reader) {
		r.queryTimeout = d
	}
}

// Read reassembles the blob whose root entity has the given key.
//
// It reads the root directly,
// then queries for chunks 2 through N concurrently,
// and concatenates whatever it finds in part order.
// If the root is missing,
// or root is the key of a non-root chunk,
// the error matches es.ErrNotFound.
// If other chunks are missing,
// Read returns the concatenation of the chunks it did find
// together with an *IncompleteError.
func Read(ctx context.Context, g es.Getter, root es.Key, opts ...ReadOption) (*Blob, error) {
	r := reader{concurrency: 8}
	for _, opt := range opts {
		opt(&r)
	}

	annots, payload, err := g.Get(ctx, root)
	if err != nil {
		return nil, errors.Wrapf(err, "getting root entity %s", root)
	}

	if typ, _ := annots.StringValue(schema.KeyType); typ == schema.TypeChunk {
		if _, ok := annots.StringValue(schema.KeyParent); ok {
			return nil, errors.Wrapf(es.ErrNotFound, "%s is a chunk, not the root of a blob", root)
		}
	}

	meta := schema.FromRoot(annots)
	blob := &Blob{
		Root:     root,
		Filename: meta.Filename,
		MimeType: meta.MimeType,
		Parts:    1,
	}
	if n, ok := annots.NumericValue(schema.KeyPartOf); ok && n > 1 {
		blob.Parts = n
	}
	if blob.Parts > MaxParts {
		return nil, fmt.Errorf("root entity %s claims %d parts, more than %d", root, blob.Parts, MaxParts)
	}

	if blob.Parts == 1 {
		blob.Data = payload
		return blob, nil
	}

	pieces, incomplete, err := r.chunks(ctx, g, root, meta.Namespace, blob.Parts)
	if err != nil {
		return nil, err
	}
	pieces[0] = payload
	blob.Data = bytes.Join(pieces, nil)

	if incomplete != nil {
		return blob, incomplete
	}
	return blob, nil
}

type chunkResult struct {
	data  []byte
	found bool
	err   error
}

// chunks fetches parts 2 through parts.
// The returned slice is indexed by part-1;
// its first element and those of missing parts are nil.
func (r reader) chunks(ctx context.Context, g es.Getter, root es.Key, namespace string, parts uint64) ([][]byte, *IncompleteError, error) {
	var (
		sem     = semaphore.NewWeighted(r.concurrency)
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[uint64]chunkResult, parts-1)
	)

	for part := uint64(2); part <= parts; part++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(part uint64) {
			defer wg.Done()
			defer sem.Release(1)

			data, found, err := r.chunk(ctx, g, root, namespace, part)

			mu.Lock()
			results[part] = chunkResult{data: data, found: found, err: err}
			mu.Unlock()
		}(part)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, errors.Wrapf(err, "reassembling blob %s", root)
	}

	var (
		pieces     = make([][]byte, parts)
		incomplete *IncompleteError
	)
	for part := uint64(2); part <= parts; part++ {
		res := results[part]
		if res.found {
			pieces[part-1] = res.data
			continue
		}
		if incomplete == nil {
			incomplete = &IncompleteError{Root: root, Parts: parts, Errs: make(map[uint64]error)}
		}
		incomplete.Missing = append(incomplete.Missing, part)
		if res.err != nil {
			incomplete.Errs[part] = res.err
		}
	}
	return pieces, incomplete, nil
}

func (r reader) chunk(ctx context.Context, g es.Getter, root es.Key, namespace string, part uint64) ([]byte, bool, error) {
	if r.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.queryTimeout)
		defer cancel()
	}

	q := schema.ChunkQuery(namespace, root, part)
	results, err := g.Query(ctx, q.String())
	if err != nil {
		return nil, false, errors.Wrapf(err, "querying for part %d", part)
	}
	if len(results) == 0 {
		return nil, false, nil
	}
	return results[0].Payload, true, nil
}
