// Package gcs implements an entity store on Google Cloud Storage.
//
// Each entity is one object.
// The payload is the object's content,
// and the annotations and expiry live in the object's metadata,
// so queries can be answered from a bucket listing
// without reading any content but the hits'.
package gcs

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	stderrs "errors"
	"io"
	"sort"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/bobg/es"
	"github.com/bobg/es/query"
	"github.com/bobg/es/store"
)

var (
	_ es.Store   = &Store{}
	_ es.Deleter = &Store{}
)

// Store is a Google Cloud Storage-based implementation of an entity store.
type Store struct {
	bucket *storage.BucketHandle
	now    store.Clock
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
func New(bucket *storage.BucketHandle, opts ...Option) *Store {
	s := &Store{bucket: bucket, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const (
	objPrefix = "e:"

	annotsKey  = "annotations"
	expiresKey = "expires"
	createdKey = "created"
	seqKey     = "seq"
)

func objName(key es.Key) string {
	return objPrefix + key.String()
}

func keyFromObjName(name string) (es.Key, error) {
	return es.ParseKey(name[len(objPrefix):])
}

// meta is the object metadata of an entity.
type meta struct {
	annots  es.Annotations
	expires time.Time
	created int64
	seq     int
}

func encodeMeta(m meta) (map[string]string, error) {
	b, err := cbor.Marshal(m.annots)
	if err != nil {
		return nil, errors.Wrap(err, "encoding annotations")
	}
	var expires int64
	if !m.expires.IsZero() {
		expires = m.expires.UnixNano()
	}
	return map[string]string{
		annotsKey:  base64.StdEncoding.EncodeToString(b),
		expiresKey: strconv.FormatInt(expires, 10),
		createdKey: strconv.FormatInt(m.created, 10),
		seqKey:     strconv.Itoa(m.seq),
	}, nil
}

func decodeMeta(md map[string]string) (meta, error) {
	var m meta

	b, err := base64.StdEncoding.DecodeString(md[annotsKey])
	if err != nil {
		return m, errors.Wrap(err, "decoding annotations")
	}
	if len(b) > 0 {
		if err := cbor.Unmarshal(b, &m.annots); err != nil {
			return m, errors.Wrap(err, "decoding annotations")
		}
	}

	expires, err := strconv.ParseInt(md[expiresKey], 10, 64)
	if err != nil {
		return m, errors.Wrap(err, "parsing expiry")
	}
	if expires != 0 {
		m.expires = time.Unix(0, expires)
	}

	// Ordering hints only.
	m.created, _ = strconv.ParseInt(md[createdKey], 10, 64)
	m.seq, _ = strconv.Atoi(md[seqKey])

	return m, nil
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

	now := s.now()
	keys := make([]es.Key, 0, len(ents))
	for i, e := range ents {
		key := es.NewKey(nonce[:], i, e.Payload)
		md, err := encodeMeta(meta{
			annots:  e.Annotations,
			expires: es.Expiry(now, e.BTL),
			created: now.UnixNano(),
			seq:     i,
		})
		if err != nil {
			return nil, err
		}
		if err := s.put(ctx, key, e.Payload, md); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *Store) put(ctx context.Context, key es.Key, payload []byte, md map[string]string) error {
	var (
		name = objName(key)
		w    = s.bucket.Object(name).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	)
	w.Metadata = md
	if _, err := w.Write(payload); err != nil {
		w.Close()
		return errors.Wrapf(err, "writing object %s", name)
	}
	return errors.Wrapf(w.Close(), "closing object %s", name)
}

// Get implements es.Getter.
func (s *Store) Get(ctx context.Context, key es.Key) (es.Annotations, []byte, error) {
	name := objName(key)
	obj := s.bucket.Object(name)
	attrs, err := obj.Attrs(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return es.Annotations{}, nil, es.ErrNotFound
	}
	if err != nil {
		return es.Annotations{}, nil, errors.Wrapf(err, "getting object attrs for %s", name)
	}

	m, err := decodeMeta(attrs.Metadata)
	if err != nil {
		return es.Annotations{}, nil, errors.Wrapf(err, "decoding metadata of %s", name)
	}
	if es.Expired(m.expires, s.now()) {
		return es.Annotations{}, nil, es.ErrNotFound
	}

	payload, err := s.read(ctx, obj.Generation(attrs.Generation))
	return m.annots, payload, err
}

func (s *Store) read(ctx context.Context, obj *storage.ObjectHandle) ([]byte, error) {
	r, err := obj.NewReader(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil, es.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading info of object %s", obj.ObjectName())
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	return b, errors.Wrapf(err, "reading contents of object %s", obj.ObjectName())
}

// Query implements es.Getter.
func (s *Store) Query(ctx context.Context, expr string) ([]es.Result, error) {
	q, err := query.Parse(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing query %s", expr)
	}

	type hit struct {
		es.Result
		meta
		gen int64
	}

	var (
		hits []hit
		now  = s.now()
		iter = s.bucket.Objects(ctx, &storage.Query{Prefix: objPrefix})
	)
	for {
		attrs, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "iterating over objects")
		}
		key, err := keyFromObjName(attrs.Name)
		if err != nil {
			continue
		}
		m, err := decodeMeta(attrs.Metadata)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding metadata of %s", attrs.Name)
		}
		if es.Expired(m.expires, now) || !q.Match(m.annots) {
			continue
		}
		hits = append(hits, hit{
			Result: es.Result{Key: key, Annotations: m.annots},
			meta:   m,
			gen:    attrs.Generation,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].created != hits[j].created {
			return hits[i].created < hits[j].created
		}
		return hits[i].seq < hits[j].seq
	})

	results := make([]es.Result, 0, len(hits))
	for _, h := range hits {
		payload, err := s.read(ctx, s.bucket.Object(objName(h.Key)).Generation(h.gen))
		if errors.Is(err, es.ErrNotFound) {
			// Deleted since listing.
			continue
		}
		if err != nil {
			return nil, err
		}
		h.Payload = payload
		results = append(results, h.Result)
	}
	return results, nil
}

// Delete implements es.Deleter.
func (s *Store) Delete(ctx context.Context, keys []es.Key) error {
	for _, key := range keys {
		name := objName(key)
		err := s.bucket.Object(name).Delete(ctx)
		if err != nil && !stderrs.Is(err, storage.ErrObjectNotExist) {
			return errors.Wrapf(err, "deleting object %s", name)
		}
	}
	return nil
}

func init() {
	store.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (es.Store, error) {
		creds, err := store.String(conf, "creds")
		if err != nil {
			return nil, err
		}
		bucketName, err := store.String(conf, "bucket")
		if err != nil {
			return nil, err
		}
		c, err := storage.NewClient(ctx, option.WithCredentialsFile(creds))
		if err != nil {
			return nil, errors.Wrap(err, "creating cloud storage client")
		}
		return New(c.Bucket(bucketName)), nil
	})
}
