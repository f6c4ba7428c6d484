// Package gallery is the entry point for storing images in an entity store:
// upload with thumbnailing, fetch, tag search, and resizing.
package gallery

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/bobg/es"
	"github.com/bobg/es/derive"
	"github.com/bobg/es/query"
	"github.com/bobg/es/schema"
	"github.com/bobg/es/search"
	"github.com/bobg/es/split"
)

// Service stores and retrieves images.
// Zero-valued fields take their defaults.
type Service struct {
	Store  es.Store
	Logger logr.Logger

	// Namespace is the "app" annotation of every entity the service writes.
	// Default: schema.DefaultNamespace.
	Namespace string

	// ChunkSize is the maximum payload size of a chunk.
	// Default: schema.DefaultChunkSize.
	ChunkSize int

	// BTL is the lifetime, in blocks, of every entity the service writes.
	// Default: schema.DefaultBTL.
	BTL uint64

	// Thumb makes thumbnails.
	// Default: 100×100 fill.
	Thumb derive.Transformer

	// QueryTimeout bounds each chunk query during Fetch.
	// Default: none.
	QueryTimeout time.Duration

	// Concurrency limits the chunk queries in flight during Fetch.
	// Default: 8.
	Concurrency int
}

func (s *Service) namespace() string {
	if s.Namespace == "" {
		return schema.DefaultNamespace
	}
	return s.Namespace
}

func (s *Service) chunkSize() int {
	if s.ChunkSize == 0 {
		return schema.DefaultChunkSize
	}
	return s.ChunkSize
}

func (s *Service) btl() uint64 {
	if s.BTL == 0 {
		return schema.DefaultBTL
	}
	return s.BTL
}

func (s *Service) thumb() derive.Transformer {
	if s.Thumb == nil {
		return derive.Fill{Width: 100, Height: 100}
	}
	return s.Thumb
}

// Upload is a blob to store, with its metadata.
type Upload struct {
	Blob []byte

	// Filename defaults to schema.DefaultFilename.
	Filename string

	// MimeType is sniffed from Blob if empty.
	MimeType string

	// Tags is a comma-separated tag list.
	Tags string

	Custom CustomAnnotations
}

// UploadResult describes a completed upload.
type UploadResult struct {
	Root          es.Key
	Thumbnail     *es.Key // nil if ThumbnailErr is set
	OriginalSize  int
	ThumbnailSize int
	Chunks        int

	// ChunkErr, if set, is a *split.ChunkWriteError:
	// the root was stored but the blob cannot be fully reassembled.
	ChunkErr error

	// ThumbnailErr, if set, is a *derive.Error.
	ThumbnailErr error
}

// Upload stores u.Blob and a thumbnail of it.
//
// The root chunk is written first.
// If that fails, Upload fails and nothing is stored.
// Then the remaining chunks and the thumbnail are written concurrently.
// Their failures are logged and reported in the result
// but do not make Upload fail.
func (s *Service) Upload(ctx context.Context, u Upload) (*UploadResult, error) {
	custom, err := u.Custom.Annotations()
	if err != nil {
		return nil, errors.Wrap(err, "validating custom annotations")
	}

	mimeType := u.MimeType
	if mimeType == "" {
		mimeType = http.DetectContentType(u.Blob)
	}

	meta := schema.Meta{
		Namespace: s.namespace(),
		Filename:  u.Filename,
		MimeType:  mimeType,
		Tags:      u.Tags,
		Custom:    custom,
	}.WithDefaults()

	size := s.chunkSize()
	if size < 1 {
		return nil, fmt.Errorf("bad chunk size %d", size)
	}
	var (
		pieces = split.Chunk(u.Blob, size)
		btl    = s.btl()
		log    = s.Logger.WithValues("filename", meta.Filename)
	)

	root, err := split.WriteRoot(ctx, s.Store, pieces, meta, btl)
	if err != nil {
		log.Error(err, "Storing root chunk")
		return nil, err
	}
	log = log.WithValues("root", root)

	res := &UploadResult{
		Root:         root,
		OriginalSize: len(u.Blob),
		Chunks:       len(pieces),
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		res.ChunkErr = split.WriteChunks(ctx, s.Store, root, pieces, meta, btl)
		if res.ChunkErr != nil {
			log.Error(res.ChunkErr, "Storing chunks")
		}
	}()

	go func() {
		defer wg.Done()
		art, err := derive.Thumbnail(ctx, s.Store, root, u.Blob, meta, s.thumb(), btl)
		if err != nil {
			res.ThumbnailErr = err
			log.Error(err, "Making thumbnail")
			return
		}
		res.Thumbnail = &art.Key
		res.ThumbnailSize = art.Size
	}()

	wg.Wait()

	log.Info("Uploaded", "size", res.OriginalSize, "chunks", res.Chunks, "thumbnail", res.Thumbnail != nil)
	return res, nil
}

func (s *Service) readOpts() []split.ReadOption {
	var opts []split.ReadOption
	if s.Concurrency > 0 {
		opts = append(opts, split.Concurrency(s.Concurrency))
	}
	if s.QueryTimeout > 0 {
		opts = append(opts, split.QueryTimeout(s.QueryTimeout))
	}
	return opts
}

// Fetch reassembles the blob with the given root key.
// If some chunks are missing,
// it returns the recoverable part of the blob
// together with a *split.IncompleteError.
func (s *Service) Fetch(ctx context.Context, root es.Key) (*split.Blob, error) {
	blob, err := split.Read(ctx, s.Store, root, s.readOpts()...)
	if errors.Is(err, es.ErrIncomplete) {
		s.Logger.Error(err, "Fetching incomplete blob", "root", root)
	} else if err == nil {
		s.Logger.V(1).Info("Fetched", "root", root, "size", len(blob.Data), "parts", blob.Parts)
	}
	return blob, err
}

// Search finds the thumbnails tagged with tag.
func (s *Service) Search(ctx context.Context, tag string) ([]es.Key, error) {
	if tag == "" {
		return nil, errors.New("empty search term")
	}
	return search.FindByTag(ctx, s.Store, s.namespace(), tag)
}

// Thumbnails lists all the thumbnails.
func (s *Service) Thumbnails(ctx context.Context) ([]es.Key, error) {
	return search.Thumbnails(ctx, s.Store, s.namespace())
}

// Parent finds the root key of the original that a thumbnail
// or other derived artifact was made from.
func (s *Service) Parent(ctx context.Context, key es.Key) (es.Key, error) {
	return search.Parent(ctx, s.Store, key)
}

// AddResize fetches the blob with the given root key,
// resizes it,
// and stores the result as a new artifact.
// Either width or height may be 0 to preserve the aspect ratio.
// A blob that cannot be fully reassembled is not resized.
func (s *Service) AddResize(ctx context.Context, root es.Key, width, height int) (*derive.Artifact, error) {
	blob, err := s.Fetch(ctx, root)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s", root)
	}
	meta := schema.Meta{
		Namespace: s.namespace(),
		Filename:  blob.Filename,
		MimeType:  blob.MimeType,
	}
	art, err := derive.Resized(ctx, s.Store, root, blob.Data, meta, derive.Resize{Width: width, Height: height}, s.btl())
	if err != nil {
		return nil, err
	}
	s.Logger.Info("Resized", "root", root, "key", art.Key, "width", art.Width, "height", art.Height)
	return art, nil
}

// Delete removes the blob with the given root key:
// its root, its other chunks, and any artifacts derived from it.
// The store must be an es.Deleter.
// It returns the number of entities deleted.
func (s *Service) Delete(ctx context.Context, root es.Key) (int, error) {
	d, ok := s.Store.(es.Deleter)
	if !ok {
		return 0, fmt.Errorf("store %T does not support deletion", s.Store)
	}

	if _, _, err := s.Store.Get(ctx, root); err != nil {
		return 0, errors.Wrapf(err, "getting %s", root)
	}

	q := query.Str(schema.KeyParent, root.String())
	results, err := s.Store.Query(ctx, q.String())
	if err != nil {
		return 0, errors.Wrapf(err, "querying %s", q)
	}

	keys := []es.Key{root}
	for _, r := range results {
		keys = append(keys, r.Key)
	}
	if err := d.Delete(ctx, keys); err != nil {
		return 0, errors.Wrapf(err, "deleting %d entities", len(keys))
	}
	s.Logger.Info("Deleted", "root", root, "entities", len(keys))
	return len(keys), nil
}
