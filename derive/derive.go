// Package derive builds derived artifacts, such as thumbnails,
// from stored blobs.
//
// An artifact is a single entity whose "parent" annotation names the root of the original blob.
// It is computed from the whole original blob in memory,
// never from the store's copy,
// so it can be written concurrently with the original's chunks.
package derive

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/pkg/errors"

	"github.com/bobg/es"
	"github.com/bobg/es/schema"
)

// Transformer produces a derived artifact's payload from an original blob.
type Transformer interface {
	Transform(context.Context, []byte) ([]byte, error)

	// String describes the transform's parameters, e.g. "100x100".
	// It is recorded in a thumbnail's "resize" annotation.
	String() string
}

// Artifact describes a stored derived artifact.
type Artifact struct {
	Key  es.Key
	Size int

	// Width and Height are known only for resized artifacts.
	Width, Height int
}

// Error reports a failure to build or store a derived artifact.
// It matches es.ErrDerivedArtifact.
type Error struct {
	Root es.Key
	Type string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("deriving %s of %s: %s", e.Type, e.Root, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements the interface used by errors.Is.
func (e *Error) Is(target error) bool {
	return target == es.ErrDerivedArtifact
}

// ThumbMimeType is the MIME type of every artifact this package builds.
const ThumbMimeType = "image/jpeg"

// Thumbnail applies x to blob, the original content of the blob rooted at root,
// and stores the result as a thumbnail entity.
// The thumbnail carries the original's tags,
// so tag searches find it.
func Thumbnail(ctx context.Context, s es.Store, root es.Key, blob []byte, meta schema.Meta, x Transformer, btl uint64) (*Artifact, error) {
	meta = meta.WithDefaults()
	fail := func(err error) (*Artifact, error) {
		return nil, &Error{Root: root, Type: schema.TypeThumbnail, Err: err}
	}

	out, err := x.Transform(ctx, blob)
	if err != nil {
		return fail(errors.Wrapf(err, "transforming %s", x))
	}

	ent := es.Entity{
		Payload:     out,
		BTL:         btl,
		Annotations: meta.Derived(root, schema.TypeThumbnail, x.String(), "thumb_"+meta.Filename, ThumbMimeType),
	}
	key, err := store1(ctx, s, ent)
	if err != nil {
		return fail(err)
	}
	return &Artifact{Key: key, Size: len(out)}, nil
}

// Resized applies x to blob, the original content of the blob rooted at root,
// and stores the result as a resized artifact
// under the original's filename.
// Its "resize" annotation, like its "width" and "height" annotations,
// gives the final dimensions, not the requested ones.
func Resized(ctx context.Context, s es.Store, root es.Key, blob []byte, meta schema.Meta, x Transformer, btl uint64) (*Artifact, error) {
	meta = meta.WithDefaults()
	fail := func(err error) (*Artifact, error) {
		return nil, &Error{Root: root, Type: schema.TypeResized, Err: err}
	}

	out, err := x.Transform(ctx, blob)
	if err != nil {
		return fail(errors.Wrapf(err, "transforming %s", x))
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		return fail(errors.Wrap(err, "reading dimensions of output"))
	}

	annots := meta.Derived(root, schema.TypeResized, fmt.Sprintf("%dx%d", cfg.Width, cfg.Height), meta.Filename, ThumbMimeType)
	annots.AddNumeric(schema.KeyWidth, uint64(cfg.Width))
	annots.AddNumeric(schema.KeyHeight, uint64(cfg.Height))

	key, err := store1(ctx, s, es.Entity{Payload: out, BTL: btl, Annotations: annots})
	if err != nil {
		return fail(err)
	}
	return &Artifact{Key: key, Size: len(out), Width: cfg.Width, Height: cfg.Height}, nil
}

func store1(ctx context.Context, s es.Store, ent es.Entity) (es.Key, error) {
	keys, err := s.Create(ctx, []es.Entity{ent})
	if err != nil {
		return es.Zero, errors.Wrap(err, "storing artifact")
	}
	if len(keys) != 1 {
		return es.Zero, fmt.Errorf("storing artifact: got %d keys, want 1", len(keys))
	}
	return keys[0], nil
}
