// Package schema defines the annotations that lay out images,
// their chunks, and their derived artifacts in an entity store.
//
// Writers and readers must agree on these names exactly:
// a chunk written with one spelling of a key
// is invisible to a query that uses another.
package schema

import (
	"github.com/bobg/es"
	"github.com/bobg/es/query"
)

// Annotation keys.
const (
	KeyType     = "type"
	KeyApp      = "app"
	KeyFilename = "filename"
	KeyMimeType = "mime-type"
	KeyParent   = "parent"
	KeyTag      = "tag"
	KeyResize   = "resize"
	KeyPart     = "part"
	KeyPartOf   = "part-of"
	KeyWidth    = "width"
	KeyHeight   = "height"
)

// Values of the "type" annotation.
const (
	TypeImage     = "image"
	TypeChunk     = "image_chunk"
	TypeThumbnail = "thumbnail"
	TypeResized   = "resized"
)

// Defaults.
const (
	DefaultNamespace = "golem-images-0.1"
	DefaultFilename  = "image"
	DefaultMimeType  = "application/octet-stream"
	DefaultChunkSize = 100000
	DefaultBTL       = 25
)

// Reserved tells whether key is one of the annotation keys defined here,
// which callers may not supply as custom annotations.
func Reserved(key string) bool {
	switch key {
	case KeyType, KeyApp, KeyFilename, KeyMimeType, KeyParent, KeyTag, KeyResize, KeyPart, KeyPartOf, KeyWidth, KeyHeight:
		return true
	}
	return false
}

// Meta is the descriptive metadata of an uploaded blob.
type Meta struct {
	Namespace string
	Filename  string
	MimeType  string

	// Tags is the caller's tag list, stored verbatim as one "tag" annotation.
	Tags string

	// Custom holds caller-supplied annotations for the root entity.
	Custom es.Annotations
}

func (m Meta) namespace() string {
	if m.Namespace == "" {
		return DefaultNamespace
	}
	return m.Namespace
}

func (m Meta) filename() string {
	if m.Filename == "" {
		return DefaultFilename
	}
	return m.Filename
}

func (m Meta) mimeType() string {
	if m.MimeType == "" {
		return DefaultMimeType
	}
	return m.MimeType
}

// WithDefaults returns m with its unset fields filled in from the defaults.
func (m Meta) WithDefaults() Meta {
	m.Namespace = m.namespace()
	m.Filename = m.filename()
	m.MimeType = m.mimeType()
	return m
}

// Root produces the annotations of a root entity:
// the full set including tags and custom annotations.
func (m Meta) Root(parts uint64) es.Annotations {
	var a es.Annotations
	a.AddString(KeyType, TypeImage)
	a.AddString(KeyApp, m.namespace())
	a.AddString(KeyFilename, m.filename())
	a.AddString(KeyMimeType, m.mimeType())
	if m.Tags != "" {
		a.AddString(KeyTag, m.Tags)
	}
	a.Strings = append(a.Strings, m.Custom.Strings...)
	a.AddNumeric(KeyPart, 1)
	a.AddNumeric(KeyPartOf, parts)
	a.Numerics = append(a.Numerics, m.Custom.Numerics...)
	return a
}

// Chunk produces the annotations of non-root chunk number part (2 or more).
// Tags and custom annotations are not propagated.
func (m Meta) Chunk(root es.Key, part, parts uint64) es.Annotations {
	var a es.Annotations
	a.AddString(KeyParent, root.String())
	a.AddString(KeyType, TypeChunk)
	a.AddString(KeyApp, m.namespace())
	a.AddString(KeyFilename, m.filename())
	a.AddString(KeyMimeType, m.mimeType())
	a.AddNumeric(KeyPart, part)
	a.AddNumeric(KeyPartOf, parts)
	return a
}

// Derived produces the annotations of a derived artifact of the given type
// (TypeThumbnail or TypeResized).
func (m Meta) Derived(root es.Key, typ, resize, filename, mimeType string) es.Annotations {
	var a es.Annotations
	a.AddString(KeyParent, root.String())
	a.AddString(KeyType, typ)
	a.AddString(KeyApp, m.namespace())
	a.AddString(KeyResize, resize)
	a.AddString(KeyFilename, filename)
	a.AddString(KeyMimeType, mimeType)
	if m.Tags != "" {
		a.AddString(KeyTag, m.Tags)
	}
	return a
}

// FromRoot recovers the Meta of a blob from its root entity's annotations.
// Custom annotations are not recovered.
func FromRoot(a es.Annotations) Meta {
	return Meta{
		Namespace: a.StringOr(KeyApp, DefaultNamespace),
		Filename:  a.StringOr(KeyFilename, DefaultFilename),
		MimeType:  a.StringOr(KeyMimeType, DefaultMimeType),
		Tags:      a.StringOr(KeyTag, ""),
	}
}

// ChunkQuery selects chunk number part of the blob rooted at root.
func ChunkQuery(namespace string, root es.Key, part uint64) query.Expr {
	return query.All(
		query.Str(KeyParent, root.String()),
		query.Str(KeyType, TypeChunk),
		query.Str(KeyApp, namespace),
		query.Num(KeyPart, part),
	)
}

// TypeQuery selects every entity of the given type in the namespace.
func TypeQuery(namespace, typ string) query.Expr {
	return query.All(
		query.Str(KeyType, typ),
		query.Str(KeyApp, namespace),
	)
}
