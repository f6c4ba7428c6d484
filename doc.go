// Package es is an annotated entity store,
// plus the machinery for keeping large blobs in one.
//
// An entity store holds small records, or _entities_,
// each with a payload of bytes and a list of key/value _annotations_.
// The store assigns each entity a 32-byte key when it is created.
// Entities are immutable and may expire:
// each carries its own lifetime,
// measured in store blocks
// (see BlockTime).
//
// The store cannot list "the children of X."
// The only way to find related entities is to query their annotations,
// using the boolean expressions in the query subpackage:
//
//	parent = "0x1234..." && type = "image_chunk" && part = 2
//
// Entities work best when they are small,
// so large blobs are split into fixed-size chunks with split.Write,
// each chunk an entity of its own.
// The first chunk is the _root_;
// its key identifies the whole blob.
// The others point back to it with a "parent" annotation
// and record their position with "part" and "part-of".
// split.Read reassembles the blob from its root key,
// and reports, rather than hides,
// any chunks that have gone missing in the meantime.
//
// Package derive builds thumbnails and other derived artifacts next to a blob,
// package search finds them by tag,
// and package gallery ties these together into upload and fetch operations.
//
// Store implementations live under the store subdirectory:
// in memory, in SQLite or Postgresql, in a file tree,
// in Google Cloud Storage or Bigtable,
// and over gRPC.
// Others wrap a nested store to cache, log, or compress.
package es
