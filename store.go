package es

import "context"

// Getter is a read-only Store (qv).
type Getter interface {
	// Get gets an entity's annotations and payload by its key.
	// It returns ErrNotFound if there is no such entity
	// or if it has expired.
	Get(context.Context, Key) (Annotations, []byte, error)

	// Query returns the live entities whose annotations satisfy expr
	// (see package query for the syntax).
	// The order of the results is store-defined but stable
	// for a given store state.
	Query(ctx context.Context, expr string) ([]Result, error)
}

// Store is an annotated entity store.
// It holds small records, each with a payload and annotations,
// addressed by a key the store assigns.
// Implementations must be safe for concurrent use.
type Store interface {
	Getter

	// Create adds entities to the store in a single call.
	// On success it returns their keys, in the same order.
	Create(context.Context, []Entity) ([]Key, error)
}

// Deleter is a Store that can remove entities before they expire.
type Deleter interface {
	// Delete removes the entities with the given keys.
	// Keys that are not present are ignored.
	Delete(context.Context, []Key) error
}
