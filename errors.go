package es

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is the error returned
	// when a Getter tries to access a non-existent or expired key.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable marks a transport or connection failure talking to a store.
	// Use Unavailable to produce one that wraps the underlying cause.
	ErrUnavailable = errors.New("store unavailable")

	// ErrMalformedKey is matched (via errors.Is) by a *MalformedKeyError.
	ErrMalformedKey = errors.New("malformed key")

	// ErrIncomplete is matched (via errors.Is) by errors reporting
	// a blob that could only be partially reassembled.
	ErrIncomplete = errors.New("incomplete blob")

	// ErrDerivedArtifact is matched (via errors.Is) by errors reporting
	// a failure to build or store a derived artifact.
	ErrDerivedArtifact = errors.New("derived artifact failed")
)

// MalformedKeyError is the error returned by ParseKey.
type MalformedKeyError struct {
	Input  string
	Reason string
}

func (e *MalformedKeyError) Error() string {
	return fmt.Sprintf("malformed key %q: %s", e.Input, e.Reason)
}

// Is implements the interface used by errors.Is.
func (e *MalformedKeyError) Is(target error) bool {
	return target == ErrMalformedKey
}

type unavailableErr struct {
	err error
}

// Unavailable wraps err so that it matches ErrUnavailable.
// It returns nil if err is nil.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return unavailableErr{err: err}
}

func (e unavailableErr) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnavailable, e.err)
}

func (e unavailableErr) Unwrap() error {
	return e.err
}

func (e unavailableErr) Is(target error) bool {
	return target == ErrUnavailable
}
