// Package es describes an annotated entity store.
package es

import (
	"bytes"
	"database/sql/driver"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// KeySize is the length of a Key in bytes.
const KeySize = 32

// BlockTime is the duration of one store block.
// An entity's BTL is measured in blocks.
const BlockTime = 2 * time.Second

type (
	// Key is the address of an entity in a store.
	Key [KeySize]byte

	// Entity is the write form of a record:
	// a payload plus annotations,
	// living for BTL blocks (zero means forever).
	Entity struct {
		Payload []byte `cbor:"1,keyasint"`
		BTL     uint64 `cbor:"2,keyasint"`
		Annotations
	}

	// Result is a single match from a Query.
	Result struct {
		Key     Key    `cbor:"1,keyasint"`
		Payload []byte `cbor:"2,keyasint"`
		Annotations
	}
)

// Zero is the zero value of a Key.
var Zero Key

func (k Key) String() string {
	return "0x" + hex.EncodeToString(k[:])
}

// IsZero tells whether k is the zero Key.
func (k Key) IsZero() bool {
	return k == Zero
}

// Less tells whether k sorts before other.
func (k Key) Less(other Key) bool {
	return bytes.Compare(k[:], other[:]) < 0
}

// Value implements driver.Valuer.
func (k Key) Value() (driver.Value, error) {
	return k[:], nil
}

// Scan implements sql.Scanner.
func (k *Key) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into Key", src)
	}
	if len(b) != KeySize {
		return fmt.Errorf("cannot scan %d bytes into Key", len(b))
	}
	copy(k[:], b)
	return nil
}

// ParseKey parses the text form of a key:
// 64 hex digits, optionally preceded by 0x.
func ParseKey(s string) (Key, error) {
	var out Key

	h := s
	if strings.HasPrefix(h, "0x") || strings.HasPrefix(h, "0X") {
		h = h[2:]
	}
	if len(h) != 2*KeySize {
		return out, &MalformedKeyError{Input: s, Reason: fmt.Sprintf("want %d hex digits, got %d", 2*KeySize, len(h))}
	}
	if _, err := hex.Decode(out[:], []byte(h)); err != nil {
		return out, &MalformedKeyError{Input: s, Reason: err.Error()}
	}
	return out, nil
}

// KeyFromBytes copies b into a Key.
func KeyFromBytes(b []byte) Key {
	var out Key
	copy(out[:], b)
	return out
}

// NewKey mints a key from a store-specific nonce,
// the position of the entity in its batch,
// and its payload.
func NewKey(nonce []byte, index int, payload []byte) Key {
	h := blake3.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(len(nonce)))
	h.Write(buf[:])
	h.Write(nonce)
	binary.BigEndian.PutUint64(buf[:], uint64(index))
	h.Write(buf[:])
	h.Write(payload)

	var out Key
	copy(out[:], h.Sum(nil))
	return out
}

// Expiry computes the expiration time of an entity with the given BTL
// created at the given time.
// The zero time means the entity never expires.
func Expiry(created time.Time, btl uint64) time.Time {
	if btl == 0 {
		return time.Time{}
	}
	return created.Add(time.Duration(btl) * BlockTime)
}

// Expired tells whether an entity with the given expiration time
// (as computed by Expiry)
// is gone at time now.
func Expired(expiry, now time.Time) bool {
	return !expiry.IsZero() && !now.Before(expiry)
}
