// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package metatree

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/zeebo/errs"
)

// ErrInvalidRef is returned when an object reference cannot be parsed.
var ErrInvalidRef = errs.Class("invalid object ref")

// RefSize is the byte length of an object reference digest.
const RefSize = sha256.Size

// ObjectRef is the content address of a stored metadata blob. It is the
// SHA-256 digest of the blob's canonical serialization. The zero value is
// not a valid reference.
type ObjectRef [RefSize]byte

// RefOf computes the object reference for the given content.
func RefOf(data []byte) ObjectRef {
	return ObjectRef(sha256.Sum256(data))
}

// RefFromString parses a hex encoded object reference.
func RefFromString(s string) (ObjectRef, error) {
	var ref ObjectRef
	b, err := hex.DecodeString(s)
	if err != nil {
		return ref, ErrInvalidRef.Wrap(err)
	}
	if len(b) != RefSize {
		return ref, ErrInvalidRef.New("digest has %d bytes, expected %d", len(b), RefSize)
	}
	copy(ref[:], b)
	return ref, nil
}

// IsZero returns whether the reference is the zero value.
func (ref ObjectRef) IsZero() bool { return ref == ObjectRef{} }

// String returns the hex encoding of the reference.
func (ref ObjectRef) String() string { return hex.EncodeToString(ref[:]) }

// Bytes returns the raw digest.
func (ref ObjectRef) Bytes() []byte { return append([]byte(nil), ref[:]...) }

// MarshalText implements encoding.TextMarshaler.
func (ref ObjectRef) MarshalText() ([]byte, error) {
	return []byte(ref.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (ref *ObjectRef) UnmarshalText(text []byte) error {
	parsed, err := RefFromString(string(text))
	if err != nil {
		return err
	}
	*ref = parsed
	return nil
}
