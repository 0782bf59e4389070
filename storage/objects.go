// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package storage

import (
	"context"

	"github.com/zeebo/errs"

	"metatree.io/metatree/pkg/metatree"
)

var (
	// ErrNotFound is returned when a referenced object does not exist.
	ErrNotFound = errs.Class("object not found")

	// ErrConsistency is returned when the store detects state it must
	// never repair silently, such as a digest that maps to different
	// content or a dangling reference in an index.
	ErrConsistency = errs.Class("consistency error")
)

// Objects is a content-addressed store of immutable metadata blobs.
//
// The store owns blob lifetime; everything else holds metatree.ObjectRef
// values as non-owning references. Implementations must be safe for
// concurrent use and must never expose partially written blobs.
type Objects interface {
	// Put stores data under its content address and returns the
	// reference. Putting identical content again is a no-op that
	// returns the same reference.
	Put(ctx context.Context, data []byte) (metatree.ObjectRef, error)

	// Get returns the content for ref, or ErrNotFound.
	Get(ctx context.Context, ref metatree.ObjectRef) ([]byte, error)

	// Has reports whether ref exists without reading its content.
	Has(ctx context.Context, ref metatree.ObjectRef) (bool, error)

	// List calls fn for every stored reference until fn returns false
	// or the listing is exhausted. Order is unspecified.
	List(ctx context.Context, fn func(ref metatree.ObjectRef) bool) error
}
