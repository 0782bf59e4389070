// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

// Package dataset defines the narrow contract through which the core
// reaches the version-controlled dataset tree. The actual version
// control system stays outside this module; implementations only need
// to answer identity, version and tree enumeration questions.
package dataset

import (
	"context"

	"github.com/google/uuid"
	"github.com/zeebo/errs"

	"metatree.io/metatree/pkg/metatree"
)

// Error is the default dataset error class.
var Error = errs.Class("dataset")

// Entry is one element of a dataset tree enumeration.
type Entry struct {
	// Path is relative to the enumeration root, "." for the dataset
	// entry itself.
	Path string

	// Type is metatree.TypeDataset or metatree.TypeFile.
	Type metatree.RecordType

	// DatasetID and DatasetVersion identify the dataset the entry
	// belongs to; for entries inside a sub-dataset these are the
	// sub-dataset's, not the root's.
	DatasetID      uuid.UUID
	DatasetVersion string

	// AbsPath is the location of the element on disk.
	AbsPath string
}

// Link describes a sub-dataset containment observed in the parent tree.
type Link struct {
	// Path of the sub-dataset root relative to the parent root.
	Path string

	// BoundVersion is the sub-dataset version the parent tree binds at
	// Path, empty when the parent does not pin one.
	BoundVersion string

	// AbsPath is the sub-dataset root on disk.
	AbsPath string
}

// Repository is an explicit handle to one dataset: a version-controlled
// tree of files with a stable id and an opaque, dataset-local version
// token.
type Repository interface {
	// ID returns the stable dataset identifier.
	ID() uuid.UUID

	// Version returns the current version token of the dataset.
	Version() string

	// Root returns the dataset root directory.
	Root() string

	// Enumerate walks the dataset tree and calls fn for each entry:
	// first the dataset itself, then every file. With recursive set,
	// sub-dataset trees are included with their own identity.
	Enumerate(ctx context.Context, recursive bool, fn func(Entry) error) error

	// Subdatasets returns the direct sub-dataset links of this dataset.
	Subdatasets(ctx context.Context) ([]Link, error)

	// OpenSubdataset opens the repository handle of a linked
	// sub-dataset.
	OpenSubdataset(ctx context.Context, link Link) (Repository, error)
}
