// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package filestore

import (
	"context"
	"io/ioutil"
	"os"

	"github.com/zeebo/errs"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"metatree.io/metatree/pkg/metatree"
	"metatree.io/metatree/storage"
)

var (
	// Error is the default filestore error class.
	Error = errs.Class("filestore error")

	mon = monkit.Package()
)

var _ storage.Objects = (*Store)(nil)

// Store implements a content-addressed object store on disk.
//
// The store is append-only: once a digest exists its content is never
// overwritten. Writes go to a temporary file and are published with an
// atomic rename, which makes Put naturally idempotent and race-safe
// under concurrent writers.
type Store struct {
	dir *Dir
}

// New creates an object store in the given directory layout.
func New(dir *Dir) *Store {
	return &Store{dir: dir}
}

// NewAt creates an object store rooted at path.
func NewAt(path string) (*Store, error) {
	dir, err := NewDir(path)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the underlying directory layout.
func (store *Store) Dir() *Dir { return store.dir }

// Put stores data under its content address.
func (store *Store) Put(ctx context.Context, data []byte) (_ metatree.ObjectRef, err error) {
	defer mon.Task()(&ctx)(&err)

	ref := metatree.RefOf(data)

	// Duplicate content is a no-op, but a digest that already maps to
	// content of a different size is a collision and must never be
	// repaired by overwriting.
	if info, err := store.dir.Stat(ref); err == nil {
		if info.Size() != int64(len(data)) {
			return metatree.ObjectRef{}, storage.ErrConsistency.New(
				"content hash collision on %s: stored %d bytes, new %d bytes",
				ref, info.Size(), len(data))
		}
		return ref, nil
	}

	file, err := store.dir.CreateTemporaryFile()
	if err != nil {
		return metatree.ObjectRef{}, Error.Wrap(err)
	}

	if _, err := file.Write(data); err != nil {
		return metatree.ObjectRef{}, Error.Wrap(errs.Combine(err, store.dir.DeleteTemporary(file)))
	}

	if err := store.dir.Commit(file, ref); err != nil {
		return metatree.ObjectRef{}, Error.Wrap(err)
	}
	return ref, nil
}

// Get returns the content stored under ref.
func (store *Store) Get(ctx context.Context, ref metatree.ObjectRef) (_ []byte, err error) {
	defer mon.Task()(&ctx)(&err)

	file, err := store.dir.Open(ref)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound.New("%s", ref)
		}
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, file.Close()) }()

	data, err := ioutil.ReadAll(file)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	// A blob whose content does not match its address means the store
	// has been tampered with or corrupted on disk.
	if metatree.RefOf(data) != ref {
		return nil, storage.ErrConsistency.New("stored content does not match address %s", ref)
	}
	return data, nil
}

// Has reports whether ref exists.
func (store *Store) Has(ctx context.Context, ref metatree.ObjectRef) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = store.dir.Stat(ref)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, Error.Wrap(err)
	}
	return true, nil
}

// List calls fn for every stored reference.
func (store *Store) List(ctx context.Context, fn func(ref metatree.ObjectRef) bool) (err error) {
	defer mon.Task()(&ctx)(&err)
	return Error.Wrap(store.dir.Walk(fn))
}
