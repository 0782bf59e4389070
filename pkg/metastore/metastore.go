// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

// Package metastore ties together the two halves of a dataset's
// metadata store: the content-addressed object store and the version
// index.
package metastore

import (
	"context"
	"os"
	"path/filepath"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"metatree.io/metatree/pkg/dataset"
	"metatree.io/metatree/pkg/index"
	"metatree.io/metatree/pkg/metatree"
	"metatree.io/metatree/storage"
	"metatree.io/metatree/storage/filestore"
)

// Error is the default metastore error class.
var Error = errs.Class("metastore")

// Store is the metadata store of one dataset.
type Store struct {
	log  *zap.Logger
	path string

	Objects *filestore.Store
	Index   *index.DB
}

// Open opens or creates the metadata store in the given directory.
func Open(log *zap.Logger, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, Error.Wrap(err)
	}

	objects, err := filestore.NewAt(dir)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	indexDB, err := index.Open(log, filepath.Join(dir, "index.db"))
	if err != nil {
		return nil, Error.Wrap(err)
	}

	return &Store{
		log:     log,
		path:    dir,
		Objects: objects,
		Index:   indexDB,
	}, nil
}

// OpenRepository opens the metadata store of a dataset rooted at root.
func OpenRepository(log *zap.Logger, root string) (*Store, error) {
	return Open(log, filepath.Join(root, dataset.StoreDir))
}

// Exists reports whether a metadata store is present at the dataset
// root without creating one.
func Exists(root string) bool {
	_, err := os.Stat(filepath.Join(root, dataset.StoreDir, "index.db"))
	return err == nil
}

// Path returns the store directory.
func (store *Store) Path() string { return store.path }

// Close closes the store.
func (store *Store) Close() error {
	return Error.Wrap(store.Index.Close())
}

// AddRecord stores a metadata record and seals it into the version
// index of its producing dataset version. It returns the record's
// object reference.
func (store *Store) AddRecord(ctx context.Context, record *metatree.MetadataRecord) (metatree.ObjectRef, error) {
	data, err := record.Canonical()
	if err != nil {
		return metatree.ObjectRef{}, err
	}

	ref, err := store.Objects.Put(ctx, data)
	if err != nil {
		return metatree.ObjectRef{}, err
	}

	update := index.Update{Path: index.DatasetLevel, Ref: ref}
	if record.Type == metatree.TypeFile {
		update.Path = record.Path
	}

	_, err = store.Index.Seal(ctx, record.DatasetID, record.DatasetVersion, []index.Update{update})
	if err != nil {
		return metatree.ObjectRef{}, err
	}
	return ref, nil
}

// GetRecord loads and decodes the record stored under ref.
func (store *Store) GetRecord(ctx context.Context, ref metatree.ObjectRef) (*metatree.MetadataRecord, error) {
	data, err := store.Objects.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	record, err := metatree.ParseRecord(data)
	if err != nil {
		return nil, storage.ErrConsistency.New("object %s is not a metadata record: %v", ref, err)
	}
	return record, nil
}
