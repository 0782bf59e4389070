// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

// Package index implements the per-dataset version index: for every
// (dataset id, dataset version) pair it maps file paths to metadata
// object references and keeps an optional dataset-level reference.
//
// Indexes are copy-on-write: sealing a version derives a new generation
// from the previous one for the same version; history is never rewritten
// in place. A fresh version starts empty, it does not inherit entries
// produced for other versions.
package index

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"metatree.io/metatree/pkg/metatree"
	"metatree.io/metatree/storage"
)

var (
	// Error is the default version index error class.
	Error = errs.Class("version index")

	mon = monkit.Package()
)

const fileMode = 0600

var (
	versionsBucket = []byte("versions")
	headsBucket    = []byte("heads")
)

// DatasetLevel is the path value of a dataset-level index entry.
const DatasetLevel = "."

// Update is a single seal item. An empty path or "." updates the
// dataset-level reference, otherwise the file-tree entry for Path.
type Update struct {
	Path string
	Ref  metatree.ObjectRef
}

// VersionIndex is an immutable snapshot of the index for one dataset
// version. Mutating a returned snapshot has no effect on the store.
type VersionIndex struct {
	DatasetID      uuid.UUID
	DatasetVersion string
	Generation     int64
	DatasetRef     metatree.ObjectRef
	FileTree       map[string]metatree.ObjectRef
}

// Entry is one resolved index entry. Path is "." for dataset-level
// metadata.
type Entry struct {
	DatasetID      uuid.UUID
	DatasetVersion string
	Path           string
	Ref            metatree.ObjectRef
}

// versionRecord is the serialized bolt value for one dataset version.
type versionRecord struct {
	Generation int64                         `json:"generation"`
	Seq        uint64                        `json:"seq"`
	SealedAt   time.Time                     `json:"sealed_at"`
	DatasetRef string                        `json:"dataset_ref,omitempty"`
	FileTree   map[string]metatree.ObjectRef `json:"file_tree,omitempty"`
}

// DB is a bolt backed version index store.
type DB struct {
	log *zap.Logger
	db  *bolt.DB
}

// Open opens or creates the version index database at path.
func Open(log *zap.Logger, path string) (*DB, error) {
	db, err := bolt.Open(path, fileMode, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(versionsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(headsBucket)
		return err
	})
	if err != nil {
		return nil, Error.Wrap(errs.Combine(err, db.Close()))
	}

	return &DB{log: log, db: db}, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return Error.Wrap(db.db.Close())
}

// Seal creates a new immutable index generation for the given dataset
// version, derived copy-on-write from the current generation of that
// version. Bolt serializes writing transactions, giving the required
// single-writer discipline per dataset version; when concurrent seals
// for the same version race, the last writer wins per path.
func (db *DB) Seal(ctx context.Context, datasetID uuid.UUID, datasetVersion string, updates []Update) (_ *VersionIndex, err error) {
	defer mon.Task()(&ctx)(&err)

	if datasetVersion == "" {
		return nil, Error.New("missing dataset version")
	}

	var sealed *VersionIndex
	err = db.db.Update(func(tx *bolt.Tx) error {
		datasets := tx.Bucket(versionsBucket)
		bucket, err := datasets.CreateBucketIfNotExists([]byte(datasetID.String()))
		if err != nil {
			return err
		}

		record := versionRecord{FileTree: map[string]metatree.ObjectRef{}}
		if stored := bucket.Get([]byte(datasetVersion)); stored != nil {
			if err := json.Unmarshal(stored, &record); err != nil {
				return storage.ErrConsistency.New("unreadable index entry for %s@%s: %v",
					datasetID, datasetVersion, err)
			}
		}
		if record.FileTree == nil {
			record.FileTree = map[string]metatree.ObjectRef{}
		}

		for _, update := range updates {
			if update.Ref.IsZero() {
				return Error.New("zero object ref for path %q", update.Path)
			}
			if update.Path == "" || update.Path == DatasetLevel {
				record.DatasetRef = update.Ref.String()
			} else {
				record.FileTree[update.Path] = update.Ref
			}
		}

		record.Generation++
		record.SealedAt = time.Now().UTC()
		record.Seq, err = bucket.NextSequence()
		if err != nil {
			return err
		}

		value, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if err := bucket.Put([]byte(datasetVersion), value); err != nil {
			return err
		}

		// remember the most recently sealed version per dataset
		heads := tx.Bucket(headsBucket)
		if err := heads.Put([]byte(datasetID.String()), []byte(datasetVersion)); err != nil {
			return err
		}

		sealed, err = record.snapshot(datasetID, datasetVersion)
		return err
	})
	if err != nil {
		if storage.ErrConsistency.Has(err) {
			return nil, err
		}
		return nil, Error.Wrap(err)
	}

	db.log.Debug("sealed version index",
		zap.String("dataset", datasetID.String()),
		zap.String("version", datasetVersion),
		zap.Int64("generation", sealed.Generation),
		zap.Int("updates", len(updates)))

	return sealed, nil
}

// Lookup returns the current index snapshot for one dataset version.
func (db *DB) Lookup(ctx context.Context, datasetID uuid.UUID, datasetVersion string) (_ *VersionIndex, err error) {
	defer mon.Task()(&ctx)(&err)

	var snapshot *VersionIndex
	err = db.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(versionsBucket).Bucket([]byte(datasetID.String()))
		if bucket == nil {
			return storage.ErrNotFound.New("dataset %s", datasetID)
		}
		stored := bucket.Get([]byte(datasetVersion))
		if stored == nil {
			return storage.ErrNotFound.New("dataset %s version %s", datasetID, datasetVersion)
		}

		var record versionRecord
		if err := json.Unmarshal(stored, &record); err != nil {
			return storage.ErrConsistency.New("unreadable index entry for %s@%s: %v",
				datasetID, datasetVersion, err)
		}
		snapshot, err = record.snapshot(datasetID, datasetVersion)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Datasets returns the ids of all indexed datasets.
func (db *DB) Datasets(ctx context.Context) (_ []uuid.UUID, err error) {
	defer mon.Task()(&ctx)(&err)

	var ids []uuid.UUID
	err = db.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(versionsBucket).ForEach(func(key, value []byte) error {
			if value != nil {
				return nil // not a dataset bucket
			}
			id, err := uuid.Parse(string(key))
			if err != nil {
				return storage.ErrConsistency.New("invalid dataset bucket %q", key)
			}
			ids = append(ids, id)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Versions returns all indexed versions of one dataset.
func (db *DB) Versions(ctx context.Context, datasetID uuid.UUID) (_ []string, err error) {
	defer mon.Task()(&ctx)(&err)

	var versions []string
	err = db.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(versionsBucket).Bucket([]byte(datasetID.String()))
		if bucket == nil {
			return storage.ErrNotFound.New("dataset %s", datasetID)
		}
		return bucket.ForEach(func(key, value []byte) error {
			versions = append(versions, string(key))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return versions, nil
}

// VersionLatest selects the most recently sealed version of a dataset.
// Version tokens have no total order across histories, so recency of
// sealing is the only meaningful notion of "latest" the index can offer.
const VersionLatest = "latest"

// VersionAny selects every indexed version.
const VersionAny = "*"

// Resolve returns all entries whose path matches pathPattern and whose
// version matches versionPattern, across all datasets. pathPattern
// supports glob matching where '*' also crosses path separators; the
// empty pattern matches everything. versionPattern is an exact token,
// VersionAny, or VersionLatest.
func (db *DB) Resolve(ctx context.Context, pathPattern, versionPattern string) (_ []Entry, err error) {
	defer mon.Task()(&ctx)(&err)

	datasets, err := db.Datasets(ctx)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, datasetID := range datasets {
		resolved, err := db.ResolveDataset(ctx, datasetID, pathPattern, versionPattern)
		if err != nil {
			return nil, err
		}
		entries = append(entries, resolved...)
	}
	return entries, nil
}

// ResolveDataset is Resolve restricted to one dataset.
func (db *DB) ResolveDataset(ctx context.Context, datasetID uuid.UUID, pathPattern, versionPattern string) (_ []Entry, err error) {
	defer mon.Task()(&ctx)(&err)

	versions, err := db.selectVersions(ctx, datasetID, versionPattern)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, version := range versions {
		snapshot, err := db.Lookup(ctx, datasetID, version)
		if err != nil {
			return nil, err
		}

		if !snapshot.DatasetRef.IsZero() && matchPath(pathPattern, DatasetLevel) {
			entries = append(entries, Entry{
				DatasetID:      datasetID,
				DatasetVersion: version,
				Path:           DatasetLevel,
				Ref:            snapshot.DatasetRef,
			})
		}

		paths := make([]string, 0, len(snapshot.FileTree))
		for path := range snapshot.FileTree {
			if matchPath(pathPattern, path) {
				paths = append(paths, path)
			}
		}
		sort.Strings(paths)
		for _, path := range paths {
			entries = append(entries, Entry{
				DatasetID:      datasetID,
				DatasetVersion: version,
				Path:           path,
				Ref:            snapshot.FileTree[path],
			})
		}
	}
	return entries, nil
}

func (db *DB) selectVersions(ctx context.Context, datasetID uuid.UUID, versionPattern string) ([]string, error) {
	switch versionPattern {
	case VersionAny:
		return db.Versions(ctx, datasetID)
	case VersionLatest, "":
		var head string
		err := db.db.View(func(tx *bolt.Tx) error {
			stored := tx.Bucket(headsBucket).Get([]byte(datasetID.String()))
			if stored == nil {
				return storage.ErrNotFound.New("dataset %s has no sealed version", datasetID)
			}
			head = string(stored)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return []string{head}, nil
	default:
		return []string{versionPattern}, nil
	}
}

func (record *versionRecord) snapshot(datasetID uuid.UUID, datasetVersion string) (*VersionIndex, error) {
	snapshot := &VersionIndex{
		DatasetID:      datasetID,
		DatasetVersion: datasetVersion,
		Generation:     record.Generation,
		FileTree:       make(map[string]metatree.ObjectRef, len(record.FileTree)),
	}
	if record.DatasetRef != "" {
		ref, err := metatree.RefFromString(record.DatasetRef)
		if err != nil {
			return nil, storage.ErrConsistency.New("invalid dataset ref for %s@%s: %v",
				datasetID, datasetVersion, err)
		}
		snapshot.DatasetRef = ref
	}
	for path, ref := range record.FileTree {
		snapshot.FileTree[path] = ref
	}
	return snapshot, nil
}
