// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

// Package export materializes a metadata store as a plain, sharded
// directory tree for interchange, and reads such trees back. The
// layout is self-describing: a top-level version.json records the
// schema version, dataset identifiers and version tokens are split
// into directory prefixes to bound per-directory entry counts, and
// blobs live in a shared, content-addressed objects tree.
package export

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"metatree.io/metatree/pkg/index"
	"metatree.io/metatree/pkg/metastore"
	"metatree.io/metatree/pkg/metatree"
	"metatree.io/metatree/storage"
)

var (
	// Error is the default export error class.
	Error = errs.Class("export")

	mon = monkit.Package()
)

// LayoutVersion is the interchange layout schema version.
const LayoutVersion = "1.0"

const (
	versionFile    = "version.json"
	datasetsDir    = "datasets"
	objectsDir     = "objects"
	datasetRefFile = "dataset-level-metadata.id"
	fileTreeFile   = "file-tree.json"
)

// manifest is the content of version.json.
type manifest struct {
	ID            string `json:"@id"`
	LayoutVersion string `json:"export_layout_version"`
}

// Export writes the full content of store to dir. dir must not exist
// yet.
func Export(ctx context.Context, log *zap.Logger, store *metastore.Store, dir string) (err error) {
	defer mon.Task()(&ctx)(&err)

	if _, err := os.Stat(dir); err == nil {
		return Error.New("destination %s already exists", dir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Error.Wrap(err)
	}

	data, err := json.Marshal(manifest{ID: "MetatreeExport", LayoutVersion: LayoutVersion})
	if err != nil {
		return Error.Wrap(err)
	}
	if err := ioutil.WriteFile(filepath.Join(dir, versionFile), append(data, '\n'), 0644); err != nil {
		return Error.Wrap(err)
	}

	datasets, err := store.Index.Datasets(ctx)
	if err != nil {
		return err
	}

	exported := 0
	for _, datasetID := range datasets {
		versions, err := store.Index.Versions(ctx, datasetID)
		if err != nil {
			return err
		}
		for _, version := range versions {
			if err := exportVersion(ctx, store, dir, datasetID, version); err != nil {
				return err
			}
			exported++
		}
	}

	log.Info("exported metadata store",
		zap.String("destination", dir),
		zap.Int("datasets", len(datasets)),
		zap.Int("versions", exported))

	return nil
}

func exportVersion(ctx context.Context, store *metastore.Store, dir string, datasetID uuid.UUID, version string) error {
	snapshot, err := store.Index.Lookup(ctx, datasetID, version)
	if err != nil {
		return err
	}

	versionDir := filepath.Join(dir, datasetsDir, datasetPath(datasetID), versionPath(version))
	if err := os.MkdirAll(versionDir, 0755); err != nil {
		return Error.Wrap(err)
	}

	if !snapshot.DatasetRef.IsZero() {
		if err := exportObject(ctx, store, dir, snapshot.DatasetRef); err != nil {
			return err
		}
		err := ioutil.WriteFile(
			filepath.Join(versionDir, datasetRefFile),
			[]byte(snapshot.DatasetRef.String()+"\n"), 0644)
		if err != nil {
			return Error.Wrap(err)
		}
	}

	if len(snapshot.FileTree) > 0 {
		for _, ref := range snapshot.FileTree {
			if err := exportObject(ctx, store, dir, ref); err != nil {
				return err
			}
		}
		data, err := json.Marshal(snapshot.FileTree)
		if err != nil {
			return Error.Wrap(err)
		}
		err = ioutil.WriteFile(filepath.Join(versionDir, fileTreeFile), append(data, '\n'), 0644)
		if err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

func exportObject(ctx context.Context, store *metastore.Store, dir string, ref metatree.ObjectRef) error {
	data, err := store.Objects.Get(ctx, ref)
	if err != nil {
		if storage.ErrNotFound.Has(err) {
			return storage.ErrConsistency.New("dangling ref %s in index", ref)
		}
		return err
	}

	path := filepath.Join(dir, objectsDir, refPath(ref))
	if _, err := os.Stat(path); err == nil {
		return nil // deduplicated
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return Error.Wrap(err)
	}
	return Error.Wrap(ioutil.WriteFile(path, data, 0644))
}

// Import reads an exported tree into store. Records are put into the
// object store and sealed into the version index under their original
// dataset identity.
func Import(ctx context.Context, log *zap.Logger, store *metastore.Store, dir string) (err error) {
	defer mon.Task()(&ctx)(&err)

	data, err := ioutil.ReadFile(filepath.Join(dir, versionFile))
	if err != nil {
		return Error.New("not a metadata export: %v", err)
	}
	var info manifest
	if err := json.Unmarshal(data, &info); err != nil {
		return Error.New("invalid %s: %v", versionFile, err)
	}
	if info.LayoutVersion != LayoutVersion {
		return Error.New("unsupported layout version %q, expected %q",
			info.LayoutVersion, LayoutVersion)
	}

	imported := 0
	root := filepath.Join(dir, datasetsDir)
	err = filepath.Walk(root, func(path string, fileInfo os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if fileInfo.IsDir() || fileInfo.Name() == datasetRefFile {
			return nil
		}
		if fileInfo.Name() != fileTreeFile {
			return nil
		}
		if err := importVersion(ctx, store, dir, root, filepath.Dir(path)); err != nil {
			return err
		}
		imported++
		return nil
	})
	if err != nil {
		return Error.Wrap(err)
	}

	// versions that only have dataset-level metadata
	err = filepath.Walk(root, func(path string, fileInfo os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if fileInfo.IsDir() || fileInfo.Name() != datasetRefFile {
			return nil
		}
		if _, statErr := os.Stat(filepath.Join(filepath.Dir(path), fileTreeFile)); statErr == nil {
			return nil // already handled above
		}
		if err := importVersion(ctx, store, dir, root, filepath.Dir(path)); err != nil {
			return err
		}
		imported++
		return nil
	})
	if err != nil {
		return Error.Wrap(err)
	}

	log.Info("imported metadata export",
		zap.String("source", dir),
		zap.Int("versions", imported))

	return nil
}

func importVersion(ctx context.Context, store *metastore.Store, dir, root, versionDir string) error {
	datasetID, version, err := parseVersionDir(root, versionDir)
	if err != nil {
		return err
	}

	var updates []index.Update

	refData, err := ioutil.ReadFile(filepath.Join(versionDir, datasetRefFile))
	if err == nil {
		ref, err := metatree.RefFromString(strings.TrimSpace(string(refData)))
		if err != nil {
			return storage.ErrConsistency.New("invalid dataset ref in %s: %v", versionDir, err)
		}
		if err := importObject(ctx, store, dir, ref); err != nil {
			return err
		}
		updates = append(updates, index.Update{Path: index.DatasetLevel, Ref: ref})
	} else if !os.IsNotExist(err) {
		return Error.Wrap(err)
	}

	treeData, err := ioutil.ReadFile(filepath.Join(versionDir, fileTreeFile))
	if err == nil {
		var tree map[string]metatree.ObjectRef
		if err := json.Unmarshal(treeData, &tree); err != nil {
			return storage.ErrConsistency.New("invalid file tree in %s: %v", versionDir, err)
		}
		for path, ref := range tree {
			if err := importObject(ctx, store, dir, ref); err != nil {
				return err
			}
			updates = append(updates, index.Update{Path: path, Ref: ref})
		}
	} else if !os.IsNotExist(err) {
		return Error.Wrap(err)
	}

	if len(updates) == 0 {
		return nil
	}
	_, err = store.Index.Seal(ctx, datasetID, version, updates)
	return err
}

func importObject(ctx context.Context, store *metastore.Store, dir string, ref metatree.ObjectRef) error {
	data, err := ioutil.ReadFile(filepath.Join(dir, objectsDir, refPath(ref)))
	if err != nil {
		if os.IsNotExist(err) {
			return storage.ErrConsistency.New("export is missing object %s", ref)
		}
		return Error.Wrap(err)
	}

	stored, err := store.Objects.Put(ctx, data)
	if err != nil {
		return err
	}
	if stored != ref {
		return storage.ErrConsistency.New("object content does not match its name %s", ref)
	}
	return nil
}

// datasetPath splits a dataset id into a three level directory prefix.
func datasetPath(datasetID uuid.UUID) string {
	hex := strings.ReplaceAll(datasetID.String(), "-", "")
	return filepath.Join(hex[0:2], hex[2:4], hex[4:])
}

// versionPath splits a version token into a two level directory
// prefix. Tokens are opaque and may contain separators or other
// characters unfit for file names, so the token is hex encoded first.
func versionPath(version string) string {
	encoded := hex.EncodeToString([]byte(version))
	if len(encoded) <= 2 {
		return filepath.Join("__", encoded)
	}
	return filepath.Join(encoded[0:2], encoded[2:])
}

// refPath splits an object reference like the on-disk object store
// does.
func refPath(ref metatree.ObjectRef) string {
	hex := ref.String()
	return filepath.Join(hex[0:2], hex[2:4], hex[4:])
}

// parseVersionDir recovers dataset id and version token from a version
// directory path below root.
func parseVersionDir(root, versionDir string) (uuid.UUID, string, error) {
	rel, err := filepath.Rel(root, versionDir)
	if err != nil {
		return uuid.Nil, "", Error.Wrap(err)
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 5 {
		return uuid.Nil, "", storage.ErrConsistency.New("unexpected export path %s", rel)
	}

	datasetID, err := uuid.Parse(parts[0] + parts[1] + parts[2])
	if err != nil {
		return uuid.Nil, "", storage.ErrConsistency.New("invalid dataset id in %s: %v", rel, err)
	}

	encoded := parts[3] + parts[4]
	if parts[3] == "__" {
		encoded = parts[4]
	}
	version, err := hex.DecodeString(encoded)
	if err != nil {
		return uuid.Nil, "", storage.ErrConsistency.New("invalid version token in %s: %v", rel, err)
	}
	return datasetID, string(version), nil
}
