// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package dataset

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"metatree.io/metatree/pkg/metatree"
)

// MarkerFile is the file that marks a directory as a plain dataset root
// and records its identity.
const MarkerFile = ".metatree.json"

// StoreDir is the directory below a dataset root that holds the
// dataset's metadata store.
const StoreDir = ".metatree"

// marker is the serialized content of MarkerFile.
type marker struct {
	DatasetID      uuid.UUID         `json:"dataset_id"`
	DatasetVersion string            `json:"dataset_version"`
	Subdatasets    map[string]string `json:"subdatasets,omitempty"`
}

// Plain is a Repository reading dataset identity from marker files in a
// plain directory tree. It stands in for a VCS-backed handle in tests
// and standalone use.
type Plain struct {
	root string
	info marker
}

var _ Repository = (*Plain)(nil)

// OpenPlain opens the plain dataset rooted at dir.
func OpenPlain(dir string) (*Plain, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	data, err := ioutil.ReadFile(filepath.Join(root, MarkerFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Error.New("no dataset at %s", root)
		}
		return nil, Error.Wrap(err)
	}

	var info marker
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, Error.New("invalid dataset marker at %s: %v", root, err)
	}
	if info.DatasetID == uuid.Nil || info.DatasetVersion == "" {
		return nil, Error.New("dataset marker at %s is missing id or version", root)
	}

	return &Plain{root: root, info: info}, nil
}

// InitPlain creates a dataset marker in dir.
func InitPlain(dir string, id uuid.UUID, version string, subdatasets map[string]string) (*Plain, error) {
	data, err := json.MarshalIndent(marker{
		DatasetID:      id,
		DatasetVersion: version,
		Subdatasets:    subdatasets,
	}, "", "  ")
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, Error.Wrap(err)
	}
	if err := ioutil.WriteFile(filepath.Join(dir, MarkerFile), append(data, '\n'), 0644); err != nil {
		return nil, Error.Wrap(err)
	}
	return OpenPlain(dir)
}

// ID returns the stable dataset identifier.
func (plain *Plain) ID() uuid.UUID { return plain.info.DatasetID }

// Version returns the current version token.
func (plain *Plain) Version() string { return plain.info.DatasetVersion }

// Root returns the dataset root directory.
func (plain *Plain) Root() string { return plain.root }

// Subdatasets returns the direct sub-dataset links.
func (plain *Plain) Subdatasets(ctx context.Context) ([]Link, error) {
	paths := make([]string, 0, len(plain.info.Subdatasets))
	for sub := range plain.info.Subdatasets {
		paths = append(paths, sub)
	}
	sort.Strings(paths)

	links := make([]Link, 0, len(paths))
	for _, sub := range paths {
		links = append(links, Link{
			Path:         sub,
			BoundVersion: plain.info.Subdatasets[sub],
			AbsPath:      filepath.Join(plain.root, filepath.FromSlash(sub)),
		})
	}
	return links, nil
}

// OpenSubdataset opens the plain dataset behind a sub-dataset link.
func (plain *Plain) OpenSubdataset(ctx context.Context, link Link) (Repository, error) {
	return OpenPlain(link.AbsPath)
}

// Enumerate walks the dataset tree. Dot-entries are excluded, matching
// the traversal defaults of metadata extraction.
func (plain *Plain) Enumerate(ctx context.Context, recursive bool, fn func(Entry) error) error {
	return plain.enumerate(ctx, "", recursive, fn)
}

func (plain *Plain) enumerate(ctx context.Context, prefix string, recursive bool, fn func(Entry) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := fn(Entry{
		Path:           joinEntryPath(prefix, "."),
		Type:           metatree.TypeDataset,
		DatasetID:      plain.info.DatasetID,
		DatasetVersion: plain.info.DatasetVersion,
		AbsPath:        plain.root,
	})
	if err != nil {
		return err
	}

	links, err := plain.Subdatasets(ctx)
	if err != nil {
		return err
	}
	subRoots := make(map[string]bool, len(links))
	for _, link := range links {
		subRoots[link.Path] = true
	}

	err = filepath.Walk(plain.root, func(abs string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(plain.root, abs)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if excluded(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			if subRoots[rel] {
				// sub-dataset trees have their own identity,
				// they are not files of this dataset
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(Entry{
			Path:           joinEntryPath(prefix, rel),
			Type:           metatree.TypeFile,
			DatasetID:      plain.info.DatasetID,
			DatasetVersion: plain.info.DatasetVersion,
			AbsPath:        abs,
		})
	})
	if err != nil {
		return Error.Wrap(err)
	}

	if !recursive {
		return nil
	}

	for _, link := range links {
		sub, err := OpenPlain(link.AbsPath)
		if err != nil {
			return err
		}
		if err := sub.enumerate(ctx, joinEntryPath(prefix, link.Path), recursive, fn); err != nil {
			return err
		}
	}
	return nil
}

// excluded reports whether a tree path is excluded from enumeration.
// Any path segment starting with a dot is excluded.
func excluded(rel string) bool {
	for _, segment := range strings.Split(rel, "/") {
		if strings.HasPrefix(segment, ".") {
			return true
		}
	}
	return false
}

func joinEntryPath(prefix, rel string) string {
	if prefix == "" {
		return rel
	}
	if rel == "." {
		return prefix
	}
	return path.Join(prefix, rel)
}
