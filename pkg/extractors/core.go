// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package extractors

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"

	"github.com/google/uuid"

	"metatree.io/metatree/pkg/dataset"
	"metatree.io/metatree/pkg/metatree"
)

const coreVersion = "1.0"

func init() {
	Register("metatree_core_file", func() Extractor { return &coreFile{} })
	Register("metatree_core_dataset", func() Extractor { return &coreDataset{} })
}

// coreFile extracts basic file facts: size, modification time and
// content digest.
type coreFile struct{}

func (*coreFile) Name() string           { return "metatree_core_file" }
func (*coreFile) Version() string        { return coreVersion }
func (*coreFile) OutputMode() OutputMode { return Immediate }

func (*coreFile) ID() uuid.UUID {
	return uuid.MustParse("8c0ee37c-9f3e-4c0a-8b3f-6f4b4fae0001")
}

func (*coreFile) EnsureContentAvailable(ctx context.Context, subject Subject) (bool, error) {
	_, err := os.Stat(subject.AbsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, Error.Wrap(err)
	}
	return true, nil
}

func (extractor *coreFile) Extract(ctx context.Context, subject Subject, parameters map[string]string, output io.Writer) (Result, error) {
	if subject.Type != metatree.TypeFile {
		return Result{}, Error.New("file extractor invoked on %s subject", subject.Type)
	}

	info, err := os.Stat(subject.AbsPath)
	if err != nil {
		return Result{}, Error.Wrap(err)
	}

	file, err := os.Open(subject.AbsPath)
	if err != nil {
		return Result{}, Error.Wrap(err)
	}
	defer func() { _ = file.Close() }()

	digest := sha256.New()
	if _, err := io.Copy(digest, file); err != nil {
		return Result{}, Error.Wrap(err)
	}

	metadata, err := json.Marshal(map[string]interface{}{
		"@id":           "MetatreeCoreFile",
		"path":          subject.Path,
		"content_bytes": info.Size(),
		"modified":      info.ModTime().UTC(),
		"sha256":        hex.EncodeToString(digest.Sum(nil)),
	})
	if err != nil {
		return Result{}, Error.Wrap(err)
	}

	return Result{
		ExtractorVersion: coreVersion,
		Parameters:       parameters,
		Metadata:         metadata,
	}, nil
}

// coreDataset extracts dataset identity and shape: id, version and the
// direct sub-dataset paths recorded in the tree.
type coreDataset struct{}

func (*coreDataset) Name() string           { return "metatree_core_dataset" }
func (*coreDataset) Version() string        { return coreVersion }
func (*coreDataset) OutputMode() OutputMode { return Immediate }

func (*coreDataset) ID() uuid.UUID {
	return uuid.MustParse("8c0ee37c-9f3e-4c0a-8b3f-6f4b4fae0002")
}

func (*coreDataset) EnsureContentAvailable(ctx context.Context, subject Subject) (bool, error) {
	info, err := os.Stat(subject.AbsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, Error.Wrap(err)
	}
	return info.IsDir(), nil
}

func (extractor *coreDataset) Extract(ctx context.Context, subject Subject, parameters map[string]string, output io.Writer) (Result, error) {
	if subject.Type != metatree.TypeDataset {
		return Result{}, Error.New("dataset extractor invoked on %s subject", subject.Type)
	}

	repo, err := dataset.OpenPlain(subject.AbsPath)
	if err != nil {
		return Result{}, Error.Wrap(err)
	}
	links, err := repo.Subdatasets(ctx)
	if err != nil {
		return Result{}, Error.Wrap(err)
	}
	subdatasets := make([]string, 0, len(links))
	for _, link := range links {
		subdatasets = append(subdatasets, link.Path)
	}

	metadata, err := json.Marshal(map[string]interface{}{
		"@id":             "MetatreeCoreDataset",
		"dataset_id":      subject.DatasetID.String(),
		"dataset_version": subject.DatasetVersion,
		"subdatasets":     subdatasets,
	})
	if err != nil {
		return Result{}, Error.Wrap(err)
	}

	return Result{
		ExtractorVersion: coreVersion,
		Parameters:       parameters,
		Metadata:         metadata,
	}, nil
}
