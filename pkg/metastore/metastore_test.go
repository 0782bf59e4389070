// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package metastore_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"metatree.io/metatree/internal/testcontext"
	"metatree.io/metatree/internal/testrand"
	"metatree.io/metatree/pkg/index"
	"metatree.io/metatree/pkg/metastore"
	"metatree.io/metatree/pkg/metatree"
	"metatree.io/metatree/storage"
)

func testRecord(recordType metatree.RecordType, path string) *metatree.MetadataRecord {
	return &metatree.MetadataRecord{
		Type:              recordType,
		DatasetID:         testrand.UUID(),
		DatasetVersion:    testrand.Version(),
		Path:              path,
		ExtractorName:     "metatree_core_file",
		ExtractorVersion:  "1",
		ExtractionTime:    time.Now().UTC().Truncate(time.Second),
		AgentName:         "test",
		AgentEmail:        "test@localhost",
		ExtractedMetadata: json.RawMessage(`{"size":7}`),
		SchemaVersion:     metatree.SchemaVersion,
	}
}

func TestAddGetRecord(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store, err := metastore.Open(zaptest.NewLogger(t), ctx.Dir("store"))
	require.NoError(t, err)
	defer ctx.Check(store.Close)

	record := testRecord(metatree.TypeFile, "data/one.txt")
	ref, err := store.AddRecord(ctx, record)
	require.NoError(t, err)
	require.False(t, ref.IsZero())

	loaded, err := store.GetRecord(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, record.Path, loaded.Path)
	require.Equal(t, record.DatasetID, loaded.DatasetID)
	require.Equal(t, record.ExtractedMetadata, loaded.ExtractedMetadata)

	entries, err := store.Index.ResolveDataset(ctx, record.DatasetID, "", index.VersionLatest)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, ref, entries[0].Ref)
	require.Equal(t, "data/one.txt", entries[0].Path)
}

func TestAddRecordDatasetLevel(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store, err := metastore.Open(zaptest.NewLogger(t), ctx.Dir("store"))
	require.NoError(t, err)
	defer ctx.Check(store.Close)

	record := testRecord(metatree.TypeDataset, "")
	ref, err := store.AddRecord(ctx, record)
	require.NoError(t, err)

	snapshot, err := store.Index.Lookup(ctx, record.DatasetID, record.DatasetVersion)
	require.NoError(t, err)
	require.Equal(t, ref, snapshot.DatasetRef)
	require.Empty(t, snapshot.FileTree)
}

func TestGetRecordNotARecord(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store, err := metastore.Open(zaptest.NewLogger(t), ctx.Dir("store"))
	require.NoError(t, err)
	defer ctx.Check(store.Close)

	ref, err := store.Objects.Put(ctx, []byte("not json at all"))
	require.NoError(t, err)

	_, err = store.GetRecord(ctx, ref)
	require.Error(t, err)
	require.True(t, storage.ErrConsistency.Has(err))

	_, err = store.GetRecord(ctx, testrand.Ref())
	require.Error(t, err)
	require.True(t, storage.ErrNotFound.Has(err))
}

func TestExists(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	root := ctx.Dir("dataset")
	require.False(t, metastore.Exists(root))

	store, err := metastore.OpenRepository(zaptest.NewLogger(t), root)
	require.NoError(t, err)
	require.True(t, metastore.Exists(root))
	ctx.Check(store.Close)
}
