// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package aggregate_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"metatree.io/metatree/internal/testcontext"
	"metatree.io/metatree/internal/testrand"
	"metatree.io/metatree/pkg/aggregate"
	"metatree.io/metatree/pkg/dataset"
	"metatree.io/metatree/pkg/index"
	"metatree.io/metatree/pkg/metastore"
	"metatree.io/metatree/pkg/metatree"
)

func initDataset(t *testing.T, log *zap.Logger, dir string, version string, subdatasets map[string]string) (*dataset.Plain, *metastore.Store) {
	t.Helper()
	repo, err := dataset.InitPlain(dir, testrand.UUID(), version, subdatasets)
	require.NoError(t, err)
	store, err := metastore.OpenRepository(log, repo.Root())
	require.NoError(t, err)
	return repo, store
}

func addRecord(t *testing.T, ctx *testcontext.Context, store *metastore.Store, id uuid.UUID, version string, recordType metatree.RecordType, path string) metatree.ObjectRef {
	t.Helper()
	ref, err := store.AddRecord(ctx, &metatree.MetadataRecord{
		Type:              recordType,
		DatasetID:         id,
		DatasetVersion:    version,
		Path:              path,
		ExtractorName:     "metatree_core_dataset",
		ExtractorVersion:  "1.0",
		ExtractionTime:    time.Now().UTC(),
		AgentName:         "test",
		AgentEmail:        "test@localhost",
		ExtractedMetadata: json.RawMessage(`{"probe":true}`),
		SchemaVersion:     metatree.SchemaVersion,
	})
	require.NoError(t, err)
	return ref
}

func TestAggregateCompleteness(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	log := zaptest.NewLogger(t)

	root, rootStore := initDataset(t, log, ctx.Dir("root"), "v-root", map[string]string{"sub": "v-sub"})
	defer ctx.Check(rootStore.Close)
	sub, subStore := initDataset(t, log, ctx.Dir("root", "sub"), "v-sub", nil)

	addRecord(t, ctx, rootStore, root.ID(), root.Version(), metatree.TypeDataset, "")
	addRecord(t, ctx, subStore, sub.ID(), sub.Version(), metatree.TypeDataset, "")
	addRecord(t, ctx, subStore, sub.ID(), sub.Version(), metatree.TypeFile, "payload.bin")
	ctx.Check(subStore.Close)

	report, err := aggregate.New(log, root, rootStore, aggregate.Config{}).Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Subdatasets, 1)
	require.Empty(t, report.Subdatasets[0].Error)
	require.Equal(t, 2, report.Copied())
	require.Equal(t, 0, report.Subdatasets[0].Unverified)

	entries, err := rootStore.Index.ResolveDataset(ctx, root.ID(), "", index.VersionLatest)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, index.DatasetLevel, entries[0].Path)
	require.Equal(t, "sub", entries[1].Path)
	require.Equal(t, "sub/payload.bin", entries[2].Path)

	record, err := rootStore.GetRecord(ctx, entries[2].Ref)
	require.NoError(t, err)
	require.NotNil(t, record.Aggregation)
	require.Equal(t, root.ID(), record.Aggregation.RootDatasetID)
	require.Equal(t, root.Version(), record.Aggregation.RootDatasetVersion)
	require.Equal(t, "sub", record.Aggregation.DatasetPath)
	require.Equal(t, metatree.ContainmentVerified, record.Aggregation.Containment)
	// the producing dataset version is preserved verbatim
	require.Equal(t, sub.ID(), record.DatasetID)
	require.Equal(t, "v-sub", record.DatasetVersion)
	require.Equal(t, "payload.bin", record.Path)
}

func TestAggregatePreservesAmbiguity(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	log := zaptest.NewLogger(t)

	root, rootStore := initDataset(t, log, ctx.Dir("root"), "v-root", map[string]string{"sub": "v-new"})
	defer ctx.Check(rootStore.Close)
	sub, subStore := initDataset(t, log, ctx.Dir("root", "sub"), "v-new", nil)

	// metadata produced for an older sub-dataset version than the one
	// checked out now
	addRecord(t, ctx, subStore, sub.ID(), "v-old", metatree.TypeFile, "stale.bin")
	addRecord(t, ctx, subStore, sub.ID(), "v-new", metatree.TypeFile, "fresh.bin")
	ctx.Check(subStore.Close)

	report, err := aggregate.New(log, root, rootStore, aggregate.Config{}).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Copied())
	require.Equal(t, 1, report.Subdatasets[0].Unverified)

	entries, err := rootStore.Index.ResolveDataset(ctx, root.ID(), "sub/stale.bin", index.VersionLatest)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	stale, err := rootStore.GetRecord(ctx, entries[0].Ref)
	require.NoError(t, err)
	require.Equal(t, "v-old", stale.DatasetVersion)
	require.Equal(t, metatree.ContainmentUnverified, stale.Aggregation.Containment)
	// no root version is asserted for an unprovable containment
	require.Empty(t, stale.Aggregation.RootDatasetVersion)

	entries, err = rootStore.Index.ResolveDataset(ctx, root.ID(), "sub/fresh.bin", index.VersionLatest)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	fresh, err := rootStore.GetRecord(ctx, entries[0].Ref)
	require.NoError(t, err)
	require.Equal(t, metatree.ContainmentVerified, fresh.Aggregation.Containment)
	require.Equal(t, "v-root", fresh.Aggregation.RootDatasetVersion)
}

func TestAggregateSiblingIsolation(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	log := zaptest.NewLogger(t)

	root, rootStore := initDataset(t, log, ctx.Dir("root"), "v-root", map[string]string{
		"bad":  "v-bad",
		"good": "v-good",
	})
	defer ctx.Check(rootStore.Close)

	// "bad" is a dataset without a metadata store
	_, err := dataset.InitPlain(ctx.Dir("root", "bad"), testrand.UUID(), "v-bad", nil)
	require.NoError(t, err)

	good, goodStore := initDataset(t, log, ctx.Dir("root", "good"), "v-good", nil)
	addRecord(t, ctx, goodStore, good.ID(), good.Version(), metatree.TypeFile, "data.bin")
	ctx.Check(goodStore.Close)

	report, err := aggregate.New(log, root, rootStore, aggregate.Config{}).Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Subdatasets, 2)

	require.Equal(t, "bad", report.Subdatasets[0].Path)
	require.NotEmpty(t, report.Subdatasets[0].Error)
	require.Equal(t, 0, report.Subdatasets[0].Copied)

	require.Equal(t, "good", report.Subdatasets[1].Path)
	require.Empty(t, report.Subdatasets[1].Error)
	require.Equal(t, 1, report.Subdatasets[1].Copied)

	entries, err := rootStore.Index.ResolveDataset(ctx, root.ID(), "", index.VersionLatest)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "good/data.bin", entries[0].Path)
}

func TestAggregateDanglingRef(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	log := zaptest.NewLogger(t)

	root, rootStore := initDataset(t, log, ctx.Dir("root"), "v-root", map[string]string{"sub": "v-sub"})
	defer ctx.Check(rootStore.Close)
	sub, subStore := initDataset(t, log, ctx.Dir("root", "sub"), "v-sub", nil)

	addRecord(t, ctx, subStore, sub.ID(), sub.Version(), metatree.TypeFile, "ok.bin")
	// an index entry whose object was lost
	_, err := subStore.Index.Seal(ctx, sub.ID(), sub.Version(), []index.Update{
		{Path: "lost.bin", Ref: testrand.Ref()},
	})
	require.NoError(t, err)
	ctx.Check(subStore.Close)

	report, err := aggregate.New(log, root, rootStore, aggregate.Config{}).Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Subdatasets, 1)
	require.Empty(t, report.Subdatasets[0].Error)
	require.Equal(t, 1, report.Subdatasets[0].Copied)
	require.Len(t, report.Subdatasets[0].EntryErrors, 1)

	entries, err := rootStore.Index.ResolveDataset(ctx, root.ID(), "", index.VersionLatest)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "sub/ok.bin", entries[0].Path)
}

func TestAggregateNested(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	log := zaptest.NewLogger(t)

	root, rootStore := initDataset(t, log, ctx.Dir("root"), "v-root", map[string]string{"mid": "v-mid"})
	defer ctx.Check(rootStore.Close)
	mid, midStore := initDataset(t, log, ctx.Dir("root", "mid"), "v-mid", map[string]string{"leaf": "v-leaf"})
	leaf, leafStore := initDataset(t, log, ctx.Dir("root", "mid", "leaf"), "v-leaf", nil)

	addRecord(t, ctx, leafStore, leaf.ID(), leaf.Version(), metatree.TypeFile, "deep.bin")
	ctx.Check(leafStore.Close)

	// aggregate the leaf into the middle dataset first
	report, err := aggregate.New(log, mid, midStore, aggregate.Config{}).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Copied())
	ctx.Check(midStore.Close)

	// then aggregate the middle dataset into the root: the leaf record
	// keeps its identity below the combined path
	report, err = aggregate.New(log, root, rootStore, aggregate.Config{}).Run(ctx)
	require.NoError(t, err)

	entries, err := rootStore.Index.ResolveDataset(ctx, root.ID(), "mid/leaf/*", index.VersionLatest)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "mid/leaf/deep.bin", entries[0].Path)

	record, err := rootStore.GetRecord(ctx, entries[0].Ref)
	require.NoError(t, err)
	require.Equal(t, leaf.ID(), record.DatasetID)
	require.Equal(t, "v-leaf", record.DatasetVersion)
	require.Equal(t, "mid/leaf", record.Aggregation.DatasetPath)
	require.Equal(t, metatree.ContainmentVerified, record.Aggregation.Containment)
}
