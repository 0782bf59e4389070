// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package index_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"metatree.io/metatree/internal/testcontext"
	"metatree.io/metatree/internal/testrand"
	"metatree.io/metatree/pkg/index"
	"metatree.io/metatree/pkg/metatree"
	"metatree.io/metatree/storage"
)

func openDB(t *testing.T, ctx *testcontext.Context) *index.DB {
	db, err := index.Open(zaptest.NewLogger(t), ctx.File("index", "index.db"))
	require.NoError(t, err)
	return db
}

func TestSealAndLookup(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := openDB(t, ctx)
	defer ctx.Check(db.Close)

	datasetID := testrand.UUID()
	version := testrand.Version()

	datasetRef := testrand.Ref()
	fileRef := testrand.Ref()

	sealed, err := db.Seal(ctx, datasetID, version, []index.Update{
		{Path: ".", Ref: datasetRef},
		{Path: "a/b/c", Ref: fileRef},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, sealed.Generation)
	require.Equal(t, datasetRef, sealed.DatasetRef)
	require.Equal(t, fileRef, sealed.FileTree["a/b/c"])

	looked, err := db.Lookup(ctx, datasetID, version)
	require.NoError(t, err)
	require.Equal(t, sealed, looked)

	// unknown version and dataset
	_, err = db.Lookup(ctx, datasetID, testrand.Version())
	require.True(t, storage.ErrNotFound.Has(err))
	_, err = db.Lookup(ctx, testrand.UUID(), version)
	require.True(t, storage.ErrNotFound.Has(err))
}

func TestSealCopyOnWrite(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := openDB(t, ctx)
	defer ctx.Check(db.Close)

	datasetID := testrand.UUID()
	version := testrand.Version()

	first := testrand.Ref()
	_, err := db.Seal(ctx, datasetID, version, []index.Update{
		{Path: "kept.txt", Ref: first},
		{Path: "replaced.txt", Ref: testrand.Ref()},
	})
	require.NoError(t, err)

	// resealing the same version inherits unspecified paths
	replacement := testrand.Ref()
	second, err := db.Seal(ctx, datasetID, version, []index.Update{
		{Path: "replaced.txt", Ref: replacement},
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, second.Generation)
	require.Equal(t, first, second.FileTree["kept.txt"])
	require.Equal(t, replacement, second.FileTree["replaced.txt"])

	// a different version starts fresh, entries are tied to the
	// producing version
	other, err := db.Seal(ctx, datasetID, testrand.Version(), []index.Update{
		{Path: "new.txt", Ref: testrand.Ref()},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, other.Generation)
	require.NotContains(t, other.FileTree, "kept.txt")
}

func TestResolve(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := openDB(t, ctx)
	defer ctx.Check(db.Close)

	datasetID := testrand.UUID()
	version := testrand.Version()

	refABC := testrand.Ref()
	refDEF := testrand.Ref()

	_, err := db.Seal(ctx, datasetID, version, []index.Update{
		{Path: "a/b/c", Ref: refABC},
		{Path: "d/e/f", Ref: refDEF},
	})
	require.NoError(t, err)

	// glob across separators
	entries, err := db.Resolve(ctx, "*", version)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "a/b/c", entries[0].Path)
	require.Equal(t, refABC, entries[0].Ref)
	require.Equal(t, "d/e/f", entries[1].Path)
	require.Equal(t, refDEF, entries[1].Ref)

	entries, err = db.Resolve(ctx, "a/*", version)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "a/b/c", entries[0].Path)

	entries, err = db.Resolve(ctx, "*/f", version)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "d/e/f", entries[0].Path)

	// latest version selection
	entries, err = db.Resolve(ctx, "*", index.VersionLatest)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// resealing an identical entry adds a generation but no new paths
	_, err = db.Seal(ctx, datasetID, version, []index.Update{
		{Path: "a/b/c", Ref: refABC},
	})
	require.NoError(t, err)

	looked, err := db.Lookup(ctx, datasetID, version)
	require.NoError(t, err)
	require.EqualValues(t, 2, looked.Generation)
	require.Len(t, looked.FileTree, 2)
}

func TestResolveDatasetLevel(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := openDB(t, ctx)
	defer ctx.Check(db.Close)

	datasetID := testrand.UUID()
	version := testrand.Version()

	_, err := db.Seal(ctx, datasetID, version, []index.Update{
		{Path: ".", Ref: testrand.Ref()},
		{Path: "file.txt", Ref: testrand.Ref()},
	})
	require.NoError(t, err)

	entries, err := db.Resolve(ctx, "", version)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, index.DatasetLevel, entries[0].Path)
}

func TestSealConcurrent(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	db := openDB(t, ctx)
	defer ctx.Check(db.Close)

	datasetID := testrand.UUID()
	version := testrand.Version()

	const workers = 8

	refs := make([]metatree.ObjectRef, workers)
	for i := range refs {
		refs[i] = testrand.Ref()
	}

	var group errgroup.Group
	for i := 0; i < workers; i++ {
		i := i
		group.Go(func() error {
			_, err := db.Seal(ctx, datasetID, version, []index.Update{
				{Path: "shared.txt", Ref: refs[i]},
			})
			return err
		})
	}
	require.NoError(t, group.Wait())

	// no lost update: every seal produced a generation, and the final
	// entry is one of the competing refs (last writer wins)
	looked, err := db.Lookup(ctx, datasetID, version)
	require.NoError(t, err)
	require.EqualValues(t, workers, looked.Generation)
	require.Contains(t, refs, looked.FileTree["shared.txt"])
}
