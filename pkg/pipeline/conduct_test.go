// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package pipeline_test

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"metatree.io/metatree/internal/testcontext"
	"metatree.io/metatree/internal/testrand"
	"metatree.io/metatree/pkg/dataset"
	"metatree.io/metatree/pkg/index"
	"metatree.io/metatree/pkg/metastore"
	"metatree.io/metatree/pkg/metatree"
	"metatree.io/metatree/pkg/pipeline"
)

func TestParseSpec(t *testing.T) {
	spec, err := pipeline.ParseSpec([]byte(`{
		"provider": {"name": "dataset-traverse", "arguments": {"item_types": "file"}},
		"processors": [
			{"name": "extract", "arguments": {"extractor_name": "metatree_core_file"}},
			{"name": "add"}
		]
	}`))
	require.NoError(t, err)
	require.Equal(t, "dataset-traverse", spec.Provider.Name)
	require.Len(t, spec.Processors, 2)

	_, err = pipeline.ParseSpec([]byte(`{"processors": [{"name": "add"}]}`))
	require.Error(t, err)
	require.True(t, pipeline.ErrConfiguration.Has(err))

	_, err = pipeline.ParseSpec([]byte(`{"provider": {"name": "dataset-traverse"}}`))
	require.Error(t, err)
	require.True(t, pipeline.ErrConfiguration.Has(err))
}

func TestBuildConfigurationErrors(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	log := zaptest.NewLogger(t)
	repo, err := dataset.InitPlain(ctx.Dir("root"), testrand.UUID(), "v1", nil)
	require.NoError(t, err)
	store, err := metastore.OpenRepository(log, repo.Root())
	require.NoError(t, err)
	defer ctx.Check(store.Close)

	env := &pipeline.Environment{Log: log, Repository: repo, Store: store}

	for _, definition := range []string{
		`{"provider": {"name": "no-such-provider"}, "processors": [{"name": "add"}]}`,
		`{"provider": {"name": "dataset-traverse"}, "processors": [{"name": "no-such-stage"}]}`,
		`{"provider": {"name": "dataset-traverse"},
		  "processors": [{"name": "extract", "arguments": {"extractor_name": "no_such_extractor"}}]}`,
		`{"provider": {"name": "dataset-traverse", "arguments": {"item_types": "directory"}},
		  "processors": [{"name": "add"}]}`,
		`{"provider": {"name": "dataset-traverse", "arguments": {"recursive": "nope"}},
		  "processors": [{"name": "add"}]}`,
	} {
		spec, err := pipeline.ParseSpec([]byte(definition))
		require.NoError(t, err, definition)

		_, err = env.Build(spec, 2)
		require.Error(t, err, definition)
		require.True(t, pipeline.ErrConfiguration.Has(err), definition)
	}
}

func TestConductExtractAdd(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	log := zaptest.NewLogger(t)
	root := ctx.Dir("root")
	repo, err := dataset.InitPlain(root, testrand.UUID(), testrand.Version(), nil)
	require.NoError(t, err)

	require.NoError(t, ioutil.WriteFile(filepath.Join(root, "one.txt"), []byte("one"), 0644))
	require.NoError(t, ioutil.WriteFile(filepath.Join(root, "two.txt"), []byte("two"), 0644))

	store, err := metastore.OpenRepository(log, root)
	require.NoError(t, err)
	defer ctx.Check(store.Close)

	spec, err := pipeline.ParseSpec([]byte(`{
		"provider": {"name": "dataset-traverse", "arguments": {"item_types": "file"}},
		"processors": [
			{"name": "extract", "arguments": {"extractor_name": "metatree_core_file", "subject_type": "file"}},
			{"name": "add"}
		]
	}`))
	require.NoError(t, err)

	env := &pipeline.Environment{
		Log:        log,
		Repository: repo,
		Store:      store,
		AgentName:  "tester",
		AgentEmail: "tester@localhost",
	}
	run, err := env.Build(spec, 2)
	require.NoError(t, err)

	summary, err := run.Execute(ctx)
	require.NoError(t, err)
	require.Equal(t, pipeline.StateCompleted, summary.State)
	require.Equal(t, 2, summary.Counts[pipeline.OutcomeOK])

	entries, err := store.Index.ResolveDataset(ctx, repo.ID(), "", index.VersionLatest)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "one.txt", entries[0].Path)
	require.Equal(t, "two.txt", entries[1].Path)

	record, err := store.GetRecord(ctx, entries[0].Ref)
	require.NoError(t, err)
	require.Equal(t, metatree.TypeFile, record.Type)
	require.Equal(t, repo.ID(), record.DatasetID)
	require.Equal(t, repo.Version(), record.DatasetVersion)
	require.Equal(t, "tester", record.AgentName)
}

func TestConductMixedTypes(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	log := zaptest.NewLogger(t)
	root := ctx.Dir("root")
	repo, err := dataset.InitPlain(root, testrand.UUID(), testrand.Version(), nil)
	require.NoError(t, err)
	require.NoError(t, ioutil.WriteFile(filepath.Join(root, "one.txt"), []byte("one"), 0644))

	store, err := metastore.OpenRepository(log, root)
	require.NoError(t, err)
	defer ctx.Check(store.Close)

	// the dataset extractor skips file items instead of failing them
	spec, err := pipeline.ParseSpec([]byte(`{
		"provider": {"name": "dataset-traverse"},
		"processors": [
			{"name": "extract", "arguments": {"extractor_name": "metatree_core_dataset", "subject_type": "dataset"}},
			{"name": "add"}
		]
	}`))
	require.NoError(t, err)

	env := &pipeline.Environment{Log: log, Repository: repo, Store: store}
	run, err := env.Build(spec, 2)
	require.NoError(t, err)

	summary, err := run.Execute(ctx)
	require.NoError(t, err)
	require.Equal(t, pipeline.StateCompleted, summary.State)
	require.Equal(t, 1, summary.Counts[pipeline.OutcomeOK])
	require.Equal(t, 1, summary.Counts[pipeline.OutcomeNotNeeded])

	snapshot, err := store.Index.Lookup(ctx, repo.ID(), repo.Version())
	require.NoError(t, err)
	require.False(t, snapshot.DatasetRef.IsZero())
	require.Empty(t, snapshot.FileTree)
}
