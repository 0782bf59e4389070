// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

// Package aggregate copies sub-dataset metadata into the root dataset's
// store, annotated with containment provenance, so that the root store
// becomes a self-contained, queryable superset.
package aggregate

import (
	"context"
	"path"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"metatree.io/metatree/pkg/dataset"
	"metatree.io/metatree/pkg/index"
	"metatree.io/metatree/pkg/metastore"
	"metatree.io/metatree/pkg/metatree"
	"metatree.io/metatree/storage"
)

var (
	// Error is the default aggregation error class.
	Error = errs.Class("aggregate")

	mon = monkit.Package()
)

// Config configures an aggregation.
type Config struct {
	// MaxDepth bounds how deep sub-dataset links are walked; zero or
	// negative means unlimited.
	MaxDepth int
}

// SubdatasetReport is the per-sub-dataset part of an aggregation
// report.
type SubdatasetReport struct {
	Path           string
	DatasetID      uuid.UUID
	DatasetVersion string

	// Copied counts the records imported from the sub-dataset.
	Copied int

	// Unverified counts imported records whose containment under the
	// root tree could not be proven.
	Unverified int

	// Error is set when the sub-dataset could not be aggregated at
	// all; its siblings are unaffected.
	Error string

	// EntryErrors lists entries that were skipped because their
	// stored state is corrupt, such as a dangling object reference.
	EntryErrors []string
}

// Report summarizes one aggregation run.
type Report struct {
	RootDatasetID      uuid.UUID
	RootDatasetVersion string
	Subdatasets        []SubdatasetReport
}

// Copied returns the total number of imported records.
func (report *Report) Copied() int {
	total := 0
	for _, sub := range report.Subdatasets {
		total += sub.Copied
	}
	return total
}

// Failed reports whether any sub-dataset failed to aggregate.
func (report *Report) Failed() bool {
	for _, sub := range report.Subdatasets {
		if sub.Error != "" {
			return true
		}
	}
	return false
}

// Aggregator copies metadata from sub-dataset stores into the root
// store.
type Aggregator struct {
	log    *zap.Logger
	root   dataset.Repository
	store  *metastore.Store
	config Config
}

// New creates an aggregator for the given root dataset and its store.
func New(log *zap.Logger, root dataset.Repository, store *metastore.Store, config Config) *Aggregator {
	return &Aggregator{log: log, root: root, store: store, config: config}
}

// Run aggregates all sub-datasets reachable within the configured
// depth. A sub-dataset whose store is missing or unreachable is
// reported and skipped; it never aborts aggregation of its siblings.
func (agg *Aggregator) Run(ctx context.Context) (_ *Report, err error) {
	defer mon.Task()(&ctx)(&err)

	report := &Report{
		RootDatasetID:      agg.root.ID(),
		RootDatasetVersion: agg.root.Version(),
	}

	if err := agg.walk(ctx, agg.root, "", 1, report); err != nil {
		return nil, err
	}

	agg.log.Info("aggregation finished",
		zap.String("root", report.RootDatasetID.String()),
		zap.String("version", report.RootDatasetVersion),
		zap.Int("subdatasets", len(report.Subdatasets)),
		zap.Int("copied", report.Copied()))

	return report, nil
}

func (agg *Aggregator) walk(ctx context.Context, repo dataset.Repository, prefix string, depth int, report *Report) error {
	if agg.config.MaxDepth > 0 && depth > agg.config.MaxDepth {
		return nil
	}

	links, err := repo.Subdatasets(ctx)
	if err != nil {
		return Error.Wrap(err)
	}

	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return err
		}

		subPath := joinPath(prefix, link.Path)
		sub := agg.aggregateSubdataset(ctx, repo, link, subPath)
		report.Subdatasets = append(report.Subdatasets, sub)
		if sub.Error != "" {
			continue
		}

		subRepo, err := repo.OpenSubdataset(ctx, link)
		if err != nil {
			continue
		}
		if err := agg.walk(ctx, subRepo, subPath, depth+1, report); err != nil {
			return err
		}
	}
	return nil
}

// aggregateSubdataset copies all indexed metadata of one sub-dataset
// into the root store.
func (agg *Aggregator) aggregateSubdataset(ctx context.Context, parent dataset.Repository, link dataset.Link, subPath string) SubdatasetReport {
	sub := SubdatasetReport{Path: subPath}

	subRepo, err := parent.OpenSubdataset(ctx, link)
	if err != nil {
		sub.Error = err.Error()
		return sub
	}
	sub.DatasetID = subRepo.ID()
	sub.DatasetVersion = subRepo.Version()

	if !metastore.Exists(subRepo.Root()) {
		sub.Error = Error.New("no metadata store in %s", subRepo.Root()).Error()
		return sub
	}
	subStore, err := metastore.OpenRepository(agg.log, subRepo.Root())
	if err != nil {
		sub.Error = err.Error()
		return sub
	}
	defer func() { _ = subStore.Close() }()

	entries, err := subStore.Index.ResolveDataset(ctx, subRepo.ID(), "", index.VersionAny)
	if err != nil {
		sub.Error = err.Error()
		return sub
	}

	for _, entry := range entries {
		if err := agg.importEntry(ctx, subStore, entry, subPath, subRepo.Version(), &sub); err != nil {
			sub.Error = err.Error()
			return sub
		}
	}
	return sub
}

// importEntry copies one index entry and its blob into the root store.
// Metadata produced for a sub-dataset version other than the version
// checked out at aggregation time cannot be proven to have ever existed
// at subPath under the root tree; such records are imported without a
// root version and marked unverified instead of asserting a false
// containment relation.
func (agg *Aggregator) importEntry(ctx context.Context, subStore *metastore.Store, entry index.Entry, subPath, subCurrentVersion string, sub *SubdatasetReport) error {
	record, err := subStore.GetRecord(ctx, entry.Ref)
	if err != nil {
		if storage.ErrNotFound.Has(err) {
			err = storage.ErrConsistency.New("dangling ref %s for %s@%s:%s",
				entry.Ref, entry.DatasetID, entry.DatasetVersion, entry.Path)
		}
		if storage.ErrConsistency.Has(err) {
			// corrupt entries are hard errors for the entry only
			agg.log.Error("skipping corrupt index entry",
				zap.String("path", entry.Path),
				zap.Error(err))
			sub.EntryErrors = append(sub.EntryErrors, err.Error())
			return nil
		}
		return err
	}

	verified := entry.DatasetVersion == subCurrentVersion
	info := &metatree.AggregationInfo{
		RootDatasetID: agg.root.ID(),
		DatasetPath:   subPath,
		Containment:   metatree.ContainmentUnverified,
	}
	if verified {
		info.RootDatasetVersion = agg.root.Version()
		info.Containment = metatree.ContainmentVerified
	} else {
		sub.Unverified++
	}

	// records already annotated by a previous aggregation keep their
	// original identity below the new path prefix
	if record.Aggregation != nil {
		info.DatasetPath = joinPath(subPath, record.Aggregation.DatasetPath)
		if record.Aggregation.Containment == metatree.ContainmentUnverified {
			info.RootDatasetVersion = ""
			info.Containment = metatree.ContainmentUnverified
		}
	}
	record.Aggregation = info

	data, err := record.Canonical()
	if err != nil {
		return err
	}
	ref, err := agg.store.Objects.Put(ctx, data)
	if err != nil {
		return err
	}

	update := index.Update{Path: info.DatasetPath, Ref: ref}
	if record.Type == metatree.TypeFile {
		update.Path = joinPath(info.DatasetPath, record.Path)
	}

	_, err = agg.store.Index.Seal(ctx, agg.root.ID(), agg.root.Version(), []index.Update{update})
	if err != nil {
		return err
	}

	sub.Copied++
	return nil
}

func joinPath(prefix, rel string) string {
	if prefix == "" {
		return rel
	}
	if rel == "" || rel == "." {
		return prefix
	}
	return path.Join(prefix, rel)
}
