// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package pipeline

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"metatree.io/metatree/pkg/metastore"
)

// AddConfig configures an add stage.
type AddConfig struct {
	// Aggregate controls whether records produced for sub-datasets are
	// added to the store as well; without it only records of the root
	// dataset are stored.
	Aggregate bool

	// RootDatasetID identifies the dataset the store belongs to; used
	// to tell root records from sub-dataset records.
	RootDatasetID uuid.UUID
}

// AddStage stores the records attached to an item into the metadata
// store and seals them into the version index.
type AddStage struct {
	log    *zap.Logger
	store  *metastore.Store
	config AddConfig
}

var _ Processor = (*AddStage)(nil)

// NewAddStage creates an add stage writing to store.
func NewAddStage(log *zap.Logger, store *metastore.Store, config AddConfig) *AddStage {
	return &AddStage{log: log, store: store, config: config}
}

// Name returns the stage name.
func (stage *AddStage) Name() string { return "add" }

// Concurrent reports that adding is safe to run in parallel: the object
// store's atomic publish makes puts race-safe and the index serializes
// seals internally, no external locking is involved.
func (stage *AddStage) Concurrent() bool { return true }

// Process stores the item's records.
func (stage *AddStage) Process(ctx context.Context, item *Item) (Outcome, error) {
	added := 0
	for _, record := range item.Records {
		if !stage.config.Aggregate && record.DatasetID != stage.config.RootDatasetID {
			continue
		}
		if _, err := stage.store.AddRecord(ctx, record); err != nil {
			return OutcomeError, err
		}
		added++
	}
	if added == 0 {
		return OutcomeNotNeeded, nil
	}
	return OutcomeOK, nil
}
