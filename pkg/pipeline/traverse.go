// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package pipeline

import (
	"context"

	"metatree.io/metatree/pkg/dataset"
	"metatree.io/metatree/pkg/metatree"
)

// TraverseConfig configures the dataset traversal provider.
type TraverseConfig struct {
	// ItemTypes selects what the provider emits: "file", "dataset" or
	// "both".
	ItemTypes string

	// Recursive includes sub-dataset trees, each with its own dataset
	// identity.
	Recursive bool
}

// Traverse is the provider that enumerates the elements of a dataset
// tree as work items.
type Traverse struct {
	repo   dataset.Repository
	config TraverseConfig
}

var _ Provider = (*Traverse)(nil)

// NewTraverse creates a dataset traversal provider.
func NewTraverse(repo dataset.Repository, config TraverseConfig) (*Traverse, error) {
	switch config.ItemTypes {
	case "", "both":
		config.ItemTypes = "both"
	case "file", "dataset":
	default:
		return nil, ErrConfiguration.New("unknown item type %q", config.ItemTypes)
	}
	return &Traverse{repo: repo, config: config}, nil
}

// Name returns the stage name.
func (traverse *Traverse) Name() string { return "dataset-traverse" }

// Provide enumerates the dataset tree into the work queue.
func (traverse *Traverse) Provide(ctx context.Context, items chan<- *Item) error {
	return traverse.repo.Enumerate(ctx, traverse.config.Recursive, func(entry dataset.Entry) error {
		if !traverse.wants(entry.Type) {
			return nil
		}
		select {
		case items <- &Item{Entry: entry}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (traverse *Traverse) wants(entryType metatree.RecordType) bool {
	switch traverse.config.ItemTypes {
	case "file":
		return entryType == metatree.TypeFile
	case "dataset":
		return entryType == metatree.TypeDataset
	default:
		return true
	}
}
