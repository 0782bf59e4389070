// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

// Package pipeline implements the "conduct" engine: a provider
// enumerating work items into a bounded queue, consumed by a fixed-size
// pool of workers that push every item through an ordered chain of
// processor stages.
package pipeline

import (
	"context"

	"github.com/zeebo/errs"

	"metatree.io/metatree/pkg/dataset"
	"metatree.io/metatree/pkg/metatree"
)

var (
	// Error is the default pipeline error class.
	Error = errs.Class("pipeline")

	// ErrConfiguration is returned for invalid pipeline definitions,
	// such as unknown stage names. Configuration errors are fatal at
	// run start.
	ErrConfiguration = errs.Class("pipeline configuration")
)

// Outcome classifies the result of one work item.
type Outcome string

const (
	// OutcomeOK means the item was fully processed.
	OutcomeOK Outcome = "ok"
	// OutcomeNotNeeded means no stage had work to do for the item.
	OutcomeNotNeeded Outcome = "notneeded"
	// OutcomeImpossible means a stage could not act on the item, for
	// example because content is unavailable.
	OutcomeImpossible Outcome = "impossible"
	// OutcomeError means a stage failed for the item. Item errors are
	// collected into the run summary and never abort the run.
	OutcomeError Outcome = "error"
)

// Item is one unit of work. It flows through the full processor chain
// independently of all other items; stages communicate by attaching
// records to it.
type Item struct {
	Entry dataset.Entry

	// Records accumulates the metadata records produced for the item.
	Records []*metatree.MetadataRecord
}

// Provider enumerates the finite, lazy sequence of work items of a run.
type Provider interface {
	// Name returns the stage name for configuration and reporting.
	Name() string

	// Provide sends work items until the sequence is exhausted or the
	// context is canceled. Implementations must select on ctx.Done()
	// while sending, so that a stop request can take effect while the
	// queue is full.
	Provide(ctx context.Context, items chan<- *Item) error
}

// Processor is one stage of the processor chain.
type Processor interface {
	// Name returns the stage name for configuration and reporting.
	Name() string

	// Concurrent reports whether the stage is safe for concurrent
	// invocation. Stages that are not are serialized by the engine.
	Concurrent() bool

	// Process handles one item. Returning OutcomeNotNeeded or
	// OutcomeImpossible skips the remaining stages for the item; a
	// non-nil error forces OutcomeError.
	Process(ctx context.Context, item *Item) (Outcome, error)
}

// Result is the recorded outcome of one work item.
type Result struct {
	Path    string
	Outcome Outcome
	Error   string
}
