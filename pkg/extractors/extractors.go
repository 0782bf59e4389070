// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

// Package extractors defines the metadata extractor contract and a
// compile-time registry of implementations. Extractors are looked up by
// name; an unknown name is a configuration error at run start, never a
// per-item failure.
package extractors

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/zeebo/errs"

	"metatree.io/metatree/pkg/metatree"
)

var (
	// Error is the default extractor error class.
	Error = errs.Class("extractor")

	// ErrExternal is returned when an external extractor process
	// fails or times out. It maps to a per-item error outcome.
	ErrExternal = errs.Class("external extraction failure")

	// ErrUnknown is returned for extractor names that are not
	// registered.
	ErrUnknown = errs.Class("unknown extractor")
)

// OutputMode describes how an extractor delivers its result.
type OutputMode int

const (
	// Immediate extractors return the extracted metadata as part of
	// the result.
	Immediate OutputMode = iota
	// ExternalFile extractors write the extracted metadata to the
	// output sink passed to Extract.
	ExternalFile
)

// Subject identifies the element metadata is extracted from.
type Subject struct {
	Type           metatree.RecordType
	DatasetID      uuid.UUID
	DatasetVersion string

	// Path is the file path relative to the dataset root, empty for
	// dataset subjects.
	Path string

	// AbsPath locates the file, or the dataset root, on disk.
	AbsPath string
}

// Result is the outcome of one extractor invocation.
type Result struct {
	ExtractorVersion string
	Parameters       map[string]string

	// Metadata carries the extracted metadata for Immediate
	// extractors; ExternalFile extractors leave it nil and write to
	// the sink instead.
	Metadata json.RawMessage
}

// Extractor is the capability interface every metadata extractor
// implements.
type Extractor interface {
	// Name returns the registry name of the extractor.
	Name() string

	// ID returns the stable identifier of the extractor
	// implementation.
	ID() uuid.UUID

	// Version returns the extractor version recorded in produced
	// metadata.
	Version() string

	// OutputMode returns how the extractor delivers results.
	OutputMode() OutputMode

	// EnsureContentAvailable reports whether the subject's content is
	// available for extraction, fetching it when the backend allows.
	EnsureContentAvailable(ctx context.Context, subject Subject) (bool, error)

	// Extract runs the extraction for subject. parameters are
	// extractor-specific and are recorded verbatim in the produced
	// metadata record.
	Extract(ctx context.Context, subject Subject, parameters map[string]string, output io.Writer) (Result, error)
}

var (
	mu       sync.Mutex
	registry = map[string]func() Extractor{}
)

// Register adds an extractor factory under its name. Duplicate
// registrations panic; they indicate a build misconfiguration.
func Register(name string, factory func() Extractor) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[name]; exists {
		panic("extractor already registered: " + name)
	}
	registry[name] = factory
}

// Get returns a new instance of the named extractor.
func Get(name string) (Extractor, error) {
	mu.Lock()
	factory, exists := registry[name]
	mu.Unlock()
	if !exists {
		return nil, ErrUnknown.New("%q", name)
	}
	return factory(), nil
}

// Names returns all registered extractor names, sorted.
func Names() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
