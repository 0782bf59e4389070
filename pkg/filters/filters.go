// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

// Package filters defines the metadata filter contract and a
// compile-time registry of implementations. A filter consumes stored
// metadata records and derives a new dataset level record from them,
// which can be printed or added back to the store.
package filters

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"metatree.io/metatree/pkg/metatree"
)

var (
	// Error is the default filter error class.
	Error = errs.Class("filter")

	// ErrUnknown is returned for filter names that are not
	// registered.
	ErrUnknown = errs.Class("unknown filter")

	mon = monkit.Package()
)

// Result is the outcome of one filter invocation.
type Result struct {
	FilterVersion string
	Parameters    map[string]string
	Metadata      json.RawMessage
}

// Filter is the capability interface every metadata filter implements.
type Filter interface {
	// Name returns the registry name of the filter.
	Name() string

	// ID returns the stable identifier of the filter implementation.
	ID() uuid.UUID

	// Version returns the filter version recorded in produced
	// metadata.
	Version() string

	// Filter derives metadata from the given records. parameters are
	// filter-specific and are recorded verbatim in the produced
	// metadata record.
	Filter(ctx context.Context, records []*metatree.MetadataRecord, parameters map[string]string) (Result, error)
}

var (
	mu       sync.Mutex
	registry = map[string]func() Filter{}
)

// Register adds a filter factory under its name. Duplicate
// registrations panic; they indicate a build misconfiguration.
func Register(name string, factory func() Filter) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[name]; exists {
		panic("filter already registered: " + name)
	}
	registry[name] = factory
}

// Get returns a new instance of the named filter.
func Get(name string) (Filter, error) {
	mu.Lock()
	factory, exists := registry[name]
	mu.Unlock()
	if !exists {
		return nil, ErrUnknown.New("%q", name)
	}
	return factory(), nil
}

// Names returns all registered filter names, sorted.
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

// Request describes one filter run.
type Request struct {
	FilterName string
	Parameters map[string]string
	AgentName  string
	AgentEmail string

	// DatasetID and DatasetVersion identify the dataset the derived
	// record is attributed to, usually the dataset the input records
	// were resolved from.
	DatasetID      uuid.UUID
	DatasetVersion string

	Records []*metatree.MetadataRecord
}

// Run executes the named filter over the request's records and shapes
// the outcome into a dataset level metadata record.
func Run(ctx context.Context, log *zap.Logger, request Request) (_ *metatree.MetadataRecord, err error) {
	defer mon.Task()(&ctx)(&err)

	filter, err := Get(request.FilterName)
	if err != nil {
		return nil, err
	}

	result, err := filter.Filter(ctx, request.Records, request.Parameters)
	if err != nil {
		return nil, err
	}
	if len(result.Metadata) == 0 || !json.Valid(result.Metadata) {
		return nil, Error.New("filter %s produced no valid metadata", filter.Name())
	}

	record := &metatree.MetadataRecord{
		Type:                 metatree.TypeDataset,
		DatasetID:            request.DatasetID,
		DatasetVersion:       request.DatasetVersion,
		ExtractorName:        filter.Name(),
		ExtractorVersion:     result.FilterVersion,
		ExtractionParameters: result.Parameters,
		ExtractionTime:       time.Now().UTC(),
		AgentName:            request.AgentName,
		AgentEmail:           request.AgentEmail,
		ExtractedMetadata:    result.Metadata,
		SchemaVersion:        metatree.SchemaVersion,
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	log.Debug("filtered metadata",
		zap.String("filter", filter.Name()),
		zap.Int("records", len(request.Records)),
		zap.String("dataset", record.DatasetID.String()))

	return record, nil
}
