// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package filters

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"metatree.io/metatree/pkg/metatree"
)

func init() {
	Register("metatree_histogram", func() Filter { return &histogram{} })
}

const histogramVersion = "1.0"

// histogram summarizes the extracted metadata of the input records as
// a histogram: one bin per flattened JSON key, prefixed by the
// producing extractor's name, collecting every value seen under that
// key.
type histogram struct{}

func (*histogram) Name() string    { return "metatree_histogram" }
func (*histogram) Version() string { return histogramVersion }

func (*histogram) ID() uuid.UUID {
	return uuid.MustParse("8c0ee37c-9f3e-4c0a-8b3f-6f4b4fae0004")
}

func (filter *histogram) Filter(ctx context.Context, records []*metatree.MetadataRecord, parameters map[string]string) (Result, error) {
	bins := map[string][]interface{}{}
	for _, record := range records {
		var extracted interface{}
		if err := json.Unmarshal(record.ExtractedMetadata, &extracted); err != nil {
			return Result{}, Error.New("record %s carries invalid metadata: %v", record.Path, err)
		}
		flatten(record.ExtractorName, extracted, bins)
	}

	metadata, err := json.Marshal(map[string]interface{}{
		"@id":        "MetatreeHistogram",
		"records":    len(records),
		"histograms": bins,
	})
	if err != nil {
		return Result{}, Error.Wrap(err)
	}

	return Result{
		FilterVersion: histogramVersion,
		Parameters:    parameters,
		Metadata:      metadata,
	}, nil
}

// flatten walks a decoded JSON value and appends every scalar leaf to
// the bin of its dotted key path. List elements are keyed by index.
func flatten(key string, value interface{}, bins map[string][]interface{}) {
	switch typed := value.(type) {
	case map[string]interface{}:
		for name, nested := range typed {
			flatten(key+"."+name, nested, bins)
		}
	case []interface{}:
		for index, nested := range typed {
			flatten(fmt.Sprintf("%s[%d]", key, index), nested, bins)
		}
	default:
		bins[key] = append(bins[key], typed)
	}
}
