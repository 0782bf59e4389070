// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package pipeline

import (
	"context"

	"go.uber.org/zap"

	"metatree.io/metatree/pkg/extract"
	"metatree.io/metatree/pkg/extractors"
	"metatree.io/metatree/pkg/metatree"
)

// ExtractConfig configures an extract stage.
type ExtractConfig struct {
	// ExtractorName is the registry name of the extractor to run.
	ExtractorName string

	// SubjectType restricts the stage to file or dataset items; when
	// empty the stage handles both.
	SubjectType metatree.RecordType

	// Parameters are passed to the extractor and recorded in produced
	// metadata.
	Parameters map[string]string

	AgentName  string
	AgentEmail string
}

// ExtractStage runs a metadata extractor on every matching item and
// attaches the produced record.
type ExtractStage struct {
	log       *zap.Logger
	extractor extractors.Extractor
	config    ExtractConfig
}

var _ Processor = (*ExtractStage)(nil)

// NewExtractStage creates an extract stage. An unknown extractor name
// is a configuration error, detected here so that runs fail before any
// item is scheduled.
func NewExtractStage(log *zap.Logger, config ExtractConfig) (*ExtractStage, error) {
	switch config.SubjectType {
	case "", metatree.TypeFile, metatree.TypeDataset:
	default:
		return nil, ErrConfiguration.New("unknown subject type %q", config.SubjectType)
	}
	extractor, err := extractors.Get(config.ExtractorName)
	if err != nil {
		return nil, ErrConfiguration.Wrap(err)
	}
	return &ExtractStage{log: log, extractor: extractor, config: config}, nil
}

// Name returns the stage name.
func (stage *ExtractStage) Name() string { return "extract" }

// Concurrent reports that extraction is safe to run in parallel:
// extractors only read the dataset tree.
func (stage *ExtractStage) Concurrent() bool { return true }

// Process extracts metadata for the item. Items whose element type the
// extractor does not handle are passed through untouched.
func (stage *ExtractStage) Process(ctx context.Context, item *Item) (Outcome, error) {
	if stage.config.SubjectType != "" && item.Entry.Type != stage.config.SubjectType {
		return OutcomeNotNeeded, nil
	}

	subject := extractors.Subject{
		Type:           item.Entry.Type,
		DatasetID:      item.Entry.DatasetID,
		DatasetVersion: item.Entry.DatasetVersion,
		Path:           item.Entry.Path,
		AbsPath:        item.Entry.AbsPath,
	}

	record, err := extract.Run(ctx, stage.log, extract.Request{
		ExtractorName: stage.config.ExtractorName,
		Parameters:    stage.config.Parameters,
		AgentName:     stage.config.AgentName,
		AgentEmail:    stage.config.AgentEmail,
		Subject:       subject,
	})
	switch {
	case err == nil:
	case extract.ErrUnavailable.Has(err):
		return OutcomeImpossible, nil
	default:
		return OutcomeError, err
	}

	item.Records = append(item.Records, record)
	return OutcomeOK, nil
}
