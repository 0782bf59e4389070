// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

// Package extract runs a single metadata extraction and shapes the
// outcome into an immutable metadata record.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"metatree.io/metatree/pkg/extractors"
	"metatree.io/metatree/pkg/metatree"
)

var (
	// Error is the default extract error class.
	Error = errs.Class("extract")

	// ErrUnavailable is returned when the subject's content cannot be
	// made available for extraction. It maps to an "impossible" item
	// outcome rather than an error.
	ErrUnavailable = errs.Class("content unavailable")

	mon = monkit.Package()
)

// Request describes one extraction.
type Request struct {
	ExtractorName string
	Parameters    map[string]string
	AgentName     string
	AgentEmail    string
	Subject       extractors.Subject
}

// Run executes the extraction and returns the produced record. The
// record carries the producing dataset version of the subject, which is
// the causal anchor for all later aggregation reasoning.
func Run(ctx context.Context, log *zap.Logger, request Request) (_ *metatree.MetadataRecord, err error) {
	defer mon.Task()(&ctx)(&err)

	extractor, err := extractors.Get(request.ExtractorName)
	if err != nil {
		return nil, err
	}

	available, err := extractor.EnsureContentAvailable(ctx, request.Subject)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, ErrUnavailable.New("%s", request.Subject.AbsPath)
	}

	var sink bytes.Buffer
	result, err := extractor.Extract(ctx, request.Subject, request.Parameters, &sink)
	if err != nil {
		return nil, err
	}

	extracted := result.Metadata
	if extractor.OutputMode() == extractors.ExternalFile {
		extracted = bytes.TrimSpace(sink.Bytes())
	}
	if len(extracted) == 0 || !json.Valid(extracted) {
		return nil, extractors.ErrExternal.New(
			"extractor %s produced no valid metadata", extractor.Name())
	}

	record := &metatree.MetadataRecord{
		Type:                 request.Subject.Type,
		DatasetID:            request.Subject.DatasetID,
		DatasetVersion:       request.Subject.DatasetVersion,
		ExtractorName:        extractor.Name(),
		ExtractorVersion:     result.ExtractorVersion,
		ExtractionParameters: result.Parameters,
		ExtractionTime:       time.Now().UTC(),
		AgentName:            request.AgentName,
		AgentEmail:           request.AgentEmail,
		ExtractedMetadata:    extracted,
		SchemaVersion:        metatree.SchemaVersion,
	}
	if request.Subject.Type == metatree.TypeFile {
		record.Path = request.Subject.Path
	}

	if err := record.Validate(); err != nil {
		return nil, err
	}

	log.Debug("extracted metadata",
		zap.String("extractor", extractor.Name()),
		zap.String("type", string(record.Type)),
		zap.String("path", record.Path),
		zap.String("dataset", record.DatasetID.String()))

	return record, nil
}
