// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package metatree

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
)

// ErrRecord is returned for malformed metadata records.
var ErrRecord = errs.Class("metadata record")

// RecordType distinguishes dataset-level from file-level metadata.
type RecordType string

const (
	// TypeDataset marks metadata describing the dataset itself.
	TypeDataset RecordType = "dataset"
	// TypeFile marks metadata describing a single file in a dataset.
	TypeFile RecordType = "file"
)

// Containment describes how confident an aggregation was that the
// imported metadata belongs at its recorded path under the root tree.
type Containment string

const (
	// ContainmentVerified means the sub-dataset version was the one
	// checked out under the root tree at aggregation time.
	ContainmentVerified Containment = "verified"
	// ContainmentUnverified means the metadata was produced for a
	// sub-dataset version that could not be proven to have ever been
	// checked out at the recorded path. The record is still imported,
	// but no root version is asserted for it.
	ContainmentUnverified Containment = "unverified"
)

// AggregationInfo records the tree-containment provenance attached to a
// record when it is copied into a root store.
type AggregationInfo struct {
	RootDatasetID      uuid.UUID   `json:"root_dataset_id"`
	RootDatasetVersion string      `json:"root_dataset_version,omitempty"`
	DatasetPath        string      `json:"dataset_path"`
	Containment        Containment `json:"containment,omitempty"`
}

// MetadataRecord is one immutable metadata value produced by a single
// extractor invocation. Its identity is the content address of its
// canonical serialization; records are never mutated in place, only
// superseded by new records.
type MetadataRecord struct {
	Type                 RecordType        `json:"type"`
	DatasetID            uuid.UUID         `json:"dataset_id"`
	DatasetVersion       string            `json:"dataset_version"`
	Path                 string            `json:"path,omitempty"`
	ExtractorName        string            `json:"extractor_name"`
	ExtractorVersion     string            `json:"extractor_version"`
	ExtractionParameters map[string]string `json:"extraction_parameter,omitempty"`
	ExtractionTime       time.Time         `json:"extraction_time"`
	AgentName            string            `json:"agent_name"`
	AgentEmail           string            `json:"agent_email"`
	ExtractedMetadata    json.RawMessage   `json:"extracted_metadata"`
	Aggregation          *AggregationInfo  `json:"aggregation_info,omitempty"`

	// SchemaVersion allows readers to reject records from a future
	// layout without misinterpreting them.
	SchemaVersion int `json:"schema_version"`
}

// SchemaVersion is the current metadata record schema.
const SchemaVersion = 1

// Validate checks structural invariants of the record.
func (record *MetadataRecord) Validate() error {
	switch record.Type {
	case TypeDataset:
		if record.Path != "" && record.Path != "." {
			return ErrRecord.New("dataset record carries file path %q", record.Path)
		}
	case TypeFile:
		if record.Path == "" || record.Path == "." {
			return ErrRecord.New("file record is missing a path")
		}
	default:
		return ErrRecord.New("unknown record type %q", record.Type)
	}
	if record.DatasetID == uuid.Nil {
		return ErrRecord.New("missing dataset id")
	}
	if record.DatasetVersion == "" {
		return ErrRecord.New("missing dataset version")
	}
	if record.ExtractorName == "" {
		return ErrRecord.New("missing extractor name")
	}
	return nil
}

// Canonical returns the canonical serialization of the record, the bytes
// whose digest is the record's identity. encoding/json with struct-ordered
// fields and no indentation is canonical here; the layout version is part
// of the record so that a future change can re-canonicalize safely.
func (record *MetadataRecord) Canonical() ([]byte, error) {
	if err := record.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(record); err != nil {
		return nil, ErrRecord.Wrap(err)
	}
	// Encode appends a newline, which is convenient for JSON Lines
	// streams but not part of the identity.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Ref returns the content address of the record.
func (record *MetadataRecord) Ref() (ObjectRef, error) {
	data, err := record.Canonical()
	if err != nil {
		return ObjectRef{}, err
	}
	return RefOf(data), nil
}

// ParseRecord decodes a single serialized metadata record.
func ParseRecord(data []byte) (*MetadataRecord, error) {
	var record MetadataRecord
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&record); err != nil {
		return nil, ErrRecord.Wrap(err)
	}
	if record.SchemaVersion > SchemaVersion {
		return nil, ErrRecord.New("record schema %d is newer than supported %d",
			record.SchemaVersion, SchemaVersion)
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}
	return &record, nil
}
