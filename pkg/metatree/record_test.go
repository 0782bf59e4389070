// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package metatree_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"metatree.io/metatree/internal/testrand"
	"metatree.io/metatree/pkg/metatree"
)

func testRecord(recordType metatree.RecordType, path string) *metatree.MetadataRecord {
	return &metatree.MetadataRecord{
		Type:              recordType,
		DatasetID:         testrand.UUID(),
		DatasetVersion:    testrand.Version(),
		Path:              path,
		ExtractorName:     "metatree_core_file",
		ExtractorVersion:  "1.0",
		ExtractionTime:    time.Unix(1700000000, 0).UTC(),
		AgentName:         "Test Agent",
		AgentEmail:        "agent@example.com",
		ExtractedMetadata: testrand.Metadata(),
		SchemaVersion:     metatree.SchemaVersion,
	}
}

func TestRecordRoundTrip(t *testing.T) {
	record := testRecord(metatree.TypeFile, "a/b/c")

	data, err := record.Canonical()
	require.NoError(t, err)

	parsed, err := metatree.ParseRecord(data)
	require.NoError(t, err)

	reserialized, err := parsed.Canonical()
	require.NoError(t, err)
	require.Equal(t, data, reserialized)

	ref, err := record.Ref()
	require.NoError(t, err)
	require.Equal(t, metatree.RefOf(data), ref)
}

func TestRecordValidate(t *testing.T) {
	record := testRecord(metatree.TypeFile, "a/b/c")
	require.NoError(t, record.Validate())

	// file records need a path
	record = testRecord(metatree.TypeFile, "")
	require.Error(t, record.Validate())

	// dataset records must not carry one
	record = testRecord(metatree.TypeDataset, "a/b/c")
	require.Error(t, record.Validate())

	record = testRecord(metatree.TypeDataset, "")
	require.NoError(t, record.Validate())

	record = testRecord("directory", "a")
	require.Error(t, record.Validate())
}

func TestRecordSchemaVersion(t *testing.T) {
	record := testRecord(metatree.TypeDataset, "")
	record.SchemaVersion = metatree.SchemaVersion + 1

	data, err := json.Marshal(record)
	require.NoError(t, err)

	_, err = metatree.ParseRecord(data)
	require.Error(t, err)
}

func TestWriteReadRecords(t *testing.T) {
	records := []*metatree.MetadataRecord{
		testRecord(metatree.TypeDataset, ""),
		testRecord(metatree.TypeFile, "a/b/c"),
		testRecord(metatree.TypeFile, "d/e/f"),
	}

	var buf bytes.Buffer
	require.NoError(t, metatree.WriteRecords(&buf, records...))
	require.Equal(t, 3, bytes.Count(buf.Bytes(), []byte{'\n'}))

	parsed, err := metatree.ReadRecords(&buf)
	require.NoError(t, err)
	require.Len(t, parsed, 3)

	for i := range records {
		want, err := records[i].Canonical()
		require.NoError(t, err)
		got, err := parsed[i].Canonical()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}
