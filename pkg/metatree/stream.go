// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package metatree

import (
	"bufio"
	"bytes"
	"io"
)

// WriteRecords writes records as JSON Lines, one canonical record per line.
// This is the interchange format between pipeline stages and across
// process boundaries.
func WriteRecords(w io.Writer, records ...*MetadataRecord) error {
	for _, record := range records {
		data, err := record.Canonical()
		if err != nil {
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return ErrRecord.Wrap(err)
		}
	}
	return nil
}

// ReadRecords decodes a JSON Lines stream of records. Blank lines are
// skipped; any malformed line aborts the read.
func ReadRecords(r io.Reader) ([]*MetadataRecord, error) {
	var records []*MetadataRecord

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		record, err := ParseRecord(line)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, ErrRecord.Wrap(err)
	}
	return records, nil
}

// Indexer consumes one metadata record and returns a flat mapping for an
// external search index. Implementations live outside this module.
type Indexer interface {
	Index(record *MetadataRecord) (map[string]string, error)
}
