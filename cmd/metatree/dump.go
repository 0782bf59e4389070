// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package main

import (
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"metatree.io/metatree/pkg/index"
	"metatree.io/metatree/pkg/metatree"
	"metatree.io/metatree/pkg/process"
)

var (
	dumpCmd = &cobra.Command{
		Use:   "dump [pattern]",
		Short: "write stored metadata records to stdout",
		Long: "Resolves the path pattern against the version index and writes " +
			"the matching metadata records to stdout, one JSON object per " +
			"line. Without a pattern every record of the selected versions is " +
			"written. '*' in patterns matches across path separators.",
		Args: cobra.MaximumNArgs(1),
		RunE: runDump,
	}

	dumpVersion   string
	dumpDatasetID string
)

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().StringVar(&dumpVersion, "version", index.VersionLatest,
		"dataset version to dump, a version token, 'latest' or '*'")
	dumpCmd.Flags().StringVar(&dumpDatasetID, "dataset-id", "",
		"restrict the dump to the dataset with this id")
}

func runDump(cmd *cobra.Command, args []string) error {
	ctx := process.Ctx(cmd)

	log, err := process.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	_, store, err := openRepository(log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	pattern := ""
	if len(args) == 1 {
		pattern = args[0]
	}

	var entries []index.Entry
	if dumpDatasetID != "" {
		datasetID, err := uuid.Parse(dumpDatasetID)
		if err != nil {
			return err
		}
		entries, err = store.Index.ResolveDataset(ctx, datasetID, pattern, dumpVersion)
		if err != nil {
			return err
		}
	} else {
		entries, err = store.Index.Resolve(ctx, pattern, dumpVersion)
		if err != nil {
			return err
		}
	}

	var records []*metatree.MetadataRecord
	for _, entry := range entries {
		record, err := store.GetRecord(ctx, entry.Ref)
		if err != nil {
			return err
		}
		records = append(records, record)
	}
	return metatree.WriteRecords(os.Stdout, records...)
}
