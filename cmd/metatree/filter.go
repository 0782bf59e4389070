// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"metatree.io/metatree/pkg/filters"
	"metatree.io/metatree/pkg/index"
	"metatree.io/metatree/pkg/metatree"
	"metatree.io/metatree/pkg/process"
)

var (
	filterCmd = &cobra.Command{
		Use:   "filter <filter> [pattern]",
		Short: "derive new metadata from stored records",
		Long: "Resolves the path pattern against the version index, runs the " +
			"named filter over the matching metadata records and writes the " +
			"derived record to stdout. Use the --add flag to store it instead.",
		Args: cobra.RangeArgs(1, 2),
		RunE: runFilter,
	}

	filterVersion    string
	filterDatasetID  string
	filterParameters []string
	filterAdd        bool
)

func init() {
	rootCmd.AddCommand(filterCmd)
	agentFlags(filterCmd)
	filterCmd.Flags().StringVar(&filterVersion, "version", index.VersionLatest,
		"dataset version to filter, a version token, 'latest' or '*'")
	filterCmd.Flags().StringVar(&filterDatasetID, "dataset-id", "",
		"restrict the input records to the dataset with this id")
	filterCmd.Flags().StringArrayVarP(&filterParameters, "parameter", "p", nil,
		"filter parameter as key=value, repeatable")
	filterCmd.Flags().BoolVar(&filterAdd, "add", false,
		"store the derived record in the dataset's metadata store instead of printing it")
}

func runFilter(cmd *cobra.Command, args []string) error {
	ctx := process.Ctx(cmd)

	log, err := process.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	repo, store, err := openRepository(log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	parameters, err := parseParameters(filterParameters)
	if err != nil {
		return err
	}

	pattern := ""
	if len(args) == 2 {
		pattern = args[1]
	}

	var entries []index.Entry
	if filterDatasetID != "" {
		datasetID, err := uuid.Parse(filterDatasetID)
		if err != nil {
			return err
		}
		entries, err = store.Index.ResolveDataset(ctx, datasetID, pattern, filterVersion)
		if err != nil {
			return err
		}
	} else {
		entries, err = store.Index.Resolve(ctx, pattern, filterVersion)
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

	derived, err := filters.Run(ctx, log, filters.Request{
		FilterName:     args[0],
		Parameters:     parameters,
		AgentName:      agentName,
		AgentEmail:     agentEmail,
		DatasetID:      repo.ID(),
		DatasetVersion: repo.Version(),
		Records:        records,
	})
	if err != nil {
		return err
	}

	if filterAdd {
		ref, err := store.AddRecord(ctx, derived)
		if err != nil {
			return err
		}
		fmt.Printf("added %s\n", ref)
		return nil
	}

	data, err := derived.Canonical()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(data, '\n'))
	return err
}
