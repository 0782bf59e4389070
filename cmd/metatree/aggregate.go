// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"

	"metatree.io/metatree/pkg/aggregate"
	"metatree.io/metatree/pkg/process"
)

var (
	aggregateCmd = &cobra.Command{
		Use:   "aggregate",
		Short: "copy subdataset metadata into the root dataset's store",
		Long: "Copies all metadata records of the dataset's subdatasets into " +
			"the root store, annotating each record with the subdataset's path " +
			"and whether the recorded subdataset version could be confirmed as " +
			"the one bound by the root tree.",
		RunE: runAggregate,
	}

	aggregateMaxDepth int
)

func init() {
	rootCmd.AddCommand(aggregateCmd)
	aggregateCmd.Flags().IntVar(&aggregateMaxDepth, "max-depth", 0,
		"limit recursion into nested subdatasets, 0 means unlimited")
}

func runAggregate(cmd *cobra.Command, args []string) error {
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

	report, err := aggregate.New(log, repo, store, aggregate.Config{
		MaxDepth: aggregateMaxDepth,
	}).Run(ctx)
	if err != nil {
		return err
	}

	for _, sub := range report.Subdatasets {
		if sub.Error != "" {
			fmt.Printf("failed: %s: %s\n", sub.Path, sub.Error)
			continue
		}
		fmt.Printf("aggregated: %s (%d records, %d unverified)\n",
			sub.Path, sub.Copied, sub.Unverified)
		for _, entryErr := range sub.EntryErrors {
			fmt.Printf("  entry error: %s\n", entryErr)
		}
	}
	fmt.Printf("copied %d records from %d subdatasets\n",
		report.Copied(), len(report.Subdatasets))

	failed := 0
	for _, sub := range report.Subdatasets {
		if sub.Error != "" {
			failed++
		}
	}
	if failed > 0 && failed == len(report.Subdatasets) {
		return errs.New("aggregation failed for all %d subdatasets", failed)
	}
	return nil
}
