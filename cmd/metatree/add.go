// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"metatree.io/metatree/pkg/metatree"
	"metatree.io/metatree/pkg/process"
)

var addCmd = &cobra.Command{
	Use:   "add [file]",
	Short: "store metadata records in the dataset's metadata store",
	Long: "Reads metadata records, one JSON object per line, from the given " +
		"file or from stdin, validates them and stores them. Records for the " +
		"same path replace each other within a dataset version.",
	Args: cobra.MaximumNArgs(1),
	RunE: runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
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

	var input io.Reader = os.Stdin
	if len(args) == 1 && args[0] != "-" {
		file, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = file.Close() }()
		input = file
	}

	records, err := metatree.ReadRecords(input)
	if err != nil {
		return err
	}

	added := 0
	for _, record := range records {
		if _, err := store.AddRecord(ctx, record); err != nil {
			return err
		}
		added++
	}

	fmt.Printf("added %d records\n", added)
	return nil
}
