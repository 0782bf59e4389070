// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package main

import (
	"github.com/spf13/cobra"

	"metatree.io/metatree/pkg/export"
	"metatree.io/metatree/pkg/process"
)

var (
	exportCmd = &cobra.Command{
		Use:   "export <destination>",
		Short: "write the metadata store as a plain directory tree",
		Long: "Writes all stored metadata to the destination directory in a " +
			"self-describing, content-addressed layout that is suitable for " +
			"archiving or transfer and can be read back with 'import'.",
		Args: cobra.ExactArgs(1),
		RunE: runExport,
	}

	importCmd = &cobra.Command{
		Use:   "import <source>",
		Short: "read an exported directory tree into the metadata store",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
)

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
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

	return export.Export(ctx, log, store, args[0])
}

func runImport(cmd *cobra.Command, args []string) error {
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

	return export.Import(ctx, log, store, args[0])
}
