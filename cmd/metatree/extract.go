// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"metatree.io/metatree/pkg/extract"
	"metatree.io/metatree/pkg/extractors"
	"metatree.io/metatree/pkg/metatree"
	"metatree.io/metatree/pkg/process"
)

var (
	extractCmd = &cobra.Command{
		Use:   "extract <extractor> [path]",
		Short: "run a metadata extractor on the dataset or a file in it",
		Long: "Runs the named extractor on the dataset itself, or on the file at " +
			"the given dataset-relative path, and writes the resulting metadata " +
			"record to stdout. Use 'add' or the --add flag to store it.",
		Args: cobra.RangeArgs(1, 2),
		RunE: runExtract,
	}

	extractParameters []string
	extractAdd        bool
)

func init() {
	rootCmd.AddCommand(extractCmd)
	agentFlags(extractCmd)
	extractCmd.Flags().StringArrayVarP(&extractParameters, "parameter", "p", nil,
		"extractor parameter as key=value, repeatable")
	extractCmd.Flags().BoolVar(&extractAdd, "add", false,
		"store the record in the dataset's metadata store instead of printing it")
}

func runExtract(cmd *cobra.Command, args []string) error {
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

	parameters, err := parseParameters(extractParameters)
	if err != nil {
		return err
	}

	subject := extractors.Subject{
		Type:           metatree.TypeDataset,
		DatasetID:      repo.ID(),
		DatasetVersion: repo.Version(),
		Path:           "",
		AbsPath:        repo.Root(),
	}
	if len(args) == 2 && args[1] != "" && args[1] != "." {
		rel := filepath.ToSlash(filepath.Clean(args[1]))
		subject.Type = metatree.TypeFile
		subject.Path = rel
		subject.AbsPath = filepath.Join(repo.Root(), filepath.FromSlash(rel))
	}

	record, err := extract.Run(ctx, log, extract.Request{
		ExtractorName: args[0],
		Parameters:    parameters,
		AgentName:     agentName,
		AgentEmail:    agentEmail,
		Subject:       subject,
	})
	if err != nil {
		return err
	}

	if extractAdd {
		ref, err := store.AddRecord(ctx, record)
		if err != nil {
			return err
		}
		fmt.Printf("added %s\n", ref)
		return nil
	}

	data, err := record.Canonical()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(data, '\n'))
	return err
}
