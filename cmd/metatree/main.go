// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"metatree.io/metatree/pkg/dataset"
	"metatree.io/metatree/pkg/metastore"
	"metatree.io/metatree/pkg/pipeline"
	"metatree.io/metatree/pkg/process"
)

var (
	rootCmd = &cobra.Command{
		Use:   "metatree",
		Short: "Metadata management for versioned dataset trees",
	}

	// datasetDir is the root of the dataset tree commands operate on.
	datasetDir string

	agentName  string
	agentEmail string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&datasetDir, "dataset", "d", ".",
		"root directory of the dataset to operate on")
}

func main() {
	process.Execute(rootCmd)
}

func agentFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&agentName, "agent-name", "", "name recorded as the extraction agent")
	cmd.Flags().StringVar(&agentEmail, "agent-email", "", "email recorded as the extraction agent")
}

// openRepository opens the dataset at the --dataset flag together with
// its metadata store, creating the store on first use.
func openRepository(log *zap.Logger) (*dataset.Plain, *metastore.Store, error) {
	repo, err := dataset.OpenPlain(datasetDir)
	if err != nil {
		return nil, nil, err
	}
	store, err := metastore.OpenRepository(log, repo.Root())
	if err != nil {
		return nil, nil, err
	}
	return repo, store, nil
}

// parseParameters turns repeated key=value flags into a parameter map.
func parseParameters(pairs []string) (map[string]string, error) {
	parameters := map[string]string{}
	for _, pair := range pairs {
		idx := strings.Index(pair, "=")
		if idx <= 0 {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		parameters[pair[:idx]] = pair[idx+1:]
	}
	return parameters, nil
}

func printSummary(summary *pipeline.Summary) {
	fmt.Printf("state: %s\n", summary.State)
	fmt.Printf("items: %d (ok %d, notneeded %d, impossible %d, error %d)\n",
		summary.Items(),
		summary.Counts[pipeline.OutcomeOK],
		summary.Counts[pipeline.OutcomeNotNeeded],
		summary.Counts[pipeline.OutcomeImpossible],
		summary.Counts[pipeline.OutcomeError])
	for _, result := range summary.Results {
		if result.Outcome == pipeline.OutcomeError {
			fmt.Printf("error: %s: %s\n", result.Path, result.Error)
		}
	}
}
