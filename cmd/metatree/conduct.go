// Copyright (C) 2025 Metatree Authors.
// See LICENSE for copying information.

package main

import (
	"io/ioutil"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"

	"metatree.io/metatree/pkg/pipeline"
	"metatree.io/metatree/pkg/process"
)

var (
	conductCmd = &cobra.Command{
		Use:   "conduct <pipeline.json>",
		Short: "execute a metadata pipeline over the dataset",
		Long: "Loads a pipeline definition, a provider element feeding a chain " +
			"of processor elements, and executes it over the dataset with a " +
			"bounded worker pool. Individual item failures are reported in the " +
			"summary and do not abort the run.",
		Args: cobra.ExactArgs(1),
		RunE: runConduct,
	}

	conductJobs int
)

func init() {
	rootCmd.AddCommand(conductCmd)
	agentFlags(conductCmd)
	conductCmd.Flags().IntVarP(&conductJobs, "jobs", "j", pipeline.DefaultJobs,
		"maximum number of items processed concurrently")
}

func runConduct(cmd *cobra.Command, args []string) error {
	ctx := process.Ctx(cmd)

	log, err := process.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	data, err := ioutil.ReadFile(args[0])
	if err != nil {
		return err
	}
	spec, err := pipeline.ParseSpec(data)
	if err != nil {
		return err
	}

	repo, store, err := openRepository(log)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	env := &pipeline.Environment{
		Log:        log,
		Repository: repo,
		Store:      store,
		AgentName:  agentName,
		AgentEmail: agentEmail,
	}
	run, err := env.Build(spec, conductJobs)
	if err != nil {
		return err
	}

	summary, err := run.Execute(ctx)
	if summary != nil {
		printSummary(summary)
	}
	if err != nil {
		return err
	}
	if summary.AllErrored() {
		return errs.New("all %d items failed", summary.Items())
	}
	return nil
}
