// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/periogt/periogt/cmd/periogt/cli"
	"github.com/periogt/periogt/lib/failure"
	"github.com/periogt/periogt/lib/runtimestate"
)

type loadResult struct {
	Device      string                     `json:"device"`
	Warnings    []string                   `json:"warnings"`
	Checkpoints []*runtimestate.Checkpoint `json:"checkpoints"`
}

func (a *app) loadCommand() *cli.Command {
	var (
		globals      globalOptions
		requested    string
		skipDownload bool
		wait         time.Duration
		parallel     int
		outputJSON   bool
	)
	return &cli.Command{
		Name:    "load",
		Summary: "Run the worker startup sequence and verify checkpoints",
		Description: `Do what a prediction worker does before it serves requests: bring the
checkpoint directory to READY, resolve the execution device, load the
runtime state, and load each requested property's checkpoint (all of
them when none are named).

Any failure exits non-zero with a structured error on stderr, so a job
script can run "periogt load" and only start serving when it succeeds.`,
		Usage: "periogt load [flags] [property...]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("load", pflag.ContinueOnError)
			globals.register(flagSet)
			flagSet.StringVar(&requested, "device", "", "requested mode; overrides the configured device")
			flagSet.BoolVar(&skipDownload, "skip-download", false, "index the files already in the checkpoint directory instead of downloading")
			flagSet.DurationVar(&wait, "wait", 0, "how long to wait for another worker's bootstrap (0 fails fast)")
			flagSet.IntVar(&parallel, "parallel", 2, "checkpoints to load concurrently")
			flagSet.BoolVar(&outputJSON, "json", false, "output as JSON")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Load every checkpoint on whatever device is available",
				Command:     "periogt load",
			},
			{
				Description: "Require an accelerator and load two properties",
				Command:     "periogt load --device accelerator tg density",
			},
		},
		Run: func(ctx context.Context, properties []string) error {
			if parallel < 1 {
				return failure.Validation("--parallel must be at least 1, got %d", parallel)
			}
			env, err := a.open(&globals, "load", true)
			if err != nil {
				return err
			}
			if requested == "" {
				requested = env.config.Device
			}

			if _, err := ensureReady(ctx, env, skipDownload || env.config.Bootstrap.SkipDownload, wait); err != nil {
				return err
			}
			verdict, err := env.resolver.Resolve(ctx, requested)
			if err != nil {
				return err
			}
			state, err := runtimestate.Load(ctx, runtimestate.Options{
				Storage: env.storage,
				Device:  verdict.Device,
				Logger:  env.logger,
			})
			if err != nil {
				return err
			}

			if len(properties) == 0 {
				properties = state.Index().IDs()
			}
			if err := state.Warm(ctx, properties, parallel); err != nil {
				return err
			}

			result := loadResult{Device: verdict.Device.String(), Warnings: verdict.Warnings}
			if result.Warnings == nil {
				result.Warnings = []string{}
			}
			for _, id := range properties {
				loaded, err := state.Checkpoint(ctx, id)
				if err != nil {
					return err
				}
				checkpoint, ok := loaded.(*runtimestate.Checkpoint)
				if !ok {
					return failure.Internal("unexpected checkpoint type %T for %s", loaded, id)
				}
				result.Checkpoints = append(result.Checkpoints, checkpoint)
			}
			env.logger.Info("checkpoints loaded",
				"device", result.Device,
				"property_count", len(result.Checkpoints),
			)

			if outputJSON {
				return cli.WriteJSON(a.stdout, result)
			}
			fmt.Fprintf(a.stdout, "Loaded %d checkpoints on %s\n\n", len(result.Checkpoints), result.Device)
			tw := tabwriter.NewWriter(a.stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "PROPERTY\tSIZE\tDIGEST")
			for _, checkpoint := range result.Checkpoints {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", checkpoint.PropertyID, checkpoint.Size, checkpoint.Digest)
			}
			return tw.Flush()
		},
	}
}
