// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/periogt/periogt/cmd/periogt/cli"
	"github.com/periogt/periogt/lib/bootstrap"
	"github.com/periogt/periogt/lib/catalog"
	"github.com/periogt/periogt/lib/failure"
)

type setupResult struct {
	StagingRoot string          `json:"staging_root"`
	IndexPath   string          `json:"index_path"`
	Outcome     string          `json:"outcome"`
	Layout      string          `json:"layout,omitempty"`
	Properties  []propertyEntry `json:"properties"`
}

type propertyEntry struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Units      string `json:"units"`
	Checkpoint string `json:"checkpoint,omitempty"`
}

func (a *app) setupCommand() *cli.Command {
	var (
		globals      globalOptions
		skipDownload bool
		wait         time.Duration
		outputJSON   bool
	)
	return &cli.Command{
		Name:    "setup",
		Summary: "Stage checkpoint artifacts and build the property index",
		Description: `Bring the checkpoint directory to READY: download each artifact archive,
verify its catalog digest, extract it, and write index.json. A directory
that is already READY only has its index read (or rebuilt if it is
missing or corrupt).

Only one worker runs the download at a time. Without --wait, a worker that
finds another worker's fresh lease exits with bootstrap_in_progress (exit
status 75). With --wait, it retries until the directory is READY, the lease
goes stale and is taken over, or the wait expires.`,
		Usage: "periogt setup [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("setup", pflag.ContinueOnError)
			globals.register(flagSet)
			flagSet.BoolVar(&skipDownload, "skip-download", false, "index the files already in the checkpoint directory instead of downloading")
			flagSet.DurationVar(&wait, "wait", 0, "how long to wait for another worker's bootstrap (0 fails fast)")
			flagSet.BoolVar(&outputJSON, "json", false, "output as JSON")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Stage into the configured checkpoint directory",
				Command:     "periogt setup",
			},
			{
				Description: "Index checkpoints copied in by hand on an air-gapped node",
				Command:     "periogt setup --skip-download",
			},
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return failure.Validation("setup takes no arguments, got %q", args[0])
			}
			env, err := a.open(&globals, "setup", true)
			if err != nil {
				return err
			}
			if err := env.config.EnsurePaths(); err != nil {
				return failure.Internal("creating results directory").Wrap(err)
			}

			result, err := ensureReady(ctx, env, skipDownload || env.config.Bootstrap.SkipDownload, wait)
			if err != nil {
				return err
			}

			summary := setupResult{
				StagingRoot: env.coordinator.Root(),
				IndexPath:   filepath.Join(env.storage.Root(), catalog.IndexFile),
				Outcome:     string(result.Outcome),
				Layout:      result.Layout,
			}
			for _, id := range result.Index.IDs() {
				entry := result.Index[id]
				summary.Properties = append(summary.Properties, propertyEntry{
					ID:         id,
					Label:      entry.Label,
					Units:      entry.Units,
					Checkpoint: entry.Checkpoint,
				})
			}

			if outputJSON {
				return cli.WriteJSON(a.stdout, summary)
			}
			fmt.Fprintf(a.stdout, "Staging root %s is ready (%s", summary.StagingRoot, summary.Outcome)
			if summary.Layout != "" {
				fmt.Fprintf(a.stdout, ", %s layout", summary.Layout)
			}
			fmt.Fprintf(a.stdout, ", %d properties)\n\n", len(summary.Properties))
			tw := tabwriter.NewWriter(a.stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "PROPERTY\tLABEL\tUNITS\tCHECKPOINT")
			for _, property := range summary.Properties {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", property.ID, property.Label, property.Units, property.Checkpoint)
			}
			return tw.Flush()
		},
	}
}

// ensureReady runs the bootstrap once, or keeps retrying for up to
// wait while another worker holds the lease.
func ensureReady(ctx context.Context, env *environment, skipDownload bool, wait time.Duration) (*bootstrap.Result, error) {
	if wait <= 0 {
		return env.coordinator.EnsureReady(ctx, skipDownload)
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	result, err := bootstrap.WaitReady(waitCtx, env.coordinator, skipDownload, bootstrap.WaitOptions{Logger: env.logger})
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, failure.BootstrapInProgress("checkpoint staging did not finish within %s", wait).
			With("staging_root", env.coordinator.Root()).
			With("waited_seconds", int(wait.Seconds()))
	}
	return result, err
}
