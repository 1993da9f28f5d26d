// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the periogt command tree.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/periogt/periogt/cmd/periogt/cli"
	"github.com/periogt/periogt/lib/failure"
	"github.com/periogt/periogt/lib/version"
)

// Root returns the top-level periogt command.
func Root() *cli.Command {
	return newApp().root()
}

func (a *app) root() *cli.Command {
	var showVersion bool
	root := &cli.Command{
		Name: "periogt",
		Description: `periogt stages the pretrained property-prediction checkpoints a worker
needs, picks the execution device, and diagnoses the host environment.

Workers on one host share a checkpoint directory. The first worker to run
"setup" downloads and extracts the artifact archives under a lease marker;
the rest either wait for it or fail fast with bootstrap_in_progress.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("periogt", pflag.ContinueOnError)
			flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Stage checkpoints, waiting up to ten minutes for another worker",
				Command:     "periogt setup --wait 10m",
			},
			{
				Description: "Check whether this node can serve predictions",
				Command:     "periogt doctor",
			},
			{
				Description: "Verify every checkpoint on the selected device",
				Command:     "periogt load --parallel 4",
			},
		},
	}
	root.Run = func(ctx context.Context, args []string) error {
		if showVersion {
			fmt.Fprintln(a.stdout, "periogt", version.Info())
			return nil
		}
		root.PrintHelp(os.Stderr)
		if len(args) > 0 {
			return failure.Validation("unexpected argument %q", args[0])
		}
		return failure.Validation("periogt: subcommand required")
	}
	root.Subcommands = []*cli.Command{
		a.setupCommand(),
		a.statusCommand(),
		a.doctorCommand(),
		a.deviceCommand(),
		a.propertiesCommand(),
		a.loadCommand(),
		a.versionCommand(),
	}
	return root
}

func (a *app) versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(ctx context.Context, args []string) error {
			fmt.Fprintf(a.stdout, "periogt %s\n", version.Full())
			return nil
		},
	}
}
