// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/periogt/periogt/cmd/periogt/cli"
	"github.com/periogt/periogt/lib/device"
	"github.com/periogt/periogt/lib/failure"
	"github.com/periogt/periogt/lib/runtimestate"
)

func (a *app) propertiesCommand() *cli.Command {
	var (
		globals    globalOptions
		outputJSON bool
	)
	return &cli.Command{
		Name:    "properties",
		Summary: "List the properties the staged checkpoints can predict",
		Description: `Read the property index and label statistics from a READY checkpoint
directory and list each property with its display label and units.
Nothing is downloaded; run "periogt setup" first.`,
		Usage: "periogt properties [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("properties", pflag.ContinueOnError)
			globals.register(flagSet)
			flagSet.BoolVar(&outputJSON, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return failure.Validation("properties takes no arguments, got %q", args[0])
			}
			env, err := a.open(&globals, "properties", true)
			if err != nil {
				return err
			}

			// Listing needs no accelerator, so the hardware is not probed.
			state, err := runtimestate.Load(ctx, runtimestate.Options{
				Storage: env.storage,
				Device:  device.Device{Kind: device.KindCPU},
				Logger:  env.logger,
			})
			if err != nil {
				return err
			}

			properties := state.Properties()
			if outputJSON {
				return cli.WriteJSON(a.stdout, properties)
			}
			tw := tabwriter.NewWriter(a.stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "PROPERTY\tLABEL\tUNITS")
			for _, property := range properties {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", property.ID, property.Label, property.Units)
			}
			return tw.Flush()
		},
	}
}
