// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/periogt/periogt/cmd/periogt/cli"
	"github.com/periogt/periogt/lib/device"
	"github.com/periogt/periogt/lib/failure"
)

type deviceResult struct {
	Requested device.Mode   `json:"requested"`
	Device    string        `json:"device"`
	Selected  device.Device `json:"selected"`
	Warnings  []string      `json:"warnings"`
}

func (a *app) deviceCommand() *cli.Command {
	var (
		globals    globalOptions
		requested  string
		outputJSON bool
	)
	return &cli.Command{
		Name:    "device",
		Summary: "Resolve the execution device for this node",
		Description: `Probe the accelerator stack and apply the device selection rules to the
requested mode (auto, cpu, or accelerator).

An accelerator request that cannot be honored fails with
accelerator_unavailable, device_unsupported, or driver_incompatible. An
auto request falls back to CPU with a warning. A cpu request never
probes the hardware.`,
		Usage: "periogt device [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("device", pflag.ContinueOnError)
			globals.register(flagSet)
			flagSet.StringVar(&requested, "device", "", "requested mode; overrides the configured device")
			flagSet.BoolVar(&outputJSON, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return failure.Validation("device takes no arguments, got %q", args[0])
			}
			env, err := a.open(&globals, "device", true)
			if err != nil {
				return err
			}
			if requested == "" {
				requested = env.config.Device
			}

			verdict, err := env.resolver.Resolve(ctx, requested)
			if err != nil {
				return err
			}
			result := deviceResult{
				Requested: verdict.Requested,
				Device:    verdict.Device.String(),
				Selected:  verdict.Device,
				Warnings:  verdict.Warnings,
			}
			if result.Warnings == nil {
				result.Warnings = []string{}
			}

			if outputJSON {
				return cli.WriteJSON(a.stdout, result)
			}
			fmt.Fprintf(a.stdout, "Requested:  %s\n", result.Requested)
			fmt.Fprintf(a.stdout, "Device:     %s\n", result.Device)
			if gpu := result.Selected.GPU; gpu != nil {
				fmt.Fprintf(a.stdout, "GPU:        %s (compute capability %s, %s)\n",
					gpu.ModelName, gpu.ComputeCapability, gpu.PCISlot)
			}
			for _, warning := range result.Warnings {
				fmt.Fprintf(a.stdout, "Warning:    %s\n", warning)
			}
			return nil
		},
	}
}
