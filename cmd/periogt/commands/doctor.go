// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/periogt/periogt/cmd/periogt/cli"
	"github.com/periogt/periogt/lib/diagnostics"
	"github.com/periogt/periogt/lib/failure"
	"github.com/periogt/periogt/lib/tui"
)

func (a *app) doctorCommand() *cli.Command {
	var (
		globals    globalOptions
		outputJSON bool
	)
	return &cli.Command{
		Name:    "doctor",
		Summary: "Diagnose whether this node can serve predictions",
		Description: `Inspect the host, the accelerator stack, the configured directories,
and the checkpoint staging state, and print a PASS, WARN, or FAIL
verdict. Doctor never downloads, extracts, or deletes anything.

Exit status is 0 for PASS, 1 for WARN, and 2 for FAIL.`,
		Usage: "periogt doctor [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("doctor", pflag.ContinueOnError)
			globals.register(flagSet)
			flagSet.BoolVar(&outputJSON, "json", false, "output as JSON")
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Check the node before submitting a batch job",
				Command:     "periogt doctor",
			},
			{
				Description: "Gate a job script on the verdict",
				Command:     "periogt doctor --json > doctor.json || exit 1",
			},
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return failure.Validation("doctor takes no arguments, got %q", args[0])
			}
			env, err := a.open(&globals, "doctor", false)
			if err != nil {
				return err
			}

			reporter, err := diagnostics.NewReporter(diagnostics.Options{
				Paths: diagnostics.Paths{
					CheckpointDir: env.config.Paths.CheckpointDir,
					ResultsDir:    env.config.Paths.ResultsDir,
					SrcDir:        env.config.Paths.SrcDir,
				},
				RequestedDevice: env.config.Device,
				Storage:         env.storage,
				Catalog:         env.catalog,
				Coordinator:     env.coordinator,
				Prober:          env.prober,
				Logger:          env.logger,
			})
			if err != nil {
				return failure.Internal("building diagnostics reporter").Wrap(err)
			}
			report, err := reporter.Run(ctx)
			if err != nil {
				return err
			}

			if outputJSON {
				if err := cli.WriteJSON(a.stdout, report); err != nil {
					return err
				}
			} else {
				renderReport(a.stdout, report, tui.DefaultTheme)
			}
			if code := report.ExitCode(); code != 0 {
				return &cli.ExitError{Code: code}
			}
			return nil
		},
	}
}

// renderReport prints the human-readable doctor output: the verdict,
// the findings as a checklist, then the collected facts.
func renderReport(w io.Writer, report *diagnostics.Report, theme tui.Theme) {
	verdict := string(report.Verdict())
	fmt.Fprintf(w, "%s %s\n", theme.Header("periogt doctor:"), theme.Badge(verdict))

	if len(report.Fatals) > 0 || len(report.Warnings) > 0 {
		fmt.Fprintf(w, "\n%s\n", theme.Header("Findings"))
		for _, message := range report.Fatals {
			fmt.Fprintf(w, "  %s  %s\n", theme.Badge("FAIL"), message)
		}
		for _, message := range report.Warnings {
			fmt.Fprintf(w, "  %s  %s\n", theme.Badge("WARN"), message)
		}
	}

	fmt.Fprintf(w, "\n%s\n", theme.Header("Environment"))
	keys := report.InfoKeys()
	width := 0
	for _, key := range keys {
		width = max(width, len(key))
	}
	for _, key := range keys {
		fmt.Fprintf(w, "  %s  %s\n", theme.Faint(fmt.Sprintf("%-*s", width, key)), formatInfo(report.Info[key]))
	}
}

func formatInfo(value any) string {
	switch typed := value.(type) {
	case nil:
		return "-"
	case string:
		if typed == "" {
			return "-"
		}
		return typed
	case float64:
		return fmt.Sprintf("%.2f", typed)
	case []string:
		if len(typed) == 0 {
			return "none"
		}
		sorted := append([]string(nil), typed...)
		sort.Strings(sorted)
		return strings.Join(sorted, ", ")
	default:
		return fmt.Sprint(typed)
	}
}
