// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/periogt/periogt/cmd/periogt/cli"
	"github.com/periogt/periogt/lib/bootstrap"
	"github.com/periogt/periogt/lib/failure"
	"github.com/periogt/periogt/lib/lease"
)

type statusResult struct {
	StagingRoot      string            `json:"staging_root"`
	State            bootstrap.State   `json:"state"`
	IndexPresent     bool              `json:"index_present"`
	StaleAfter       int               `json:"stale_after_seconds"`
	Lease            *leaseStatus      `json:"lease,omitempty"`
	MissingArtifacts map[string]string `json:"missing_artifacts"`
}

type leaseStatus struct {
	AgeSeconds int           `json:"age_seconds"`
	Stale      bool          `json:"stale"`
	ModTime    time.Time     `json:"mod_time"`
	Holder     *lease.Holder `json:"holder,omitempty"`
}

func (a *app) statusCommand() *cli.Command {
	var (
		globals    globalOptions
		outputJSON bool
	)
	return &cli.Command{
		Name:    "status",
		Summary: "Show the staging state of the checkpoint directory",
		Description: `Report whether the checkpoint directory is absent, being downloaded,
abandoned (stale lease), or READY, and which required artifacts are
missing. Status never modifies the directory.`,
		Usage: "periogt status [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			globals.register(flagSet)
			flagSet.BoolVar(&outputJSON, "json", false, "output as JSON")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return failure.Validation("status takes no arguments, got %q", args[0])
			}
			env, err := a.open(&globals, "status", true)
			if err != nil {
				return err
			}

			status, err := env.coordinator.Status(ctx)
			if err != nil {
				return failure.Internal("inspecting staging root").Wrap(err)
			}
			missing, err := bootstrap.MissingRequiredArtifacts(env.storage, env.catalog.Required)
			if err != nil {
				return failure.Internal("checking required artifacts").Wrap(err)
			}

			result := statusResult{
				StagingRoot:      env.coordinator.Root(),
				State:            status.State,
				IndexPresent:     status.IndexPresent,
				StaleAfter:       int(env.coordinator.StaleAfter().Seconds()),
				MissingArtifacts: missing,
			}
			if status.Lease.Present {
				result.Lease = &leaseStatus{
					AgeSeconds: int(status.Lease.Age.Seconds()),
					Stale:      status.Lease.Stale,
					ModTime:    status.Lease.ModTime,
					Holder:     status.Lease.Holder,
				}
			}

			if outputJSON {
				return cli.WriteJSON(a.stdout, result)
			}
			fmt.Fprintf(a.stdout, "Staging root:   %s\n", result.StagingRoot)
			fmt.Fprintf(a.stdout, "State:          %s\n", result.State)
			fmt.Fprintf(a.stdout, "Index present:  %t\n", result.IndexPresent)
			if result.Lease != nil {
				fmt.Fprintf(a.stdout, "Lease age:      %ds (stale after %ds)\n", result.Lease.AgeSeconds, result.StaleAfter)
				if holder := result.Lease.Holder; holder != nil {
					fmt.Fprintf(a.stdout, "Lease holder:   %s (pid %d on %s)\n", holder.ID, holder.PID, holder.Hostname)
				}
			}
			if len(missing) == 0 {
				fmt.Fprintln(a.stdout, "Missing:        none")
				return nil
			}
			keys := make([]string, 0, len(missing))
			for key := range missing {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			described := make([]string, 0, len(keys))
			for _, key := range keys {
				described = append(described, fmt.Sprintf("%s (%s)", key, missing[key]))
			}
			fmt.Fprintf(a.stdout, "Missing:        %s\n", strings.Join(described, ", "))
			return nil
		},
	}
}
