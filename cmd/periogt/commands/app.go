// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/periogt/periogt/cmd/periogt/cli"
	"github.com/periogt/periogt/lib/bootstrap"
	"github.com/periogt/periogt/lib/catalog"
	"github.com/periogt/periogt/lib/config"
	"github.com/periogt/periogt/lib/device"
	"github.com/periogt/periogt/lib/extract"
	"github.com/periogt/periogt/lib/failure"
	"github.com/periogt/periogt/lib/fetch"
	"github.com/periogt/periogt/lib/hwinfo"
	"github.com/periogt/periogt/lib/hwinfo/nvidia"
	"github.com/periogt/periogt/lib/stagefs"
)

// app carries the process-level dependencies shared by every command.
// Tests replace the output stream and the hardware probe.
type app struct {
	stdout    io.Writer
	newProber func() hwinfo.AcceleratorProber
	newLogger func(level slog.Level) *slog.Logger
}

func newApp() *app {
	return &app{
		stdout:    os.Stdout,
		newProber: func() hwinfo.AcceleratorProber { return nvidia.NewProber() },
		newLogger: cli.NewCommandLogger,
	}
}

// globalOptions are the flags every subcommand accepts.
type globalOptions struct {
	configPath string
	logLevel   string
}

func (g *globalOptions) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&g.configPath, "config", "", "configuration file (default $PERIOGT_CONFIG, else built-in defaults)")
	flagSet.StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn, error")
}

// environment is everything a command needs, built from configuration.
type environment struct {
	config      *config.Config
	catalog     *catalog.Catalog
	storage     *stagefs.Disk
	coordinator *bootstrap.Coordinator
	prober      hwinfo.AcceleratorProber
	resolver    *device.Resolver
	logger      *slog.Logger
}

// open loads configuration and wires the bootstrap and device layers.
// With validate false, configuration that parses but fails Validate is
// accepted, so doctor can still report on a misconfigured node.
func (a *app) open(globals *globalOptions, command string, validate bool) (*environment, error) {
	level, err := cli.ParseLevel(globals.logLevel)
	if err != nil {
		return nil, err
	}
	logger := a.newLogger(level).With("command", command)

	var cfg *config.Config
	if globals.configPath != "" {
		cfg, err = config.LoadFile(globals.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, failure.Validation("invalid configuration").Wrap(err)
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, failure.Validation("invalid configuration").Wrap(err)
		}
	}

	artifacts := catalog.Default()
	if cfg.Bootstrap.Catalog != "" {
		artifacts, err = catalog.LoadFile(cfg.Bootstrap.Catalog)
		if err != nil {
			return nil, failure.Validation("invalid artifact catalog").
				Wrap(err).
				With("path", cfg.Bootstrap.Catalog)
		}
	}

	storage, err := stagefs.NewDisk(cfg.Paths.CheckpointDir)
	if err != nil {
		return nil, failure.Validation("invalid checkpoint directory").Wrap(err)
	}

	fetchOptions := fetch.Options{Logger: logger}
	if cfg.ObjectStore.Enabled() {
		source, err := fetch.NewObjectStoreSource(fetch.ObjectStoreConfig{
			Endpoint:  cfg.ObjectStore.Endpoint,
			AccessKey: cfg.ObjectStore.AccessKey,
			SecretKey: cfg.ObjectStore.SecretKey,
			Region:    cfg.ObjectStore.Region,
			UseSSL:    cfg.ObjectStore.UseSSL,
		})
		if err != nil {
			return nil, failure.Validation("invalid object store configuration").Wrap(err)
		}
		fetchOptions.ObjectStore = source
	}

	coordinator, err := bootstrap.New(bootstrap.Options{
		Storage:    storage,
		Catalog:    artifacts,
		Fetcher:    fetch.NewVerifier(fetchOptions),
		Extractor:  extract.NewStager(logger),
		StaleAfter: cfg.StaleAfter(),
		Logger:     logger,
	})
	if err != nil {
		return nil, failure.Internal("building bootstrap coordinator").Wrap(err)
	}

	prober := a.newProber()
	resolver, err := device.NewResolver(device.Options{Prober: prober, Logger: logger})
	if err != nil {
		return nil, failure.Internal("building device resolver").Wrap(err)
	}

	return &environment{
		config:      cfg,
		catalog:     artifacts,
		storage:     storage,
		coordinator: coordinator,
		prober:      prober,
		resolver:    resolver,
		logger:      logger,
	}, nil
}
