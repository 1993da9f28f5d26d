// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for periogt.
//
// Configuration comes from an optional YAML file named by the
// PERIOGT_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]), layered over [Default]. Documented PERIOGT_*
// environment variables then override file values: containers and HPC
// batch jobs are configured through the environment, and the runtime
// has always honored these names.
//
// Variable expansion is performed on path fields after overrides are
// applied: ${HOME}, ${PERIOGT_BASE_DIR}, and ${VAR:-default} patterns
// are expanded, and relative paths are made absolute.
//
// Key exports:
//
//   - [Config] -- master struct with Paths, Device, Bootstrap, ObjectStore
//   - [Default] -- returns a Config with defaults under ~/periogt
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other periogt packages.
package config
