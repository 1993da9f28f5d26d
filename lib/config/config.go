// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultStaleSeconds is the age after which a bootstrap lease is
// presumed abandoned: comfortably longer than one artifact download on
// a slow link, short enough that a killed job does not block the next
// batch submission for long.
const DefaultStaleSeconds = 330

// Config is the master configuration for periogt.
type Config struct {
	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Device is the requested execution mode: auto, cpu, or
	// accelerator ("cuda" and "gpu" are accepted spellings).
	Device string `yaml:"device"`

	// Bootstrap configures checkpoint staging.
	Bootstrap BootstrapConfig `yaml:"bootstrap"`

	// ObjectStore configures the S3-compatible mirror used for
	// s3://bucket/key artifact sources.
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// BaseDir is the parent of the default checkpoint and results
	// directories.
	BaseDir string `yaml:"base_dir"`

	// CheckpointDir is the staging root shared by all workers.
	CheckpointDir string `yaml:"checkpoint_dir"`

	// ResultsDir is where batch prediction output is written.
	ResultsDir string `yaml:"results_dir"`

	// SrcDir is the model source tree the inference runtime imports.
	SrcDir string `yaml:"src_dir"`
}

// BootstrapConfig configures checkpoint staging.
type BootstrapConfig struct {
	// StaleSeconds is the lease staleness threshold.
	StaleSeconds int `yaml:"stale_seconds"`

	// SkipDownload builds the index from whatever is already on disk
	// instead of fetching artifacts.
	SkipDownload bool `yaml:"skip_download"`

	// Catalog optionally names a JSONC file that replaces the built-in
	// artifact catalog (mirrors, air-gapped installs).
	Catalog string `yaml:"catalog"`
}

// ObjectStoreConfig configures the S3-compatible artifact mirror.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether an object store endpoint is configured.
func (o ObjectStoreConfig) Enabled() bool { return o.Endpoint != "" }

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Paths: PathsConfig{
			BaseDir:       filepath.Join(homeDir, "periogt"),
			CheckpointDir: "${PERIOGT_BASE_DIR}/checkpoints",
			ResultsDir:    "${PERIOGT_BASE_DIR}/results",
			SrcDir:        "${PERIOGT_BASE_DIR}/src",
		},
		Device: "auto",
		Bootstrap: BootstrapConfig{
			StaleSeconds: DefaultStaleSeconds,
		},
		ObjectStore: ObjectStoreConfig{
			UseSSL: true,
		},
	}
}

// Load loads configuration from the file named by PERIOGT_CONFIG, or
// from defaults alone when it is unset. Environment overrides apply in
// both cases.
func Load() (*Config, error) {
	if configPath := os.Getenv("PERIOGT_CONFIG"); configPath != "" {
		return LoadFile(configPath)
	}
	return finish(Default())
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := cfg.applyEnvironment(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.expandVariables(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironment applies PERIOGT_* overrides. lookup is
// os.LookupEnv in production.
func (c *Config) applyEnvironment(lookup func(string) (string, bool)) error {
	textual := []struct {
		name   string
		target *string
	}{
		{"PERIOGT_BASE_DIR", &c.Paths.BaseDir},
		{"PERIOGT_CHECKPOINT_DIR", &c.Paths.CheckpointDir},
		{"PERIOGT_RESULTS_DIR", &c.Paths.ResultsDir},
		{"PERIOGT_SRC_DIR", &c.Paths.SrcDir},
		{"PERIOGT_DEVICE", &c.Device},
		{"PERIOGT_CATALOG", &c.Bootstrap.Catalog},
		{"PERIOGT_S3_ENDPOINT", &c.ObjectStore.Endpoint},
		{"PERIOGT_S3_ACCESS_KEY", &c.ObjectStore.AccessKey},
		{"PERIOGT_S3_SECRET_KEY", &c.ObjectStore.SecretKey},
		{"PERIOGT_S3_REGION", &c.ObjectStore.Region},
	}
	for _, override := range textual {
		if value, ok := lookup(override.name); ok && value != "" {
			*override.target = value
		}
	}

	var errs []error
	if value, ok := lookup("PERIOGT_LEASE_STALE_SECONDS"); ok && value != "" {
		seconds, err := strconv.Atoi(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("PERIOGT_LEASE_STALE_SECONDS: %w", err))
		} else {
			c.Bootstrap.StaleSeconds = seconds
		}
	}
	booleans := []struct {
		name   string
		target *bool
	}{
		{"PERIOGT_SKIP_DOWNLOAD", &c.Bootstrap.SkipDownload},
		{"PERIOGT_S3_USE_SSL", &c.ObjectStore.UseSSL},
	}
	for _, override := range booleans {
		value, ok := lookup(override.name)
		if !ok || value == "" {
			continue
		}
		parsed, err := parseBool(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", override.name, err))
			continue
		}
		*override.target = parsed
	}
	return errors.Join(errs...)
}

// parseBool accepts the spellings shell scripts use for flags.
func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", value)
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths
// and makes them absolute.
func (c *Config) expandVariables() error {
	vars := map[string]string{
		"PERIOGT_BASE_DIR": c.Paths.BaseDir,
		"HOME":             os.Getenv("HOME"),
	}

	c.Paths.BaseDir = expandVars(c.Paths.BaseDir, vars)
	vars["PERIOGT_BASE_DIR"] = c.Paths.BaseDir // Update for dependent paths.

	c.Paths.CheckpointDir = expandVars(c.Paths.CheckpointDir, vars)
	c.Paths.ResultsDir = expandVars(c.Paths.ResultsDir, vars)
	c.Paths.SrcDir = expandVars(c.Paths.SrcDir, vars)
	c.Bootstrap.Catalog = expandVars(c.Bootstrap.Catalog, vars)

	for _, path := range []*string{
		&c.Paths.BaseDir,
		&c.Paths.CheckpointDir,
		&c.Paths.ResultsDir,
		&c.Paths.SrcDir,
		&c.Bootstrap.Catalog,
	} {
		if *path == "" || filepath.IsAbs(*path) {
			continue
		}
		absolute, err := filepath.Abs(*path)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", *path, err)
		}
		*path = absolute
	}
	return nil
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var deviceModes = []string{"auto", "cpu", "accelerator", "cuda", "gpu"}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.BaseDir == "" {
		errs = append(errs, fmt.Errorf("paths.base_dir is required"))
	}
	if c.Paths.CheckpointDir == "" {
		errs = append(errs, fmt.Errorf("paths.checkpoint_dir is required"))
	}

	if !contains(deviceModes, strings.ToLower(strings.TrimSpace(c.Device))) {
		errs = append(errs, fmt.Errorf("device must be one of: %v (got %q)", deviceModes[:3], c.Device))
	}

	if c.Bootstrap.StaleSeconds <= 0 {
		errs = append(errs, fmt.Errorf("bootstrap.stale_seconds must be positive (got %d)", c.Bootstrap.StaleSeconds))
	}

	store := c.ObjectStore
	if (store.AccessKey == "") != (store.SecretKey == "") {
		errs = append(errs, fmt.Errorf("object_store.access_key and object_store.secret_key must be set together"))
	}
	if !store.Enabled() && store.AccessKey != "" {
		errs = append(errs, fmt.Errorf("object_store credentials set without object_store.endpoint"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// StaleAfter returns the lease staleness threshold.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Bootstrap.StaleSeconds) * time.Second
}

// EnsurePaths creates the results directory. The checkpoint directory
// is created by the bootstrap coordinator under its lease.
func (c *Config) EnsurePaths() error {
	if c.Paths.ResultsDir == "" {
		return nil
	}
	if err := os.MkdirAll(c.Paths.ResultsDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", c.Paths.ResultsDir, err)
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
