// Package config loads and validates the worker configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete worker configuration. Fields left out of the
// file keep their Default() values; flags may override them afterwards.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Bucket  string        `yaml:"bucket"`
	KeepRaw bool          `yaml:"keep_raw"`
	Spool   SpoolConfig   `yaml:"spool"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StoreConfig selects and configures the blob store backend.
type StoreConfig struct {
	Kind string `yaml:"kind"` // fs | sqlite | postgres | mssql
	DSN  string `yaml:"dsn"`
}

// SpoolConfig controls the event-spool watcher. An empty Dir disables
// spooling; the worker then processes a single event and exits.
type SpoolConfig struct {
	Dir      string   `yaml:"dir"`
	Interval Duration `yaml:"interval"`
	Workers  int      `yaml:"workers"`
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	Backend    string   `yaml:"backend"` // none | datadog
	FlushEvery Duration `yaml:"flush_every"`
	Tags       string   `yaml:"tags"` // comma-separated key:value pairs
}

// Duration wraps time.Duration so YAML accepts "5s"-style strings.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"5s\"")
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Store:  StoreConfig{Kind: "fs", DSN: "./data"},
		Bucket: "profiles",
		Spool: SpoolConfig{
			Interval: Duration(5 * time.Second),
			Workers:  2,
		},
		Metrics: MetricsConfig{
			Backend:    "none",
			FlushEvery: Duration(time.Minute),
		},
	}
}

// Load reads a YAML configuration file over the defaults. Decoding is
// strict: unknown keys are errors, so typos fail loudly instead of being
// silently ignored.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path names the offending field in the
// file's own notation, e.g. "store.kind".
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is error-severity. Callers treat
// those as fatal; warnings are advisory.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

var knownStoreKinds = map[string]bool{
	"fs":       true,
	"sqlite":   true,
	"postgres": true,
	"mssql":    true,
}

// Validate checks the configuration and returns every finding instead of
// stopping at the first, so one run surfaces all the problems in a file.
func (c *Config) Validate() []Issue {
	var issues []Issue
	errf := func(path, format string, args ...any) {
		issues = append(issues, Issue{SeverityError, path, fmt.Sprintf(format, args...)})
	}
	warnf := func(path, format string, args ...any) {
		issues = append(issues, Issue{SeverityWarning, path, fmt.Sprintf(format, args...)})
	}

	if c.Store.Kind == "" {
		errf("store.kind", "store kind is required")
	} else if !knownStoreKinds[c.Store.Kind] {
		warnf("store.kind", "unrecognized kind %q; opening the store will decide", c.Store.Kind)
	}
	if c.Store.DSN == "" {
		errf("store.dsn", "dsn is required")
	}

	switch {
	case c.Bucket == "":
		errf("bucket", "bucket is required")
	case strings.ContainsAny(c.Bucket, `/\`) || strings.Contains(c.Bucket, ".."):
		errf("bucket", "bucket %q must be a single path segment", c.Bucket)
	}

	if c.Spool.Workers < 1 {
		errf("spool.workers", "must be at least 1, got %d", c.Spool.Workers)
	}
	if c.Spool.Interval.Std() <= 0 {
		errf("spool.interval", "must be positive, got %s", c.Spool.Interval.Std())
	}

	switch c.Metrics.Backend {
	case "", "none", "datadog":
	default:
		errf("metrics.backend", "unknown backend %q (want none or datadog)", c.Metrics.Backend)
	}
	if c.Metrics.FlushEvery.Std() <= 0 {
		warnf("metrics.flush_every", "non-positive interval; the backend default applies")
	}
	for _, tag := range strings.Split(c.Metrics.Tags, ",") {
		tag = strings.TrimSpace(tag)
		if tag != "" && !strings.Contains(tag, ":") {
			warnf("metrics.tags", "tag %q is not key:value form", tag)
		}
	}

	return issues
}
