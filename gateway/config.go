// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ptagate/ptagate/lib/pta"
)

// Config is the top-level gateway configuration.
type Config struct {
	// Listen is the TCP address to serve on. Defaults to ":8080".
	Listen string `yaml:"listen"`

	// LogLevel selects the slog level: debug, info, warn, or error.
	// Defaults to info.
	LogLevel string `yaml:"log_level"`

	// Keys locates the key bundle.
	Keys KeysConfig `yaml:"keys"`

	// Protect lists the path prefixes that require a valid token.
	// Requests outside every prefix pass through unverified.
	Protect []ProtectConfig `yaml:"protect"`

	// Origin selects where verified (and unprotected) requests go.
	Origin OriginConfig `yaml:"origin"`

	// Journal configures the decision journal. An empty path disables
	// journaling.
	Journal JournalConfig `yaml:"journal"`
}

// KeysConfig locates the key bundle and, for sealed bundles, the age
// identity that opens it.
type KeysConfig struct {
	// File is the key bundle path: a plaintext YAML bundle or an
	// age-sealed one (detected by the file's magic header).
	File string `yaml:"file"`

	// Identity is the age identity file used to unseal File. Required
	// when File is sealed, ignored otherwise. "-" reads the identity
	// from stdin.
	Identity string `yaml:"identity"`
}

// ProtectConfig declares one protected path prefix.
type ProtectConfig struct {
	// Prefix is the path prefix, beginning with "/". The longest
	// matching prefix wins when prefixes nest.
	Prefix string `yaml:"prefix"`

	// Sources lists where tokens are read from: "query", "cookie", or
	// both. With both, the query parameter is authoritative when
	// present and cookies are the fallback.
	Sources []string `yaml:"sources"`
}

// OriginConfig selects the origin. Exactly one of Root or Upstream
// must be set.
type OriginConfig struct {
	// Root serves static content from this directory.
	Root string `yaml:"root"`

	// Upstream reverse-proxies to this http(s) URL.
	Upstream string `yaml:"upstream"`
}

// JournalConfig configures the decision journal.
type JournalConfig struct {
	// Path is the SQLite database path. Empty disables the journal.
	Path string `yaml:"path"`

	// Retention bounds how long decisions are kept, in Go duration
	// syntax (e.g. "720h"). Defaults to 720h when the journal is
	// enabled.
	Retention string `yaml:"retention"`
}

// Policy is one compiled protection rule.
type Policy struct {
	Prefix  string
	Sources pta.Sources
}

const defaultJournalRetention = 720 * time.Hour

// LoadConfig loads a gateway configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply defaults
	if config.Listen == "" {
		config.Listen = ":8080"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.Journal.Path != "" && config.Journal.Retention == "" {
		config.Journal.Retention = defaultJournalRetention.String()
	}

	return &config, nil
}

// Validate checks that the configuration is complete and internally
// consistent.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q (supported: debug, info, warn, error)", c.LogLevel)
	}

	if c.Keys.File == "" {
		return fmt.Errorf("keys.file is required")
	}

	if _, err := compilePolicies(c.Protect); err != nil {
		return err
	}

	if c.Origin.Root == "" && c.Origin.Upstream == "" {
		return fmt.Errorf("origin: one of root or upstream is required")
	}
	if c.Origin.Root != "" && c.Origin.Upstream != "" {
		return fmt.Errorf("origin: root and upstream are mutually exclusive")
	}
	if c.Origin.Upstream != "" {
		upstream, err := url.Parse(c.Origin.Upstream)
		if err != nil {
			return fmt.Errorf("origin.upstream: invalid URL: %w", err)
		}
		if upstream.Scheme != "http" && upstream.Scheme != "https" {
			return fmt.Errorf("origin.upstream: scheme must be http or https, got %q", upstream.Scheme)
		}
		if upstream.Host == "" {
			return fmt.Errorf("origin.upstream: URL has no host")
		}
	}

	if c.Journal.Path != "" {
		retention, err := time.ParseDuration(c.Journal.Retention)
		if err != nil {
			return fmt.Errorf("journal.retention: invalid duration %q: %w", c.Journal.Retention, err)
		}
		if retention <= 0 {
			return fmt.Errorf("journal.retention: must be positive, got %q", c.Journal.Retention)
		}
	}

	return nil
}

// JournalRetention returns the parsed retention window, or the
// default when the configured value does not parse. Validate rejects
// unparseable values, so the fallback only covers unvalidated configs.
func (c *Config) JournalRetention() time.Duration {
	retention, err := time.ParseDuration(c.Journal.Retention)
	if err != nil || retention <= 0 {
		return defaultJournalRetention
	}
	return retention
}

// Level returns the slog level for the configured log_level. Unknown
// values map to info; Validate rejects them up front.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// compilePolicies turns the protect entries into matchable policies,
// rejecting malformed prefixes and source lists.
func compilePolicies(entries []ProtectConfig) ([]Policy, error) {
	policies := make([]Policy, 0, len(entries))
	seen := make(map[string]bool, len(entries))

	for i, entry := range entries {
		if entry.Prefix == "" {
			return nil, fmt.Errorf("protect[%d]: prefix is required", i)
		}
		if !strings.HasPrefix(entry.Prefix, "/") {
			return nil, fmt.Errorf("protect[%d]: prefix %q must begin with \"/\"", i, entry.Prefix)
		}
		if seen[entry.Prefix] {
			return nil, fmt.Errorf("protect[%d]: duplicate prefix %q", i, entry.Prefix)
		}
		seen[entry.Prefix] = true

		if len(entry.Sources) == 0 {
			return nil, fmt.Errorf("protect[%d]: sources is required (query, cookie, or both)", i)
		}
		var sources pta.Sources
		for _, source := range entry.Sources {
			switch source {
			case "query":
				sources |= pta.SourceQuery
			case "cookie":
				sources |= pta.SourceCookie
			default:
				return nil, fmt.Errorf("protect[%d]: unknown source %q (supported: query, cookie)", i, source)
			}
		}

		policies = append(policies, Policy{Prefix: entry.Prefix, Sources: sources})
	}

	return policies, nil
}
