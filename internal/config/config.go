// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

// Package config loads dynamicdb configuration from a YAML file and command
// line flags.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/dynamicdb/dynamicdb/internal/logging"
	"github.com/dynamicdb/dynamicdb/internal/schema"
)

// Config is the complete dynamicdb configuration.
type Config struct {
	Database Database `koanf:"database" yaml:"database" json:"database" jsonschema:"description=Database connection"`
	Schema   Schema   `koanf:"schema" yaml:"schema" json:"schema,omitempty"`
	Log      Log      `koanf:"log" yaml:"log" json:"log,omitempty"`
	Retry    Retry    `koanf:"retry" yaml:"retry" json:"retry,omitempty"`
	Metrics  Metrics  `koanf:"metrics" yaml:"metrics" json:"metrics,omitempty"`
}

// Database holds connection parameters.
type Database struct {
	URL      string `koanf:"url" yaml:"url" json:"url" jsonschema:"minLength=1,description=postgres:// connection string"`
	Username string `koanf:"username" yaml:"username" json:"username,omitempty" jsonschema:"description=Overrides the user in url"`
	Password string `koanf:"password" yaml:"password" json:"password,omitempty" jsonschema:"description=Overrides the password in url"`
	MaxConns int32  `koanf:"max_conns" yaml:"max_conns" json:"max_conns,omitempty" jsonschema:"minimum=1"`
}

// Schema selects the migration context applied by schema create.
type Schema struct {
	Context string `koanf:"context" yaml:"context" json:"context,omitempty" jsonschema:"description=Named migration context applied after the core schema"`
}

// Log configures the process logger.
type Log struct {
	Format string `koanf:"format" yaml:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" yaml:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// Retry configures how often a lost write race is retried.
type Retry struct {
	MaxRetries uint64 `koanf:"max_retries" yaml:"max_retries" json:"max_retries,omitempty"`
	Backoff    string `koanf:"backoff" yaml:"backoff" json:"backoff,omitempty" jsonschema:"description=Base of the exponential backoff e.g. 10ms"`
}

// Metrics configures the metrics endpoint of the serve command.
type Metrics struct {
	Addr string `koanf:"addr" yaml:"addr" json:"addr,omitempty" jsonschema:"description=host:port of the metrics and health endpoint"`
}

// Defaults.
const (
	DefaultLogFormat   = "text"
	DefaultLogLevel    = "info"
	DefaultMaxRetries  = 3
	DefaultBackoff     = "10ms"
	DefaultMetricsAddr = "127.0.0.1:9100"
)

// Default returns a Config with every default applied and no database url.
func Default() *Config {
	return &Config{
		Log:     Log{Format: DefaultLogFormat, Level: DefaultLogLevel},
		Retry:   Retry{MaxRetries: DefaultMaxRetries, Backoff: DefaultBackoff},
		Metrics: Metrics{Addr: DefaultMetricsAddr},
	}
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"database-url":  "database.url",
	"db-user":       "database.username",
	"db-password":   "database.password",
	"context":       "schema.context",
	"log-format":    "log.format",
	"log-level":     "log.level",
	"metrics-addr":  "metrics.addr",
	"max-retries":   "retry.max_retries",
	"retry-backoff": "retry.backoff",
}

// Load reads path (when non-empty), layers the flags that map to configuration
// keys on top, and validates the result. Flags left at their default only apply
// when the file does not set the key.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		provider := file.Provider(path)
		data, err := provider.ReadBytes()
		if err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
		if err := ValidateYAML(data); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
		}
		if err := k.Load(provider, yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values the schema cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.URL) == "" {
		return oops.Code("CONFIG_INVALID").With("field", "database.url").
			Errorf("database.url is required (set it in the config file or pass --database-url)")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").With("field", "log.format").
			Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.Code("CONFIG_INVALID").With("field", "log.level").Wrap(err)
	}
	if c.Database.MaxConns < 0 {
		return oops.Code("CONFIG_INVALID").With("field", "database.max_conns").
			Errorf("database.max_conns must be positive, got %d", c.Database.MaxConns)
	}
	if d, err := time.ParseDuration(c.Retry.Backoff); err != nil || d <= 0 {
		return oops.Code("CONFIG_INVALID").With("field", "retry.backoff").
			Errorf("retry.backoff must be a positive duration, got %q", c.Retry.Backoff)
	}
	return nil
}

// SchemaConfig returns the connection parameters for the schema manager.
func (c *Config) SchemaConfig() schema.Config {
	return schema.Config{
		URL:      c.Database.URL,
		Username: c.Database.Username,
		Password: c.Database.Password,
		Context:  c.Schema.Context,
	}
}

// RetryBackoff returns the parsed retry backoff. Call it only on a validated Config.
func (c *Config) RetryBackoff() time.Duration {
	d, _ := time.ParseDuration(c.Retry.Backoff) //nolint:errcheck // checked by Validate
	return d
}
