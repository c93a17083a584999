// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynamicdb/dynamicdb/pkg/errutil"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dynamicdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("database-url", "", "")
	fs.String("context", "", "")
	fs.String("log-format", DefaultLogFormat, "")
	fs.String("log-level", DefaultLogLevel, "")
	fs.Uint64("max-retries", DefaultMaxRetries, "")
	fs.String("match", "*", "")
	return fs
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://db:5432/dyn
  username: app
  password: secret
  max_conns: 4
schema:
  context: sample
log:
  format: json
  level: debug
retry:
  max_retries: 5
  backoff: 25ms
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://db:5432/dyn", cfg.Database.URL)
	assert.Equal(t, int32(4), cfg.Database.MaxConns)
	assert.Equal(t, "sample", cfg.Schema.Context)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, uint64(5), cfg.Retry.MaxRetries)
	assert.Equal(t, 25*time.Millisecond, cfg.RetryBackoff())
	assert.Equal(t, DefaultMetricsAddr, cfg.Metrics.Addr, "unset keys keep their default")

	sc := cfg.SchemaConfig()
	assert.Equal(t, "app", sc.Username)
	assert.Equal(t, "secret", sc.Password)
	assert.Equal(t, "sample", sc.Context)
}

func TestLoad_FlagsOnly(t *testing.T) {
	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--database-url", "postgres://db/dyn", "--log-level", "warn"}))

	cfg, err := Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, "postgres://db/dyn", cfg.Database.URL)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Log.Format)
	assert.Equal(t, uint64(DefaultMaxRetries), cfg.Retry.MaxRetries)
}

func TestLoad_ChangedFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://file/dyn
log:
  format: json
`)
	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--database-url", "postgres://flag/dyn"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag/dyn", cfg.Database.URL)
	assert.Equal(t, "json", cfg.Log.Format, "unchanged flag defaults do not override the file")
}

func TestLoad_MissingURL(t *testing.T) {
	_, err := Load("", testFlags())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	errutil.AssertErrorContext(t, err, "field", "database.url")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_READ_FAILED")
}

func TestLoad_SchemaViolation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown key", content: "database:\n  url: postgres://db/dyn\n  host: db\n"},
		{name: "bad log format", content: "database:\n  url: postgres://db/dyn\nlog:\n  format: xml\n"},
		{name: "missing database", content: "log:\n  level: info\n"},
		{name: "wrong type", content: "database:\n  url: postgres://db/dyn\n  max_conns: many\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content), nil)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "log format", mutate: func(c *Config) { c.Log.Format = "xml" }, field: "log.format"},
		{name: "log level", mutate: func(c *Config) { c.Log.Level = "loud" }, field: "log.level"},
		{name: "max conns", mutate: func(c *Config) { c.Database.MaxConns = -1 }, field: "database.max_conns"},
		{name: "backoff", mutate: func(c *Config) { c.Retry.Backoff = "soon" }, field: "retry.backoff"},
		{name: "zero backoff", mutate: func(c *Config) { c.Retry.Backoff = "0s" }, field: "retry.backoff"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Database.URL = "postgres://db/dyn"
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			errutil.AssertErrorContext(t, err, "field", tt.field)
		})
	}
}

func TestGenerateSchema(t *testing.T) {
	data, err := GenerateSchema()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, SchemaID, doc["$id"])
	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "database")
	assert.Contains(t, props, "log")
}

func TestValidateYAML_Empty(t *testing.T) {
	require.Error(t, ValidateYAML(nil))
	require.Error(t, ValidateYAML([]byte("database: [unclosed")))
}
