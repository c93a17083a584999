// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dynamicdb/dynamicdb/internal/config"
	"github.com/dynamicdb/dynamicdb/internal/dynamic"
	"github.com/dynamicdb/dynamicdb/internal/logging"
	"github.com/dynamicdb/dynamicdb/internal/repo"
	"github.com/dynamicdb/dynamicdb/pkg/errutil"
)

const serviceName = "dynamicdb"

// app carries the state shared by every subcommand of one root command.
type app struct {
	deps       *Deps
	configFile string
}

// NewRootCmd creates the root command for the dynamicdb CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	a := &app{deps: deps.withDefaults()}

	cmd := &cobra.Command{
		Use:   "dynamicdb",
		Short: "DynamicDB - runtime-defined object classes on PostgreSQL",
		Long: `DynamicDB stores objects whose classes and properties are defined at
runtime. This tool manages the database schema and inspects stored classes
and objects.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file path")
	flags.String("database-url", "", "postgres:// connection string")
	flags.String("db-user", "", "database user (overrides the url)")
	flags.String("db-password", "", "database password (overrides the url)")
	flags.String("context", "", "migration context applied after the core schema")
	flags.String("log-format", config.DefaultLogFormat, "log format (json or text)")
	flags.String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	flags.Uint64("max-retries", config.DefaultMaxRetries, "retries of a write that lost a race")
	flags.String("retry-backoff", config.DefaultBackoff, "base of the retry backoff")

	cmd.AddCommand(a.newSchemaCmd())
	cmd.AddCommand(a.newClassesCmd())
	cmd.AddCommand(a.newObjectsCmd())
	cmd.AddCommand(a.newConfigCmd())
	cmd.AddCommand(a.newServeCmd())

	return cmd
}

// env is the loaded configuration and logger of one command run.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
}

func (a *app) load(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(a.configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	w := a.deps.LogWriter
	if w == nil {
		w = cmd.ErrOrStderr()
	}
	version := cmd.Root().Version
	if version == "" {
		version = "dev"
	}
	return &env{cfg: cfg, logger: logging.Setup(serviceName, version, cfg.Log.Format, level, w)}, nil
}

// session is an open pool with the object model wired over it.
type session struct {
	*env
	pool    Pool
	store   *dynamic.Store
	service *dynamic.Service
}

// withSession loads the configuration, connects and runs fn. Errors are logged
// with their code and context before being returned.
func (a *app) withSession(cmd *cobra.Command, metrics *repo.Metrics, fn func(ctx context.Context, s *session) error) error {
	e, err := a.load(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	pool, err := a.deps.PoolFactory(ctx, e.cfg)
	if err != nil {
		errutil.LogErrorContext(ctx, e.logger, "connect failed", err)
		return err
	}
	defer pool.Close()

	store := dynamic.NewStore(pool, e.logger, metrics)
	s := &session{
		env:     e,
		pool:    pool,
		store:   store,
		service: dynamic.NewService(store, e.logger, dynamic.WithRetry(e.cfg.Retry.MaxRetries, e.cfg.RetryBackoff())),
	}
	if err := fn(ctx, s); err != nil {
		errutil.LogErrorContext(ctx, e.logger, "command failed", err)
		return err
	}
	return nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return oops.Code("OUTPUT_FAILED").Wrap(err)
	}
	return enc.Close()
}
