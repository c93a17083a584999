// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/dynamicdb/dynamicdb/internal/config"
	"github.com/dynamicdb/dynamicdb/internal/dynamic"
	"github.com/dynamicdb/dynamicdb/internal/observability"
	"github.com/dynamicdb/dynamicdb/internal/schema"
)

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// PoolFactory opens the connection pool.
	// Default: pgxpool.NewWithConfig
	PoolFactory func(ctx context.Context, cfg *config.Config) (Pool, error)

	// SchemaManagerFactory creates the schema lifecycle manager.
	// Default: schema.NewManager
	SchemaManagerFactory func(cfg schema.Config, logger *slog.Logger) (SchemaManager, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, registry *prometheus.Registry,
		ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// LogWriter receives log output.
	// Default: the command's stderr
	LogWriter io.Writer
}

// Pool wraps the methods used from pgxpool.Pool.
type Pool interface {
	dynamic.DB
	Ping(ctx context.Context) error
	Close()
}

// SchemaManager wraps the methods used from schema.Manager.
type SchemaManager interface {
	Create(ctx context.Context) error
	Drop(ctx context.Context) error
	DropAndCreate(ctx context.Context) error
	Status(ctx context.Context) (schema.Status, error)
	Force(ctx context.Context, version int) error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.PoolFactory == nil {
		out.PoolFactory = newPool
	}
	if out.SchemaManagerFactory == nil {
		out.SchemaManagerFactory = func(cfg schema.Config, logger *slog.Logger) (SchemaManager, error) {
			return schema.NewManager(cfg, logger)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, registry *prometheus.Registry,
			ready observability.ReadinessChecker, logger *slog.Logger,
		) ObservabilityServer {
			return observability.NewServer(addr, registry, ready, logger)
		}
	}
	return &out
}

func newPool(ctx context.Context, cfg *config.Config) (Pool, error) {
	dsn, err := cfg.SchemaConfig().DatabaseURL()
	if err != nil {
		return nil, err
	}
	// pgx does not understand the golang-migrate scheme.
	if rest, ok := strings.CutPrefix(dsn, "pgx5://"); ok {
		dsn = "postgres://" + rest
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	return pool, nil
}
