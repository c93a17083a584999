// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/dynamicdb/dynamicdb/internal/config"
	"github.com/dynamicdb/dynamicdb/internal/observability"
	"github.com/dynamicdb/dynamicdb/internal/repo"
)

const shutdownTimeout = 5 * time.Second

func (a *app) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve metrics and health probes for the database",
		Long: `Serve Prometheus metrics (/metrics) and health probes (/healthz/liveness,
/healthz/readiness) until interrupted. Readiness reflects whether the database
answers a ping. The metrics include the number of stored objects per class.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := observability.NewRegistry()
			metrics := repo.NewMetrics(registry)
			return a.withSession(cmd, metrics, func(ctx context.Context, s *session) error {
				registry.MustRegister(observability.NewObjectCollector(s.service, s.logger))
				return serve(ctx, a.deps.ObservabilityServerFactory(s.cfg.Metrics.Addr, registry, s.pool.Ping, s.logger), s)
			})
		},
	}
	cmd.Flags().String("metrics-addr", config.DefaultMetricsAddr, "metrics and health listen address")
	return cmd
}

// serve runs server until ctx is cancelled, a signal arrives or the server fails.
func serve(ctx context.Context, server ObservabilityServer, s *session) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh, err := server.Start()
	if err != nil {
		return oops.Code("SERVE_FAILED").With("addr", s.cfg.Metrics.Addr).Wrap(err)
	}
	s.logger.InfoContext(ctx, "serving", "addr", server.Addr())

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.InfoContext(ctx, "shutting down")
	case err, ok := <-errCh:
		if ok && err != nil {
			serveErr = oops.Code("SERVE_FAILED").With("addr", server.Addr()).Wrap(err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		s.logger.WarnContext(shutdownCtx, "error stopping observability server", "error", err)
	}
	return serveErr
}
