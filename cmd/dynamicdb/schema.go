// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/dynamicdb/dynamicdb/pkg/errutil"
)

func (a *app) newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Create, drop and inspect the database schema",
	}

	cmd.AddCommand(a.schemaAction("create", "Apply the core and context migrations",
		`Apply every pending core migration, then those of the configured context.
Running it against an up-to-date schema changes nothing.`,
		false, "Schema is up to date", SchemaManager.Create))
	cmd.AddCommand(a.schemaAction("drop", "Drop every table and row",
		`Drop every table of the database schema together with its data, including
the migration tables. Requires --yes.`,
		true, "Schema dropped", SchemaManager.Drop))
	cmd.AddCommand(a.schemaAction("reset", "Drop and recreate the schema",
		`Drop the schema and apply every migration again. All data is lost.
Requires --yes.`,
		true, "Schema recreated", SchemaManager.DropAndCreate))
	cmd.AddCommand(a.newSchemaStatusCmd())
	cmd.AddCommand(a.newSchemaForceCmd())

	return cmd
}

func (a *app) schemaAction(use, short, long string, destructive bool, done string,
	run func(SchemaManager, context.Context) error,
) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if destructive && !yes {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("%s destroys all data; pass --yes to confirm", use)
			}
			return a.withSchema(cmd, func(ctx context.Context, m SchemaManager) error {
				if err := run(m, ctx); err != nil {
					return err
				}
				cmd.Println(done)
				return nil
			})
		},
	}
	if destructive {
		cmd.Flags().BoolVar(&yes, "yes", false, "confirm that all data may be destroyed")
	}
	return cmd
}

func (a *app) newSchemaStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSchema(cmd, func(ctx context.Context, m SchemaManager) error {
				st, err := m.Status(ctx)
				if err != nil {
					return err
				}
				return writeYAML(cmd.OutOrStdout(), st)
			})
		},
	}
}

func (a *app) newSchemaForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force VERSION",
		Short: "Mark the core migrations as applied up to VERSION",
		Long: `Set the recorded core migration version without running any migration
and clear the dirty flag. Use it only after repairing a failed migration by
hand. VERSION -1 records that no migration is applied.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return a.withSchema(cmd, func(ctx context.Context, m SchemaManager) error {
				if err := m.Force(ctx, version); err != nil {
					return err
				}
				cmd.Printf("Schema version forced to %d\n", version)
				return nil
			})
		},
	}
}

func parseForceVersion(s string) (int, error) {
	version, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer, got %q", s)
	}
	return version, nil
}

func (a *app) withSchema(cmd *cobra.Command, fn func(ctx context.Context, m SchemaManager) error) error {
	e, err := a.load(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	m, err := a.deps.SchemaManagerFactory(e.cfg.SchemaConfig(), e.logger)
	if err != nil {
		errutil.LogErrorContext(ctx, e.logger, "schema manager setup failed", err)
		return err
	}
	if err := fn(ctx, m); err != nil {
		errutil.LogErrorContext(ctx, e.logger, "schema command failed", err)
		return err
	}
	return nil
}
