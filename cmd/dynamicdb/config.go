// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package main

import (
	"net/url"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/dynamicdb/dynamicdb/internal/config"
)

func (a *app) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.GenerateSchema()
			if err != nil {
				return oops.Code("SCHEMA_GENERATE_FAILED").Wrap(err)
			}
			_, err = cmd.OutOrStdout().Write(append(data, '\n'))
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := a.load(cmd)
			if err != nil {
				return err
			}
			cfg := *e.cfg
			if cfg.Database.Password != "" {
				cfg.Database.Password = "xxxxx"
			}
			if u, err := url.Parse(cfg.Database.URL); err == nil {
				cfg.Database.URL = u.Redacted()
			}
			return writeYAML(cmd.OutOrStdout(), cfg)
		},
	})
	return cmd
}
