// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dynamicdb/dynamicdb/internal/dynamic"
	"github.com/dynamicdb/dynamicdb/internal/repo"
)

func (a *app) newObjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "objects CLASS",
		Short: "List the stored instances of a class",
		Long: `List the stored instances of a class with their values as YAML.
CLASS is a class id or a class name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, nil, func(ctx context.Context, s *session) error {
				class, err := resolveClass(ctx, s.store, args[0])
				if err != nil {
					return err
				}
				objects, err := s.service.Objects(ctx, class.ID())
				if err != nil {
					return err
				}
				return writeYAML(cmd.OutOrStdout(), dynamic.NewObjectViews(objects))
			})
		},
	}

	cmd.AddCommand(a.newObjectCreateCmd())
	cmd.AddCommand(a.newObjectSetCmd())
	cmd.AddCommand(a.newObjectDeleteCmd())
	return cmd
}

func (a *app) newObjectCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create CLASS [PROPERTY=VALUE...]",
		Short: "Create an instance of a class",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			return a.withSession(cmd, nil, func(ctx context.Context, s *session) error {
				class, err := resolveClass(ctx, s.store, args[0])
				if err != nil {
					return err
				}
				object, err := s.service.CreateObject(ctx, class.ID(), values)
				if err != nil {
					return err
				}
				return writeYAML(cmd.OutOrStdout(), dynamic.NewObjectView(object))
			})
		},
	}
}

func (a *app) newObjectSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set ID PROPERTY VALUE",
		Short: "Set one value of a stored instance",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withSession(cmd, nil, func(ctx context.Context, s *session) error {
				pi, err := s.service.SetValue(ctx, id, args[1], args[2])
				if err != nil {
					return err
				}
				return writeYAML(cmd.OutOrStdout(), dynamic.NewObjectView(pi.ObjectInstance()))
			})
		},
	}
}

func (a *app) newObjectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a stored instance and its values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.withSession(cmd, nil, func(ctx context.Context, s *session) error {
				if err := s.service.DeleteObject(ctx, id); err != nil {
					return err
				}
				cmd.Printf("Object %d deleted\n", id)
				return nil
			})
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, repo.InvalidArgument("INVALID_ID", "id", "id must be a positive integer, got %q", s)
	}
	return id, nil
}

// parseAssignments turns PROPERTY=VALUE arguments into a value map. VALUE may
// be empty or contain further '=' signs.
func parseAssignments(args []string) (map[string]string, error) {
	values := make(map[string]string, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, repo.InvalidArgument("INVALID_ASSIGNMENT", "value", "expected PROPERTY=VALUE, got %q", arg)
		}
		if _, dup := values[name]; dup {
			return nil, repo.InvalidArgument("DUPLICATE_ASSIGNMENT", "value", "property %q assigned twice", name)
		}
		values[name] = value
	}
	return values, nil
}
