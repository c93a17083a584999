// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/dynamicdb/dynamicdb/internal/dynamic"
	"github.com/dynamicdb/dynamicdb/internal/repo"
)

func (a *app) newClassesCmd() *cobra.Command {
	var match string
	cmd := &cobra.Command{
		Use:   "classes",
		Short: "List stored object classes",
		Long: `List stored object classes with their property declarations as YAML.
--match filters class names with a glob pattern such as "Per*".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pattern, err := glob.Compile(match)
			if err != nil {
				return oops.Code("INVALID_PATTERN").With("pattern", match).Wrap(err)
			}
			return a.withSession(cmd, nil, func(ctx context.Context, s *session) error {
				classes, err := s.store.Classes.RetrieveAll(ctx)
				if err != nil {
					return err
				}
				matched := make([]*dynamic.ObjectClass, 0, len(classes))
				for _, c := range classes {
					if pattern.Match(c.Name()) {
						matched = append(matched, c)
					}
				}
				return writeYAML(cmd.OutOrStdout(), dynamic.NewClassViews(matched))
			})
		},
	}
	cmd.Flags().StringVar(&match, "match", "*", "glob pattern the class name must match")

	cmd.AddCommand(a.newClassDefineCmd())
	cmd.AddCommand(a.newClassDeclareCmd())
	cmd.AddCommand(a.newClassDeleteCmd())
	return cmd
}

func (a *app) newClassDefineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "define NAME [PROPERTY...]",
		Short: "Define a class with the given properties",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, nil, func(ctx context.Context, s *session) error {
				class, err := s.service.DefineClass(ctx, args[0], args[1:]...)
				if err != nil {
					return err
				}
				return writeYAML(cmd.OutOrStdout(), dynamic.NewClassView(class))
			})
		},
	}
}

func (a *app) newClassDeclareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "declare CLASS PROPERTY",
		Short: "Declare a property on a stored class",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, nil, func(ctx context.Context, s *session) error {
				class, err := resolveClass(ctx, s.store, args[0])
				if err != nil {
					return err
				}
				decl, err := s.service.DeclareProperty(ctx, class.ID(), args[1])
				if err != nil {
					return err
				}
				return writeYAML(cmd.OutOrStdout(), dynamic.NewClassView(decl.ObjectClass()))
			})
		},
	}
}

func (a *app) newClassDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete CLASS",
		Short: "Delete a class that has no instances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, nil, func(ctx context.Context, s *session) error {
				class, err := resolveClass(ctx, s.store, args[0])
				if err != nil {
					return err
				}
				if err := s.service.DeleteClass(ctx, class.ID()); err != nil {
					return err
				}
				cmd.Printf("Class %d deleted\n", class.ID())
				return nil
			})
		},
	}
}

// resolveClass finds a class by id when ref is numeric, otherwise by name.
// A name shared by several classes must be given as an id.
func resolveClass(ctx context.Context, store *dynamic.Store, ref string) (*dynamic.ObjectClass, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return store.Classes.RetrieveByID(ctx, id)
	}
	classes, err := store.Classes.FindByName(ctx, ref)
	if err != nil {
		return nil, err
	}
	switch len(classes) {
	case 0:
		return nil, oops.Code("CLASS_NOT_FOUND").With("class", ref).
			Wrap(fmt.Errorf("%w: no class named %q", repo.ErrNotFound, ref))
	case 1:
		return classes[0], nil
	default:
		ids := make([]int64, 0, len(classes))
		for _, c := range classes {
			ids = append(ids, c.ID())
		}
		return nil, oops.Code("AMBIGUOUS_CLASS").With("class", ref).With("ids", ids).
			Wrap(fmt.Errorf("%w: %d classes are named %q, pass an id", repo.ErrInvalidArgument, len(classes), ref))
	}
}
