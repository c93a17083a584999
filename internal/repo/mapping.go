// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package repo

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Column maps one writable table column to an entity field.
type Column[T Entity] struct {
	Name  string
	Value func(e T) any

	// Immutable columns are written on insert only.
	Immutable bool
}

// Mapping describes how one entity type is stored. Every table managed through a
// Mapping has an identity column "id" and an optimistic-lock column "version".
type Mapping[T Entity] struct {
	// Entity is the entity name used in errors, logs and metrics.
	Entity string

	// Table is the table written by Persist and Remove.
	Table string

	// Select is a SELECT ... FROM ... statement without WHERE clause whose columns
	// are consumed by Scan.
	Select string

	// IDColumn is the qualified id column of Select, e.g. "c.id".
	IDColumn string

	Columns []Column[T]

	Scan func(s *Scope, row pgx.Row) (T, error)

	// Hydrate loads references and owned children of freshly scanned entities and
	// returns the entities to hand out. Rows that vanished between statements may
	// be dropped. Optional.
	Hydrate func(s *Scope, items []T) ([]T, error)

	// Validate checks local preconditions before any write. Optional.
	Validate func(e T) error
}

// Scope is handed to Scan and Hydrate. It is only created by Repository, and is
// the one place outside this package where a row's id and version may be restored.
type Scope struct {
	ctx context.Context
	q   Querier
}

// Context returns the context of the running operation.
func (s *Scope) Context() context.Context { return s.ctx }

// Restore stamps the stored id and version onto e.
func (s *Scope) Restore(e Entity, id, version int64) {
	if s == nil || s.q == nil {
		panic("repo: Restore called outside a repository scope")
	}
	e.base().stamp(id, version)
}

// Query runs sql in the unit of work of the running operation.
func (s *Scope) Query(sql string, args ...any) (pgx.Rows, error) {
	//nolint:wrapcheck // callers wrap with entity context
	return s.q.Query(s.ctx, sql, args...)
}

func (m *Mapping[T]) writable(update bool) []Column[T] {
	if !update {
		return m.Columns
	}
	cols := make([]Column[T], 0, len(m.Columns))
	for _, c := range m.Columns {
		if !c.Immutable {
			cols = append(cols, c)
		}
	}
	return cols
}
