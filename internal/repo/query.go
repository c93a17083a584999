// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package repo

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Query is a filtered select over one entity type, created by Repository.CreateQuery.
// Positional parameters ($1, $2, ...) in the filter are bound at execution.
type Query[T Entity] struct {
	repo *Repository[T]
	sql  string
}

// SQL returns the statement the query executes.
func (q *Query[T]) SQL() string { return q.sql }

// List returns every matching entity.
func (q *Query[T]) List(ctx context.Context, args ...any) (items []T, err error) {
	ctx, done := q.repo.start(ctx, opQuery, 0)
	defer func() { err = done(err) }()

	return q.repo.list(ctx, opQuery, q.sql, args...)
}

// Single returns the one matching entity. It fails with ErrNotFound when nothing
// matches and with ErrStoreFailure when more than one row matches.
func (q *Query[T]) Single(ctx context.Context, args ...any) (item T, err error) {
	ctx, done := q.repo.start(ctx, opQuery, 0)
	defer func() { err = done(err) }()

	return q.repo.single(ctx, opQuery, 0, q.sql, args...)
}

// Aggregate runs sql, a read the mapping's select cannot express such as a
// grouped count, in the unit of work found in ctx and collects each row with fn.
// op names the read in logs, spans and metrics.
func Aggregate[T Entity, R any](ctx context.Context, r *Repository[T], op, sql string, fn pgx.RowToFunc[R], args ...any) (items []R, err error) {
	ctx, done := r.start(ctx, op, 0)
	defer func() { err = done(err) }()

	rows, err := querierFromCtx(ctx, r.db).Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(r.errb(op, 0), op, err)
	}
	items, err = pgx.CollectRows(rows, fn)
	if err != nil {
		return nil, classify(r.errb(op, 0), op, err)
	}
	return items, nil
}
