// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package repo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Querier is the query surface shared by *pgxpool.Pool, pgx.Tx and pgxmock pools.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Beginner starts transactions.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type txKey struct{}

type unitOfWork struct {
	id ulid.ULID
	tx pgx.Tx
}

// querierFromCtx returns the transaction stored in ctx, or fallback when there is none.
func querierFromCtx(ctx context.Context, fallback Querier) Querier {
	if uow, ok := ctx.Value(txKey{}).(*unitOfWork); ok {
		return uow.tx
	}
	return fallback
}

// InUnitOfWork reports whether ctx carries an active transaction.
func InUnitOfWork(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*unitOfWork)
	return ok
}

// UnitOfWorkID returns the identifier of the transaction stored in ctx.
func UnitOfWorkID(ctx context.Context) (ulid.ULID, bool) {
	uow, ok := ctx.Value(txKey{}).(*unitOfWork)
	if !ok {
		return ulid.ULID{}, false
	}
	return uow.id, true
}

// Transactor opens units of work. Repositories called with the context handed to
// fn participate in the same transaction.
type Transactor struct {
	db     Beginner
	logger *slog.Logger
}

// NewTransactor creates a Transactor backed by db.
func NewTransactor(db Beginner, logger *slog.Logger) *Transactor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Transactor{db: db, logger: logger}
}

// InTransaction begins a transaction, stores it in context, and calls fn.
// If fn returns nil, the transaction is committed. Otherwise, or when ctx is
// cancelled, it is rolled back and nothing fn wrote remains.
// Nested calls reuse the outer transaction.
func (t *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if InUnitOfWork(ctx) {
		return fn(ctx)
	}

	tx, err := t.db.Begin(ctx)
	if err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(fmt.Errorf("%w: %w", ErrStoreFailure, err))
	}
	uow := &unitOfWork{id: ulid.Make(), tx: tx}
	logger := t.logger.With("uow", uow.id.String())
	logger.DebugContext(ctx, "unit of work started")

	committed := false
	defer func() {
		if committed {
			return
		}
		// Rollback on a cancelled ctx still releases the connection, which aborts the tx.
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			logger.WarnContext(ctx, "unit of work rollback failed", "error", rbErr)
			return
		}
		logger.DebugContext(ctx, "unit of work rolled back")
	}()

	if err := fn(context.WithValue(ctx, txKey{}, uow)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return oops.Code("TX_CANCELLED").With("uow", uow.id.String()).Wrap(fmt.Errorf("%w: %w", ErrStoreFailure, err))
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(oops.With("operation", "commit").With("uow", uow.id.String()), "commit", err)
	}
	committed = true
	logger.DebugContext(ctx, "unit of work committed")
	return nil
}
