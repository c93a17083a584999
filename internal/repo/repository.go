// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Operation names used in logs, spans, metrics and error context.
const (
	opPersist     = "persist"
	opPersistAll  = "persist_all"
	opRetrieveAll = "retrieve_all"
	opRetrieveID  = "retrieve_by_id"
	opRemove      = "remove"
	opRemoveByID  = "remove_by_id"
	opFlush       = "flush"
	opQuery       = "query"
)

var tracer = otel.Tracer("dynamicdb/repo")

// Option configures a Repository.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics *Metrics
}

// WithLogger sets the logger used for operation tracing.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records operation counts and latencies in m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Repository is a CRUD facade over one entity type. It never opens or commits
// transactions: it runs inside the unit of work found in the context, or directly
// against db when there is none.
type Repository[T Entity] struct {
	db      Querier
	mapping Mapping[T]
	logger  *slog.Logger
	metrics *Metrics
}

// New creates a Repository for the entity type described by mapping.
func New[T Entity](db Querier, mapping Mapping[T], opts ...Option) *Repository[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return &Repository[T]{
		db:      db,
		mapping: mapping,
		logger:  o.logger.With("entity", mapping.Entity),
		metrics: o.metrics,
	}
}

// Entity returns the name of the managed entity type.
func (r *Repository[T]) Entity() string { return r.mapping.Entity }

// start opens a span and logs the call. The returned func must be called with
// the operation's result and returns it unchanged.
func (r *Repository[T]) start(ctx context.Context, op string, id int64) (context.Context, func(error) error) {
	started := time.Now()
	ctx, span := tracer.Start(ctx, "repo."+op,
		trace.WithAttributes(
			attribute.String("entity", r.mapping.Entity),
			attribute.Int64("id", id),
		),
	)
	r.logger.DebugContext(ctx, op, "id", id)
	return ctx, func(err error) error {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.logger.DebugContext(ctx, op+" failed", "id", id, "error", err)
		}
		span.End()
		r.metrics.observe(r.mapping.Entity, op, started, err)
		return err
	}
}

func (r *Repository[T]) errb(op string, id int64) oops.OopsErrorBuilder {
	b := oops.In("repository").With("operation", op).With("entity", r.mapping.Entity)
	if id != 0 {
		b = b.With("id", id)
	}
	return b
}

func (r *Repository[T]) scope(ctx context.Context) *Scope {
	return &Scope{ctx: ctx, q: querierFromCtx(ctx, r.db)}
}

func idOf(e Entity) int64 {
	if isNil(e) {
		return 0
	}
	return e.ID()
}

// Persist inserts e when it has no id yet, or writes its mutable columns when it
// has. An update succeeds only if the stored version still equals e.Version();
// otherwise it fails with ErrConflict, or ErrNotFound if the row is gone.
func (r *Repository[T]) Persist(ctx context.Context, e T) (err error) {
	ctx, done := r.start(ctx, opPersist, idOf(e))
	defer func() { err = done(err) }()

	if isNil(e) {
		return r.invalid(opPersist, 0, "entity", "%s must not be nil", r.mapping.Entity)
	}
	if r.mapping.Validate != nil {
		if vErr := r.mapping.Validate(e); vErr != nil {
			return r.errb(opPersist, e.ID()).Wrap(vErr)
		}
	}

	b := e.base()
	b.mu.Lock()
	defer b.mu.Unlock()

	q := querierFromCtx(ctx, r.db)
	if !b.IsPersisted() {
		return r.insert(ctx, q, e, b)
	}
	return r.update(ctx, q, e, b)
}

func (r *Repository[T]) insert(ctx context.Context, q Querier, e T, b *Base) error {
	cols := r.mapping.writable(false)
	var sql string
	args := make([]any, 0, len(cols))
	if len(cols) == 0 {
		sql = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING id, version", r.mapping.Table)
	} else {
		names := make([]string, 0, len(cols))
		marks := make([]string, 0, len(cols))
		for i, c := range cols {
			names = append(names, c.Name)
			marks = append(marks, "$"+strconv.Itoa(i+1))
			args = append(args, c.Value(e))
		}
		sql = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id, version",
			r.mapping.Table, strings.Join(names, ", "), strings.Join(marks, ", "))
	}

	var id, version int64
	if err := q.QueryRow(ctx, sql, args...).Scan(&id, &version); err != nil {
		return classify(r.errb(opPersist, 0), opPersist, err)
	}
	b.stamp(id, version)
	return nil
}

func (r *Repository[T]) update(ctx context.Context, q Querier, e T, b *Base) error {
	cols := r.mapping.writable(true)
	args := []any{b.ID(), b.Version()}
	sets := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		args = append(args, c.Value(e))
		sets = append(sets, fmt.Sprintf("%s = $%d", c.Name, len(args)))
	}
	sets = append(sets, "version = version + 1")
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = $1 AND version = $2 RETURNING version",
		r.mapping.Table, strings.Join(sets, ", "))

	var version int64
	err := q.QueryRow(ctx, sql, args...).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.staleOrMissing(ctx, q, opPersist, b)
	}
	if err != nil {
		return classify(r.errb(opPersist, b.ID()), opPersist, err)
	}
	b.version.Store(version)
	return nil
}

// staleOrMissing tells a version mismatch from a vanished row after a
// version-checked write matched nothing.
func (r *Repository[T]) staleOrMissing(ctx context.Context, q Querier, op string, b *Base) error {
	id, version := b.ID(), b.Version()
	var current int64
	err := q.QueryRow(ctx, fmt.Sprintf("SELECT version FROM %s WHERE id = $1", r.mapping.Table), id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.notFound(op, id)
	}
	if err != nil {
		return classify(r.errb(op, id), op, err)
	}
	return r.errb(op, id).
		Code(CodeConflict).
		With("expected_version", version).
		With("current_version", current).
		Wrap(fmt.Errorf("%w: %s %d has version %d, not %d", ErrConflict, r.mapping.Entity, id, current, version))
}

// PersistAll persists each entity in order and stops at the first failure.
// Entities persisted before the failure stay persisted unless the caller's unit
// of work is rolled back.
func (r *Repository[T]) PersistAll(ctx context.Context, entities ...T) (err error) {
	ctx, done := r.start(ctx, opPersistAll, 0)
	defer func() { err = done(err) }()

	for i, e := range entities {
		if pErr := r.Persist(ctx, e); pErr != nil {
			return r.errb(opPersistAll, 0).With("index", i).Wrap(pErr)
		}
	}
	return nil
}

// RetrieveAll returns every stored entity of the managed type.
func (r *Repository[T]) RetrieveAll(ctx context.Context) (items []T, err error) {
	ctx, done := r.start(ctx, opRetrieveAll, 0)
	defer func() { err = done(err) }()

	return r.list(ctx, opRetrieveAll, r.mapping.Select+" ORDER BY "+r.mapping.IDColumn)
}

// RetrieveByID returns the entity with the given id, or ErrNotFound.
func (r *Repository[T]) RetrieveByID(ctx context.Context, id int64) (item T, err error) {
	ctx, done := r.start(ctx, opRetrieveID, id)
	defer func() { err = done(err) }()

	return r.single(ctx, opRetrieveID, id, r.mapping.Select+" WHERE "+r.mapping.IDColumn+" = $1", id)
}

// RemoveByID deletes the entity with the given id. Owned child rows are removed by
// the store in the same statement. Rows referencing the entity from outside its
// ownership make the removal fail with ErrStoreFailure.
func (r *Repository[T]) RemoveByID(ctx context.Context, id int64) (err error) {
	ctx, done := r.start(ctx, opRemoveByID, id)
	defer func() { err = done(err) }()

	q := querierFromCtx(ctx, r.db)
	tag, err := q.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", r.mapping.Table), id)
	if err != nil {
		return classify(r.errb(opRemoveByID, id), opRemoveByID, err)
	}
	if tag.RowsAffected() == 0 {
		return r.notFound(opRemoveByID, id)
	}
	return nil
}

// Remove deletes e if its stored version still matches.
func (r *Repository[T]) Remove(ctx context.Context, e T) (err error) {
	ctx, done := r.start(ctx, opRemove, idOf(e))
	defer func() { err = done(err) }()

	if isNil(e) {
		return r.invalid(opRemove, 0, "entity", "%s must not be nil", r.mapping.Entity)
	}
	if !e.IsPersisted() {
		return r.invalid(opRemove, 0, "entity", "%s was never persisted", r.mapping.Entity)
	}

	b := e.base()
	b.mu.Lock()
	defer b.mu.Unlock()

	q := querierFromCtx(ctx, r.db)
	tag, err := q.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1 AND version = $2", r.mapping.Table), b.ID(), b.Version())
	if err != nil {
		return classify(r.errb(opRemove, b.ID()), opRemove, err)
	}
	if tag.RowsAffected() == 0 {
		return r.staleOrMissing(ctx, q, opRemove, b)
	}
	return nil
}

// Flush checks now the constraints the active unit of work deferred with
// SET CONSTRAINTS ... DEFERRED, so their violations surface before commit.
// Every statement is sent when it is issued, so earlier writes are already
// visible within the unit of work and immediate constraints already checked.
// Outside a unit of work Flush does nothing.
func (r *Repository[T]) Flush(ctx context.Context) (err error) {
	ctx, done := r.start(ctx, opFlush, 0)
	defer func() { err = done(err) }()

	if !InUnitOfWork(ctx) {
		return nil
	}
	if _, err := querierFromCtx(ctx, r.db).Exec(ctx, "SET CONSTRAINTS ALL IMMEDIATE"); err != nil {
		return classify(r.errb(opFlush, 0), opFlush, err)
	}
	return nil
}

// CreateQuery returns a query over the managed type restricted by filter, a SQL
// condition (optionally followed by ORDER BY) over the mapping's select aliases.
func (r *Repository[T]) CreateQuery(filter string) (*Query[T], error) {
	r.logger.Debug("create query", "filter", filter)
	if strings.TrimSpace(filter) == "" {
		return nil, r.invalid(opQuery, 0, "query", "query must be non-empty")
	}
	return &Query[T]{repo: r, sql: r.mapping.Select + " WHERE " + filter}, nil
}

func (r *Repository[T]) list(ctx context.Context, op, sql string, args ...any) ([]T, error) {
	s := r.scope(ctx)
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(r.errb(op, 0), op, err)
	}
	items, err := r.collect(s, op, rows)
	if err != nil {
		return nil, err
	}
	if r.mapping.Hydrate != nil && len(items) > 0 {
		items, err = r.mapping.Hydrate(s, items)
		if err != nil {
			return nil, r.hydrateFailed(op, err)
		}
	}
	return items, nil
}

func (r *Repository[T]) single(ctx context.Context, op string, id int64, sql string, args ...any) (T, error) {
	var zero T
	items, err := r.list(ctx, op, sql, args...)
	if err != nil {
		return zero, err
	}
	switch len(items) {
	case 0:
		return zero, r.notFound(op, id)
	case 1:
		return items[0], nil
	default:
		return zero, r.errb(op, id).
			Code("NON_UNIQUE_RESULT").
			With("count", len(items)).
			Wrap(fmt.Errorf("%w: expected one %s, got %d", ErrStoreFailure, r.mapping.Entity, len(items)))
	}
}

func (r *Repository[T]) collect(s *Scope, op string, rows pgx.Rows) ([]T, error) {
	defer rows.Close()

	items := make([]T, 0)
	for rows.Next() {
		item, err := r.mapping.Scan(s, rows)
		if err != nil {
			return nil, r.errb(op, 0).Code("SCAN_FAILED").Wrap(fmt.Errorf("%w: %w", ErrStoreFailure, err))
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(r.errb(op, 0), op, err)
	}
	return items, nil
}

func (r *Repository[T]) hydrateFailed(op string, err error) error {
	if errors.Is(err, ErrStoreFailure) || errors.Is(err, ErrNotFound) {
		return r.errb(op, 0).With("stage", "hydrate").Wrap(err)
	}
	return classify(r.errb(op, 0).With("stage", "hydrate"), op, err)
}

func (r *Repository[T]) notFound(op string, id int64) error {
	return r.errb(op, id).
		Code(CodeNotFound).
		Wrap(fmt.Errorf("%w: %s with id %d does not exist", ErrNotFound, r.mapping.Entity, id))
}

func (r *Repository[T]) invalid(op string, id int64, field, format string, args ...any) error {
	return r.errb(op, id).
		Code(CodeInvalidArgument).
		With("field", field).
		Wrap(fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...)))
}
