// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package repo

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

// Error taxonomy. Every error returned by this package wraps exactly one of these.
var (
	// ErrInvalidArgument is returned when a required reference or value is absent,
	// empty, or points at an entity that was never persisted.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when an operation targets an id that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an update or removal targets a stale version.
	ErrConflict = errors.New("version conflict")

	// ErrStoreFailure is returned when the underlying connection, transaction or
	// constraint check fails.
	ErrStoreFailure = errors.New("store failure")
)

// Error codes attached to oops errors.
const (
	CodeInvalidArgument   = "INVALID_ARGUMENT"
	CodeNotFound          = "NOT_FOUND"
	CodeReferenceNotFound = "REFERENCE_NOT_FOUND"
	CodeConflict          = "VERSION_CONFLICT"
	CodeStoreFailure      = "STORE_FAILURE"
	CodeEntityInUse       = "ENTITY_IN_USE"
	CodeDuplicateValue    = "DUPLICATE_VALUE"
)

// InvalidArgument builds an ErrInvalidArgument error for the named field.
func InvalidArgument(code, field, format string, args ...any) error {
	if code == "" {
		code = CodeInvalidArgument
	}
	return oops.Code(code).
		With("field", field).
		Wrap(fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...)))
}

// classify translates a driver error into the taxonomy. Foreign key violations
// raised while writing mean a referenced row is gone; raised while deleting they
// mean other rows still reference the target.
func classify(b oops.OopsErrorBuilder, op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		b = b.With("sqlstate", pgErr.Code).With("constraint", pgErr.ConstraintName)
		switch pgErr.Code {
		case pgerrcode.ForeignKeyViolation:
			if op == opRemove || op == opRemoveByID {
				return b.Code(CodeEntityInUse).Wrap(fmt.Errorf("%w: %w", ErrStoreFailure, err))
			}
			return b.Code(CodeReferenceNotFound).Wrap(fmt.Errorf("%w: %w", ErrNotFound, err))
		case pgerrcode.UniqueViolation:
			return b.Code(CodeDuplicateValue).Wrap(fmt.Errorf("%w: %w", ErrStoreFailure, err))
		case pgerrcode.SerializationFailure:
			return b.Code(CodeConflict).Wrap(fmt.Errorf("%w: %w", ErrConflict, err))
		}
	}
	return b.Code(CodeStoreFailure).Wrap(fmt.Errorf("%w: %w", ErrStoreFailure, err))
}

// Kind names a taxonomy category.
type Kind string

// Taxonomy kinds returned by KindOf.
const (
	KindNone            Kind = ""
	KindInvalidArgument Kind = "invalid_argument"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindStoreFailure    Kind = "store_failure"
)

// KindOf classifies err. Errors that wrap none of the sentinels are treated as
// store failures.
func KindOf(err error) Kind {
	switch outcome(err) {
	case OutcomeOK:
		return KindNone
	case OutcomeInvalidArgument:
		return KindInvalidArgument
	case OutcomeNotFound:
		return KindNotFound
	case OutcomeConflict:
		return KindConflict
	default:
		return KindStoreFailure
	}
}

// CodeOf returns the oops code carried by err, or "" when there is none.
func CodeOf(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := any(oopsErr.Code()).(string)
	return code
}
