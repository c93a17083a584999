// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

// Package repo provides a generic, version-checked repository over PostgreSQL.
package repo

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// Entity is implemented by every persisted record. The unexported method can only
// be satisfied by embedding Base, so id and version stay under the repository's control.
type Entity interface {
	// ID returns the store-assigned identifier, or 0 before the first persist.
	ID() int64

	// Version returns the optimistic-lock counter, or 0 before the first persist.
	Version() int64

	// IsPersisted reports whether the store has assigned an id.
	IsPersisted() bool

	base() *Base
}

// Base carries the identity and version of a persisted record. Embed it by value.
// mu serializes writes of one record; id and version may be read at any time.
type Base struct {
	mu      sync.Mutex
	id      atomic.Int64
	version atomic.Int64
}

// ID returns the store-assigned identifier.
func (b *Base) ID() int64 { return b.id.Load() }

// Version returns the current row version.
func (b *Base) Version() int64 { return b.version.Load() }

// IsPersisted reports whether the entity has been written to the store.
func (b *Base) IsPersisted() bool { return b.id.Load() != 0 }

func (b *Base) stamp(id, version int64) {
	b.id.Store(id)
	b.version.Store(version)
}

func (b *Base) base() *Base { return b }

// SameEntity reports whether a and b denote the same record: the same pointer, or
// both persisted with the same id.
func SameEntity(a, b Entity) bool {
	if isNil(a) || isNil(b) {
		return false
	}
	if a.base() == b.base() {
		return true
	}
	return a.IsPersisted() && a.ID() == b.ID()
}

// isNil reports whether e is nil or a typed nil pointer.
func isNil(e Entity) bool {
	if e == nil {
		return true
	}
	v := reflect.ValueOf(e)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
