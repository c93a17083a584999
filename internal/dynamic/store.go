// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package dynamic

import (
	"log/slog"

	"github.com/dynamicdb/dynamicdb/internal/repo"
)

// DB is satisfied by *pgxpool.Pool and pgxmock pools.
type DB interface {
	repo.Querier
	repo.Beginner
}

// Store bundles the DAOs of the object model with a Transactor over the same pool.
type Store struct {
	Classes    *ObjectClassDAO
	Properties *ObjectClassPropertyDAO
	Instances  *ObjectInstanceDAO
	Values     *PropertyInstanceDAO
	Tx         *repo.Transactor
}

// NewStore wires every DAO to db. logger may be nil; metrics may be nil.
func NewStore(db DB, logger *slog.Logger, metrics *repo.Metrics) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	opts := []repo.Option{repo.WithLogger(logger), repo.WithMetrics(metrics)}
	return &Store{
		Classes:    NewObjectClassDAO(db, opts...),
		Properties: NewObjectClassPropertyDAO(db, opts...),
		Instances:  NewObjectInstanceDAO(db, opts...),
		Values:     NewPropertyInstanceDAO(db, opts...),
		Tx:         repo.NewTransactor(db, logger),
	}
}
