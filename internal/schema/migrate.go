// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package schema

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// Register pgx/v5 database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"

	"github.com/dynamicdb/dynamicdb/internal/repo"
)

// migrateIface abstracts golang-migrate so migrations can be tested without a database.
type migrateIface interface {
	Up() error
	Down() error
	Drop() error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() (source error, database error)
}

// opener opens a migrator over the embedded source dir against databaseURL.
type opener func(dir, databaseURL string, logger *slog.Logger) (migrateIface, error)

// Migrator applies the migrations of one embedded source directory.
type Migrator struct {
	m   migrateIface
	dir string
}

func openMigrate(dir, databaseURL string, logger *slog.Logger) (migrateIface, error) {
	source, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return nil, storeFailure(oops.Code("MIGRATION_SOURCE_FAILED").With("dir", dir), err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		_ = source.Close() //nolint:errcheck // init error takes precedence
		return nil, storeFailure(oops.Code("MIGRATION_INIT_FAILED").With("dir", dir), err)
	}
	m.Log = &migrateLogger{logger: logger.With("dir", dir)}
	return m, nil
}

// NewMigrator opens a Migrator over dir. databaseURL must use the pgx5:// scheme.
func NewMigrator(dir, databaseURL string, logger *slog.Logger) (*Migrator, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m, err := openMigrate(dir, databaseURL, logger)
	if err != nil {
		return nil, err
	}
	return &Migrator{m: m, dir: dir}, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return storeFailure(oops.Code("MIGRATION_UP_FAILED").With("dir", m.dir), err)
	}
	return nil
}

// Down rolls back every migration of this source.
func (m *Migrator) Down() error {
	if err := m.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return storeFailure(oops.Code("MIGRATION_DOWN_FAILED").With("dir", m.dir), err)
	}
	return nil
}

// Drop removes every table in the database schema, including those created
// outside this source and the migration tables themselves.
func (m *Migrator) Drop() error {
	if err := m.m.Drop(); err != nil {
		return storeFailure(oops.Code("MIGRATION_DROP_FAILED").With("dir", m.dir), err)
	}
	return nil
}

// Version returns the applied version and dirty state. It returns 0, false when
// nothing has been applied.
func (m *Migrator) Version() (version uint, dirty bool, err error) {
	version, dirty, err = m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, storeFailure(oops.Code("MIGRATION_VERSION_FAILED").With("dir", m.dir), err)
	}
	return version, dirty, nil
}

// Force sets the version without running migrations, to recover from a dirty state.
func (m *Migrator) Force(version int) error {
	if version < 0 {
		return repo.InvalidArgument("INVALID_VERSION", "version", "version must be non-negative, got %d", version)
	}
	if err := m.m.Force(version); err != nil {
		return storeFailure(oops.Code("MIGRATION_FORCE_FAILED").With("version", version), err)
	}
	return nil
}

// Close releases the source and the database connection.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	if srcErr != nil && dbErr != nil {
		return storeFailure(oops.Code("MIGRATION_CLOSE_FAILED").With("component", "both"),
			fmt.Errorf("source: %w; database: %w", srcErr, dbErr))
	}
	if srcErr != nil {
		return storeFailure(oops.Code("MIGRATION_CLOSE_FAILED").With("component", "source"), srcErr)
	}
	if dbErr != nil {
		return storeFailure(oops.Code("MIGRATION_CLOSE_FAILED").With("component", "database"), dbErr)
	}
	return nil
}

// PendingMigrations returns the versions Up would apply, ascending.
func (m *Migrator) PendingMigrations() ([]uint, error) {
	current, _, err := m.Version()
	if err != nil {
		return nil, oops.With("operation", "get pending migrations").Wrap(err)
	}
	all, err := migrationVersions(m.dir)
	if err != nil {
		return nil, oops.With("operation", "get pending migrations").Wrap(err)
	}
	var pending []uint
	for _, v := range all {
		if v > current {
			pending = append(pending, v)
		}
	}
	return pending, nil
}

// AppliedMigrations returns the versions already applied, ascending.
func (m *Migrator) AppliedMigrations() ([]uint, error) {
	current, _, err := m.Version()
	if err != nil {
		return nil, oops.With("operation", "get applied migrations").Wrap(err)
	}
	if current == 0 {
		return nil, nil
	}
	all, err := migrationVersions(m.dir)
	if err != nil {
		return nil, oops.With("operation", "get applied migrations").Wrap(err)
	}
	var applied []uint
	for _, v := range all {
		if v <= current {
			applied = append(applied, v)
		}
	}
	return applied, nil
}

func storeFailure(b oops.OopsErrorBuilder, err error) error {
	return b.Wrap(fmt.Errorf("%w: %w", repo.ErrStoreFailure, err))
}

// migrateLogger forwards golang-migrate progress messages to slog.
type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *migrateLogger) Verbose() bool { return false }
