// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

// Package schema provisions and removes the database structures of the object
// model. Core tables come from embedded migrations; an optional named context
// layers its own migrations on top, tracked in a separate migrations table.
package schema

import (
	"context"
	"log/slog"
	"net/url"
	"slices"

	"github.com/samber/oops"

	"github.com/dynamicdb/dynamicdb/internal/repo"
)

// Config holds the connection parameters of a Manager.
type Config struct {
	// URL is a postgres:// connection string.
	URL string
	// Username and Password replace the credentials in URL when set.
	Username string
	Password string
	// Context names an embedded migration context applied after the core
	// migrations. Empty means core only.
	Context string
}

// DatabaseURL returns URL with the configured credentials applied.
func (c Config) DatabaseURL() (string, error) {
	u, err := c.parse()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (c Config) parse() (*url.URL, error) {
	if c.URL == "" {
		return nil, repo.InvalidArgument("INVALID_URL", "url", "database url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return nil, oops.Code("INVALID_URL").With("field", "url").
			Wrapf(repo.ErrInvalidArgument, "parse database url: %v", err)
	}
	switch u.Scheme {
	case "postgres", "postgresql", "pgx5":
	default:
		return nil, repo.InvalidArgument("INVALID_URL", "url", "unsupported database url scheme %q", u.Scheme)
	}
	switch {
	case c.Username != "" && c.Password != "":
		u.User = url.UserPassword(c.Username, c.Password)
	case c.Username != "":
		u.User = url.User(c.Username)
	case c.Password != "" && u.User != nil:
		u.User = url.UserPassword(u.User.Username(), c.Password)
	}
	return u, nil
}

// migrateURL returns the pgx5:// url golang-migrate expects, recording versions
// in table when it is non-empty.
func (c Config) migrateURL(table string) (string, error) {
	u, err := c.parse()
	if err != nil {
		return "", err
	}
	u.Scheme = "pgx5"
	if table != "" {
		q := u.Query()
		q.Set("x-migrations-table", table)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Status reports the applied state of the core and context migrations.
type Status struct {
	Version        uint   `json:"version" yaml:"version"`
	Dirty          bool   `json:"dirty" yaml:"dirty"`
	Pending        []uint `json:"pending,omitempty" yaml:"pending,omitempty"`
	Context        string `json:"context,omitempty" yaml:"context,omitempty"`
	ContextVersion uint   `json:"context_version,omitempty" yaml:"context_version,omitempty"`
	ContextDirty   bool   `json:"context_dirty,omitempty" yaml:"context_dirty,omitempty"`
	ContextPending []uint `json:"context_pending,omitempty" yaml:"context_pending,omitempty"`
}

// Manager creates and drops the schema. Every operation opens its own migrators
// and closes them before returning.
type Manager struct {
	cfg    Config
	logger *slog.Logger
	open   opener
}

// NewManager validates cfg and returns a Manager. It does not connect.
func NewManager(cfg Config, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if _, err := cfg.parse(); err != nil {
		return nil, err
	}
	if err := checkContext(cfg.Context); err != nil {
		return nil, err
	}
	return &Manager{cfg: cfg, logger: logger.With("component", "schema"), open: openMigrate}, nil
}

func checkContext(name string) error {
	if name == "" {
		return nil
	}
	names, err := Contexts()
	if err != nil {
		return err
	}
	if !slices.Contains(names, name) {
		return oops.Code("UNKNOWN_CONTEXT").With("field", "context").With("available", names).
			Wrapf(repo.ErrInvalidArgument, "unknown migration context %q", name)
	}
	return nil
}

func contextTable(name string) string {
	return "schema_migrations_" + name
}

// withMigrator opens a migrator over dir, runs fn and closes it. A close error is
// returned only when fn succeeded.
func (m *Manager) withMigrator(ctx context.Context, dir, table string, fn func(*Migrator) error) (err error) {
	if err := ctx.Err(); err != nil {
		return storeFailure(oops.Code("SCHEMA_CANCELLED"), err)
	}
	databaseURL, err := m.cfg.migrateURL(table)
	if err != nil {
		return err
	}
	mi, err := m.open(dir, databaseURL, m.logger)
	if err != nil {
		return err
	}
	migrator := &Migrator{m: mi, dir: dir}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			m.logger.WarnContext(ctx, "close migrator", "dir", dir, "error", closeErr)
			if err == nil {
				err = closeErr
			}
		}
	}()
	return fn(migrator)
}

// Create applies the core migrations and then those of the configured context.
// Running it against an up-to-date schema changes nothing.
func (m *Manager) Create(ctx context.Context) error {
	if err := checkContext(m.cfg.Context); err != nil {
		return err
	}
	if err := m.withMigrator(ctx, coreDir, "", (*Migrator).Up); err != nil {
		return oops.With("operation", "create").Wrap(err)
	}
	if m.cfg.Context != "" {
		err := m.withMigrator(ctx, contextDir(m.cfg.Context), contextTable(m.cfg.Context), (*Migrator).Up)
		if err != nil {
			return oops.With("operation", "create").With("context", m.cfg.Context).Wrap(err)
		}
	}
	m.logger.InfoContext(ctx, "schema created", "context", m.cfg.Context)
	return nil
}

// Drop removes every table of the database schema together with its data,
// including the migration tables of all contexts.
func (m *Manager) Drop(ctx context.Context) error {
	if err := m.withMigrator(ctx, coreDir, "", (*Migrator).Drop); err != nil {
		return oops.With("operation", "drop").Wrap(err)
	}
	m.logger.InfoContext(ctx, "schema dropped")
	return nil
}

// DropAndCreate drops and then recreates the schema.
func (m *Manager) DropAndCreate(ctx context.Context) error {
	if err := m.Drop(ctx); err != nil {
		return err
	}
	return m.Create(ctx)
}

// Status reports applied and pending migrations.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	var st Status
	err := m.withMigrator(ctx, coreDir, "", func(mg *Migrator) error {
		var err error
		if st.Version, st.Dirty, err = mg.Version(); err != nil {
			return err
		}
		st.Pending, err = mg.PendingMigrations()
		return err
	})
	if err != nil {
		return Status{}, oops.With("operation", "status").Wrap(err)
	}
	if m.cfg.Context == "" {
		return st, nil
	}
	st.Context = m.cfg.Context
	err = m.withMigrator(ctx, contextDir(m.cfg.Context), contextTable(m.cfg.Context), func(mg *Migrator) error {
		var err error
		if st.ContextVersion, st.ContextDirty, err = mg.Version(); err != nil {
			return err
		}
		st.ContextPending, err = mg.PendingMigrations()
		return err
	})
	if err != nil {
		return Status{}, oops.With("operation", "status").With("context", m.cfg.Context).Wrap(err)
	}
	return st, nil
}

// Force marks the core migrations as applied up to version without running
// them. Use it only after repairing a dirty schema by hand.
func (m *Manager) Force(ctx context.Context, version int) error {
	err := m.withMigrator(ctx, coreDir, "", func(mg *Migrator) error { return mg.Force(version) })
	if err != nil {
		return oops.With("operation", "force").Wrap(err)
	}
	m.logger.WarnContext(ctx, "schema version forced", "version", version)
	return nil
}
