// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DynamicDB Contributors

package schema

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/samber/oops"
)

//go:embed migrations
var migrationsFS embed.FS

const (
	coreDir     = "migrations/core"
	contextsDir = "migrations/contexts"
)

// Contexts returns the names of the embedded migration contexts, sorted.
func Contexts() ([]string, error) {
	entries, err := migrationsFS.ReadDir(contextsDir)
	if err != nil {
		return nil, oops.Code("MIGRATION_LIST_FAILED").With("operation", "read contexts dir").Wrap(err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

func contextDir(name string) string {
	return path.Join(contextsDir, name)
}

// migrationVersions reads dir and parses the version of every up migration.
// Files that do not follow NNNNNN_name.up.sql are logged and skipped.
func migrationVersions(dir string) ([]uint, error) {
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, oops.Code("MIGRATION_LIST_FAILED").With("dir", dir).Wrap(err)
	}

	seen := make(map[uint]struct{})
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		var version uint
		if _, err := fmt.Sscanf(name, "%06d", &version); err != nil {
			slog.Warn("migration file name doesn't match expected format, skipping",
				"filename", name,
				"expected_format", "NNNNNN_name.up.sql",
				"error", err)
			continue
		}
		seen[version] = struct{}{}
	}

	versions := make([]uint, 0, len(seen))
	for v := range seen {
		versions = append(versions, v)
	}
	slices.Sort(versions)
	return versions, nil
}

// MigrationName returns the NNNNNN_name of the core migration with the given
// version, or "" when there is none.
func MigrationName(version uint) (string, error) {
	entries, err := migrationsFS.ReadDir(coreDir)
	if err != nil {
		return "", oops.Code("MIGRATION_READ_FAILED").With("operation", "read migrations dir").Wrap(err)
	}

	prefix := fmt.Sprintf("%06d_", version)
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".up.sql") {
			return strings.TrimSuffix(name, ".up.sql"), nil
		}
	}
	return "", nil
}
