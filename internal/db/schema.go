package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
)

// Schema files live under sql/<dialect>/ and are named with a 4-digit prefix
// for order: 0001_name.sql, 0002_other.sql.
//
//go:embed sql
var schemaFS embed.FS

const migrationsTable = "schema_migrations"

var migrationFileRe = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

type migration struct {
	version string
	name    string
	body    string
}

// EnsureSchema creates the schema_migrations table if needed and applies the
// embedded schema files for the active dialect that have not run yet. Each
// file is applied in its own transaction, so re-running is a no-op.
func (d *DB) EnsureSchema(ctx context.Context) error {
	if err := d.WithConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, d.migrationsDDL())
		return err
	}); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := d.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("list applied migrations: %w", err)
	}

	pending, err := pendingMigrations(string(d.dialect), applied)
	if err != nil {
		return err
	}

	for _, m := range pending {
		err := d.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.body); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO "+migrationsTable+" (version, name) VALUES ($1, $2)",
				m.version, m.name,
			)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply %s_%s.sql: %w", m.version, m.name, err)
		}
		d.logger.Info("migration applied", "dialect", d.dialect, "version", m.version, "name", m.name)
	}
	return nil
}

func (d *DB) migrationsDDL() string {
	if d.dialect == Postgres {
		return `CREATE TABLE IF NOT EXISTS ` + migrationsTable + ` (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`
	}
	return `CREATE TABLE IF NOT EXISTS ` + migrationsTable + ` (
		version    TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`
}

func (d *DB) appliedVersions(ctx context.Context) (map[string]bool, error) {
	out := make(map[string]bool)
	err := d.WithConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, "SELECT version FROM "+migrationsTable)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				return err
			}
			out[v] = true
		}
		return rows.Err()
	})
	return out, err
}

func pendingMigrations(dialect string, applied map[string]bool) ([]migration, error) {
	dir := path.Join("sql", dialect)
	entries, err := fs.ReadDir(schemaFS, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var pending []migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		version, name, ok := parseMigrationFilename(e.Name())
		if !ok || applied[version] {
			continue
		}
		body, err := fs.ReadFile(schemaFS, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		pending = append(pending, migration{version: version, name: name, body: string(body)})
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].version < pending[j].version })
	return pending, nil
}

func parseMigrationFilename(filename string) (version, name string, ok bool) {
	m := migrationFileRe.FindStringSubmatch(filename)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}
