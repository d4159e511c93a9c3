package store

import (
	"database/sql"
	"fmt"
)

// migration is one idempotent schema change, applied in order at startup.
// Modeled on the teacher's internal/storage/sqlite/migrations.go Migration
// struct and RunMigrations loop: every migration re-checks its own
// precondition (a missing column, in this case) so running it twice is a
// no-op, which is what lets startup call RunMigrations unconditionally.
type migration struct {
	name string
	fn   func(*sql.DB) error
}

var migrationsList = []migration{
	{"manifest_mime_column", migrateManifestMimeColumn},
	{"provider_reachability_column", migrateProviderReachabilityColumn},
}

// runMigrations executes all registered migrations inside one EXCLUSIVE
// transaction-equivalent: SQLite doesn't let PRAGMA foreign_keys toggle
// inside a transaction, so foreign keys are disabled first (as in the
// teacher's RunMigrations), an exclusive lock is taken to serialize
// concurrent openers, and foreign keys are restored on every exit path.
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA foreign_keys = OFF`); err != nil {
		return fmt.Errorf("disable foreign keys for migrations: %w", err)
	}
	defer func() { _, _ = db.Exec(`PRAGMA foreign_keys = ON`) }()

	if _, err := db.Exec(`BEGIN EXCLUSIVE`); err != nil {
		return fmt.Errorf("acquire exclusive lock for migrations: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = db.Exec(`ROLLBACK`)
		}
	}()

	for _, m := range migrationsList {
		if err := m.fn(db); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
	}

	if _, err := db.Exec(`COMMIT`); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	committed = true
	return nil
}

// columnExists inspects pragma_table_info, the same column-presence guard
// the teacher's migrations use (see e.g.
// internal/storage/sqlite/migrations/010_content_hash_column.go) instead of
// tracking a migration-version counter.
func columnExists(db *sql.DB, table, column string) (bool, error) {
	var name string
	err := db.QueryRow(`
		SELECT name FROM pragma_table_info(?) WHERE name = ?
	`, table, column).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// migrateManifestMimeColumn adds manifest_mime to media_assets, recording
// the MIME type of a processor's cover image when a manifest spans multiple
// files of different kinds. Added after initial release; guarded so re-runs
// on an up-to-date database are no-ops.
func migrateManifestMimeColumn(db *sql.DB) error {
	exists, err := columnExists(db, "media_assets", "manifest_mime")
	if err != nil {
		return fmt.Errorf("check manifest_mime column: %w", err)
	}
	if exists {
		return nil
	}
	_, err = db.Exec(`ALTER TABLE media_assets ADD COLUMN manifest_mime TEXT`)
	if err != nil {
		return fmt.Errorf("add manifest_mime column: %w", err)
	}
	return nil
}

// migrateProviderReachabilityColumn adds a best-effort reachability flag to
// provider_registrations, per spec §9: some providers never get a
// reachability probe and should default to "unreachable" rather than
// silently omitting the field.
func migrateProviderReachabilityColumn(db *sql.DB) error {
	exists, err := columnExists(db, "provider_registrations", "reachable")
	if err != nil {
		return fmt.Errorf("check reachable column: %w", err)
	}
	if exists {
		return nil
	}
	_, err = db.Exec(`ALTER TABLE provider_registrations ADD COLUMN reachable INTEGER NOT NULL DEFAULT 0`)
	if err != nil {
		return fmt.Errorf("add reachable column: %w", err)
	}
	return nil
}
