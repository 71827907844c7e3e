package vault

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path/filepath"

	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// DBFileName is the sqlite database inside the vault directory.
const DBFileName = "locknote.db"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// sealedTables lists every table whose rows carry a sealed body. Bodies
// are sealed under AAD "<table>/<key>", where the key is the row id except
// for the tables in recordKeys.
var sealedTables = []string{
	TableSettings,
	TableNotebooks,
	TableTags,
	TableNotes,
	TableNoteVersions,
	TableSmartViews,
}

// Table names shared with the repository and backup packages.
const (
	TableSettings     = "settings"
	TableNotebooks    = "notebooks"
	TableTags         = "tags"
	TableNotes        = "notes"
	TableNoteVersions = "note_versions"
	TableSmartViews   = "smart_views"
)

// recordKeys gives the SQL expression of the AAD key for tables whose rows
// are bound to more than their own id.
var recordKeys = map[string]string{
	TableNoteVersions: `note_id || '/' || id`,
}

// VersionKey is the AAD key of a note version. It binds the version to the
// note that owns it.
func VersionKey(noteID, versionID string) string { return noteID + "/" + versionID }

// gooseUp is a seam for tests.
var gooseUp = func(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

func openDB(dir string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		filepath.Join(dir, DBFileName))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("vault: failed to open database: %w", err)
	}

	// One connection keeps pragmas and transactions on the same handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("vault: failed to connect to database: %w", err)
	}

	if err := gooseUp(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("vault: failed to migrate database: %w", err)
	}
	return db, nil
}

// SchemaVersion returns the applied migration version.
func (v *Vault) SchemaVersion() (int64, error) {
	var version int64
	err := v.db.QueryRow(`SELECT COALESCE(MAX(version_id), 0) FROM goose_db_version WHERE is_applied = 1`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("vault: failed to read schema version: %w", err)
	}
	return version, nil
}
