package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite"
)

// Persisted document keys. The legacy key holds the pre-bundle flat capture
// array and is consumed (then deleted) by the one-time migration in
// LoadCaptureState.
const (
	KeyCaptureState   = "capture_state"
	KeyFilterState    = "filter_state"
	KeySyncCache      = "sync_cache"
	KeyLegacyCaptures = "captures"
)

// migration is a numbered schema change. Migrations are applied in order
// and tracked in the schema_migrations table so each runs exactly once.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS documents (
    key         TEXT PRIMARY KEY,
    value       BLOB NOT NULL,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`,
	},
	{
		Version:     2,
		Description: "create upload_log table",
		SQL: `
CREATE TABLE upload_log (
    id           INTEGER PRIMARY KEY,
    event_id     TEXT NOT NULL,
    filename     TEXT NOT NULL,
    status       TEXT NOT NULL,
    error        TEXT DEFAULT '',
    media_id     TEXT DEFAULT '',
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX idx_upload_log_event ON upload_log(event_id);`,
	},
}

// OpenDB opens (or creates) a SQLite database at the given path.
// It creates parent directories if needed, enables foreign keys and WAL mode,
// and runs any pending migrations.
func OpenDB(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// WAL keeps the bridge server responsive while the TUI reads.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// runMigrations ensures the schema_migrations table exists and applies any
// pending migrations in order.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}

		if _, err := db.Exec(m.SQL); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// DefaultDBPath returns the default database file path under the XDG data
// directory, e.g. ~/.local/share/eventatlas-capture/eventatlas.db.
func DefaultDBPath() (string, error) {
	path, err := xdg.DataFile(filepath.Join("eventatlas-capture", "eventatlas.db"))
	if err != nil {
		return "", fmt.Errorf("resolve data directory: %w", err)
	}
	return path, nil
}

// LogUpload appends one terminal upload outcome to the upload_log table.
// Errors are returned for the caller to log; an audit row is never worth
// failing an upload over.
func LogUpload(db *sql.DB, eventID, filename, status, uploadErr, mediaID string) error {
	_, err := db.Exec(
		"INSERT INTO upload_log (event_id, filename, status, error, media_id) VALUES (?, ?, ?, ?, ?)",
		eventID, filename, status, uploadErr, mediaID,
	)
	if err != nil {
		return fmt.Errorf("insert upload log: %w", err)
	}
	return nil
}
