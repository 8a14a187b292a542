package store

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"atracker/internal/activity"
)

// Migration represents a database schema migration. Seed, when set, runs in
// the same transaction right after Up.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
	Seed        func(tx *sql.Tx) error
}

// migrations contains all database migrations in order.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema with events and settings",
		Up:          migrationV1Up,
		Down:        migrationV1Down,
	},
	{
		Version:     2,
		Description: "Add categories with default set",
		Up:          migrationV2Up,
		Down:        migrationV2Down,
		Seed:        seedDefaultCategories,
	},
	{
		Version:     3,
		Description: "Add filter_rules table",
		Up:          migrationV3Up,
		Down:        migrationV3Down,
	},
}

const migrationV1Up = `
-- Closed activity segments, append-only per device
CREATE TABLE IF NOT EXISTS events (
    id              TEXT PRIMARY KEY,
    device_id       TEXT NOT NULL,
    start_ns        INTEGER NOT NULL,
    end_ns          INTEGER NOT NULL,
    day             TEXT NOT NULL,
    app             TEXT NOT NULL,
    title           TEXT NOT NULL DEFAULT '',
    pid             INTEGER NOT NULL DEFAULT 0,
    duration_secs   REAL NOT NULL,
    is_idle         INTEGER NOT NULL DEFAULT 0,
    CHECK (end_ns >= start_ns)
);

CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_ns);
CREATE INDEX IF NOT EXISTS idx_events_day_app ON events(day, app);

CREATE TABLE IF NOT EXISTS settings (
    key     TEXT PRIMARY KEY,
    value   TEXT NOT NULL
);
`

const migrationV1Down = `
DROP TABLE IF EXISTS settings;
DROP INDEX IF EXISTS idx_events_day_app;
DROP INDEX IF EXISTS idx_events_start;
DROP TABLE IF EXISTS events;
`

const migrationV2Up = `
CREATE TABLE IF NOT EXISTS categories (
    id                  TEXT PRIMARY KEY,
    position            INTEGER NOT NULL DEFAULT 0,
    name                TEXT NOT NULL UNIQUE,
    app_pattern         TEXT NOT NULL DEFAULT '',
    title_pattern       TEXT NOT NULL DEFAULT '',
    case_sensitive      INTEGER NOT NULL DEFAULT 0,
    color               TEXT NOT NULL DEFAULT '#64748b',
    daily_goal_secs     INTEGER NOT NULL DEFAULT 0,
    daily_limit_secs    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_categories_position ON categories(position, name);
`

const migrationV2Down = `
DROP INDEX IF EXISTS idx_categories_position;
DROP TABLE IF EXISTS categories;
`

const migrationV3Up = `
CREATE TABLE IF NOT EXISTS filter_rules (
    id              TEXT PRIMARY KEY,
    position        INTEGER NOT NULL DEFAULT 0,
    rule_type       TEXT NOT NULL CHECK (rule_type IN ('ignore', 'redact')),
    app_pattern     TEXT NOT NULL DEFAULT '',
    title_pattern   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_filter_rules_position ON filter_rules(position);
`

const migrationV3Down = `
DROP INDEX IF EXISTS idx_filter_rules_position;
DROP TABLE IF EXISTS filter_rules;
`

func seedDefaultCategories(tx *sql.Tx) error {
	for i, c := range activity.DefaultCategories() {
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO categories (id, position, name, app_pattern, title_pattern, case_sensitive, color)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), i, c.Name, c.AppPattern, c.TitlePattern, c.CaseSensitive, c.Color,
		); err != nil {
			return fmt.Errorf("seed category %s: %w", c.Name, err)
		}
	}
	return nil
}

const migrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version     INTEGER PRIMARY KEY,
    applied_at  INTEGER NOT NULL,
    description TEXT
)`

// schemaTables must all exist on a fully migrated database.
var schemaTables = []string{"events", "settings", "categories", "filter_rules", "schema_migrations"}

func schemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// inTx runs fn in a transaction that is committed only when fn succeeds.
func inTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// MigrateDB applies every migration newer than the recorded schema version,
// each in its own transaction.
func MigrateDB(db *sql.DB) error {
	if _, err := db.Exec(migrationsTable); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	current, err := schemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := inTx(db, m.apply); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
	}
	return nil
}

func (m Migration) apply(tx *sql.Tx) error {
	if _, err := tx.Exec(m.Up); err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	if m.Seed != nil {
		if err := m.Seed(tx); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	_, err := tx.Exec(
		"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
		m.Version, time.Now().UnixNano(), m.Description,
	)
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return nil
}

// RollbackMigration reverts the most recent migration.
func RollbackMigration(db *sql.DB) error {
	current, err := schemaVersion(db)
	if err != nil {
		return err
	}
	if current == 0 {
		return errors.New("no migration to roll back")
	}

	idx := slices.IndexFunc(migrations, func(m Migration) bool { return m.Version == current })
	if idx < 0 {
		return fmt.Errorf("migration %d is not known to this build", current)
	}
	m := migrations[idx]

	return inTx(db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(m.Down); err != nil {
			return fmt.Errorf("roll back migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = ?", m.Version); err != nil {
			return fmt.Errorf("unrecord migration %d: %w", m.Version, err)
		}
		return nil
	})
}

// MigrationStatus describes the applied and pending migrations.
type MigrationStatus struct {
	CurrentVersion int
	LatestVersion  int
	Pending        []Migration
	Applied        []AppliedMigration
}

// AppliedMigration is one row of schema_migrations.
type AppliedMigration struct {
	Version     int
	AppliedAt   time.Time
	Description string
}

// GetMigrationStatus reports which migrations are applied. A database that
// was never migrated has every migration pending.
func GetMigrationStatus(db *sql.DB) (*MigrationStatus, error) {
	status := &MigrationStatus{LatestVersion: migrations[len(migrations)-1].Version}

	rows, err := db.Query("SELECT version, applied_at, description FROM schema_migrations ORDER BY version")
	if err != nil {
		status.Pending = migrations
		return status, nil
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var (
			am AppliedMigration
			at int64
		)
		if err := rows.Scan(&am.Version, &at, &am.Description); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		am.AppliedAt = time.Unix(0, at)
		status.Applied = append(status.Applied, am)
		status.CurrentVersion = max(status.CurrentVersion, am.Version)
		applied[am.Version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migrations: %w", err)
	}

	for _, m := range migrations {
		if !applied[m.Version] {
			status.Pending = append(status.Pending, m)
		}
	}
	return status, nil
}

// ValidateSchema reports every expected table that is missing.
func ValidateSchema(db *sql.DB) error {
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scan table name: %w", err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate tables: %w", err)
	}

	var missing []string
	for _, t := range schemaTables {
		if !present[t] {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tables: %s", strings.Join(missing, ", "))
	}
	return nil
}
