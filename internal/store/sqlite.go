// Package store provides SQLite storage for activity events, categories,
// filter rules and settings.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"atracker/internal/activity"
	"atracker/internal/timefmt"
)

// ErrNotFound is returned when an addressed row does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalid is wrapped by validation failures.
var ErrInvalid = errors.New("invalid")

// Options tunes the database connection.
type Options struct {
	// BusyTimeout is how long a write waits on a locked database.
	BusyTimeout time.Duration
	// Location defines the calendar day stored with each event.
	Location *time.Location
	Logger   *slog.Logger
}

// Store represents the SQLite activity store.
type Store struct {
	db     *sql.DB
	path   string
	loc    *time.Location
	logger *slog.Logger
}

// Open opens or creates the database at path with default options.
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, Options{})
}

// OpenWithOptions opens or creates the SQLite database at the given path and
// runs migrations.
func OpenWithOptions(path string, opts Options) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "store")
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d",
		path, opts.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Store{db: db, path: path, loc: opts.Location, logger: opts.Logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying handle for migrations tooling.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertEvent appends a closed segment.
func (s *Store) InsertEvent(ctx context.Context, e *activity.Event) error {
	if e.End.Before(e.Start) {
		return fmt.Errorf("insert event: %w: end before start", ErrInvalid)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, device_id, start_ns, end_ns, day, app, title, pid, duration_secs, is_idle)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DeviceID, e.Start.UnixNano(), e.End.UnixNano(),
		timefmt.DayKey(e.Start, s.loc), e.App, e.Title, e.PID,
		activity.RoundSecs(e.DurationSecs), e.IsIdle,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetEvent retrieves an event by ID.
func (s *Store) GetEvent(ctx context.Context, id string) (*activity.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, device_id, start_ns, end_ns, app, title, pid, duration_secs, is_idle
		FROM events WHERE id = ?`, id)

	e, err := s.scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// EventsInRange returns events starting in [start, end), ordered by start.
func (s *Store) EventsInRange(ctx context.Context, start, end time.Time) ([]activity.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device_id, start_ns, end_ns, app, title, pid, duration_secs, is_idle
		FROM events
		WHERE start_ns >= ? AND start_ns < ?
		ORDER BY start_ns ASC`, start.UnixNano(), end.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("query events by range: %w", err)
	}
	defer rows.Close()

	var events []activity.Event
	for rows.Next() {
		e, err := s.scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// LastEvent returns the most recently started event, or nil.
func (s *Store) LastEvent(ctx context.Context) (*activity.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, device_id, start_ns, end_ns, app, title, pid, duration_secs, is_idle
		FROM events ORDER BY start_ns DESC LIMIT 1`)

	e, err := s.scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get last event: %w", err)
	}
	return e, nil
}

// CountEvents returns the number of stored events.
func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// SummaryRows groups the non-idle, non-sentinel events starting in
// [start, end) by (app, title).
func (s *Store) SummaryRows(ctx context.Context, start, end time.Time) ([]activity.SummaryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT app, title,
		       SUM(duration_secs) AS total_secs,
		       COUNT(*) AS event_count,
		       MIN(start_ns) AS first_seen,
		       MAX(end_ns) AS last_seen
		FROM events
		WHERE start_ns >= ? AND start_ns < ?
		  AND is_idle = 0 AND app != '' AND app != ?
		GROUP BY app, title
		ORDER BY total_secs DESC, app, title`,
		start.UnixNano(), end.UnixNano(), activity.PausedApp,
	)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var out []activity.SummaryRow
	for rows.Next() {
		var r activity.SummaryRow
		var first, last int64
		if err := rows.Scan(&r.App, &r.Title, &r.TotalSecs, &r.Count, &first, &last); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		r.FirstSeen = time.Unix(0, first).In(s.loc)
		r.LastSeen = time.Unix(0, last).In(s.loc)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary: %w", err)
	}
	return out, nil
}

// DailyTotals sums active, idle and paused time per calendar day for events
// starting in [start, end), newest day first.
func (s *Store) DailyTotals(ctx context.Context, start, end time.Time) ([]activity.DayTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day,
		       SUM(CASE WHEN is_idle = 0 AND app != ? THEN duration_secs ELSE 0 END) AS active_secs,
		       SUM(CASE WHEN is_idle = 1 THEN duration_secs ELSE 0 END) AS idle_secs,
		       SUM(CASE WHEN app = ? THEN duration_secs ELSE 0 END) AS paused_secs,
		       COUNT(*) AS event_count
		FROM events
		WHERE start_ns >= ? AND start_ns < ?
		GROUP BY day
		ORDER BY day DESC`,
		activity.PausedApp, activity.PausedApp, start.UnixNano(), end.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("query daily totals: %w", err)
	}
	defer rows.Close()

	var out []activity.DayTotal
	for rows.Next() {
		var t activity.DayTotal
		if err := rows.Scan(&t.Day, &t.ActiveSecs, &t.IdleSecs, &t.PausedSecs, &t.EventCount); err != nil {
			return nil, fmt.Errorf("scan daily total: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily totals: %w", err)
	}
	return out, nil
}

// PruneEvents deletes events that started before cutoff and returns how many
// were removed.
func (s *Store) PruneEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE start_ns < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	if n > 0 {
		s.logger.Info("pruned events", "count", n, "before", cutoff)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanEvent(r rowScanner) (*activity.Event, error) {
	var e activity.Event
	var startNs, endNs int64
	if err := r.Scan(&e.ID, &e.DeviceID, &startNs, &endNs, &e.App, &e.Title, &e.PID, &e.DurationSecs, &e.IsIdle); err != nil {
		return nil, err
	}
	e.Start = time.Unix(0, startNs).In(s.loc)
	e.End = time.Unix(0, endNs).In(s.loc)
	return &e, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
