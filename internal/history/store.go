// Package history keeps a local log of propagated weight readings in
// SQLite.
package history

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// timeLayout is RFC3339 with fixed-width fractional seconds so the TEXT
// column sorts chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS readings (
  id       INTEGER PRIMARY KEY AUTOINCREMENT,
  address  TEXT    NOT NULL,
  name     TEXT    NOT NULL DEFAULT '',
  weight_g INTEGER NOT NULL,
  ts       TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_readings_address_ts ON readings(address, ts);
CREATE INDEX IF NOT EXISTS idx_readings_ts ON readings(ts);
`

// Reading is one logged weight.
type Reading struct {
	Address   string
	Name      string
	WeightG   int
	Timestamp time.Time
}

// Store wraps the readings database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the readings database at path. Parent
// directories are created as needed. ":memory:" opens a throwaway
// in-memory database.
func Open(path string) (*Store, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("history open: %w", err)
	}

	// SQLite works best with low connection concurrency.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history ping: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Insert records one reading.
func (s *Store) Insert(address, name string, weight int, ts time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO readings (address, name, weight_g, ts) VALUES (?, ?, ?, ?)`,
		address, name, weight, ts.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("history insert: %w", err)
	}
	return nil
}

// Latest returns the most recent reading for address. The bool reports
// whether any reading exists.
func (s *Store) Latest(address string) (Reading, bool, error) {
	row := s.db.QueryRow(
		`SELECT address, name, weight_g, ts FROM readings WHERE address = ? ORDER BY ts DESC, id DESC LIMIT 1`,
		address,
	)
	rec, err := scanReading(row.Scan)
	if err == sql.ErrNoRows {
		return Reading{}, false, nil
	}
	if err != nil {
		return Reading{}, false, err
	}
	return rec, true, nil
}

// Since returns readings for address at or after since, oldest first,
// capped at limit.
func (s *Store) Since(address string, since time.Time, limit int) ([]Reading, error) {
	rows, err := s.db.Query(
		`SELECT address, name, weight_g, ts FROM readings WHERE address = ? AND ts >= ? ORDER BY ts ASC, id ASC LIMIT ?`,
		address, since.UTC().Format(timeLayout), limit,
	)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)
	return scanReadings(rows)
}

// Recent returns the newest readings across all devices, newest first.
func (s *Store) Recent(limit int) ([]Reading, error) {
	rows, err := s.db.Query(
		`SELECT address, name, weight_g, ts FROM readings ORDER BY ts DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)
	return scanReadings(rows)
}

func scanReadings(rows *sql.Rows) ([]Reading, error) {
	var out []Reading
	for rows.Next() {
		rec, err := scanReading(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanReading(scan func(...any) error) (Reading, error) {
	var rec Reading
	var ts string
	if err := scan(&rec.Address, &rec.Name, &rec.WeightG, &ts); err != nil {
		return Reading{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Reading{}, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	rec.Timestamp = t
	return rec, nil
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		slog.Error("close readings rows", "error", err)
	}
}

func buildDSN(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	// busy_timeout helps with "database is locked", WAL with concurrent
	// reads while the daemon writes.
	params := []string{
		"_busy_timeout=5000",
		"_journal_mode=WAL",
	}

	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&"), nil
	}

	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}
