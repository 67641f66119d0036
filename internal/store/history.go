// Package store persists a best-effort history of control actions and
// screenshots in a local sqlite database.
package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS actions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	serial     TEXT NOT NULL,
	action     TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS screenshots (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	serial     TEXT NOT NULL,
	filename   TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);
`

// ActionRecord is one row of the action history.
type ActionRecord struct {
	ID        int64     `json:"id"`
	Serial    string    `json:"serial"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store wraps the history database.
type Store struct {
	db *sql.DB
}

// Open opens (and migrates) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create history directory")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open history database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping history database")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate history database")
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordAction appends one executed action and its outcome.
func (s *Store) RecordAction(serial, action string, actionErr error) error {
	outcome := "ok"
	if actionErr != nil {
		outcome = actionErr.Error()
	}
	_, err := s.db.Exec(
		"INSERT INTO actions (serial, action, outcome, created_at) VALUES (?, ?, ?, ?)",
		serial, action, outcome, time.Now(),
	)
	return errors.Wrap(err, "failed to record action")
}

// RecordScreenshot appends one saved screenshot.
func (s *Store) RecordScreenshot(serial, filename string, sizeBytes int) error {
	_, err := s.db.Exec(
		"INSERT INTO screenshots (serial, filename, size_bytes, created_at) VALUES (?, ?, ?, ?)",
		serial, filename, sizeBytes, time.Now(),
	)
	return errors.Wrap(err, "failed to record screenshot")
}

// RecentActions returns the newest limit actions, newest first.
func (s *Store) RecentActions(limit int) ([]ActionRecord, error) {
	rows, err := s.db.Query(
		"SELECT id, serial, action, outcome, created_at FROM actions ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query action history")
	}
	defer rows.Close()

	var records []ActionRecord
	for rows.Next() {
		var rec ActionRecord
		if err := rows.Scan(&rec.ID, &rec.Serial, &rec.Action, &rec.Outcome, &rec.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan action row")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
