// Package journal persists a per-attempt record of the delivery pipeline
// plus lifetime counters, so the control surface can report what left the
// device across restarts.
package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Delivery outcomes
const (
	OutcomeDelivered  = "delivered"  // Both blobs uploaded
	OutcomePartial    = "partial"    // One blob uploaded, one backlogged
	OutcomeBacklogged = "backlogged" // Both blobs backlogged
	OutcomeLost       = "lost"       // Neither uploaded nor persisted
)

// Entry is one delivery attempt
type Entry struct {
	ID         string
	Base       string // Shared blob base name (detection_<ts>)
	CapturedAt time.Time
	Labels     []string
	Outcome    string
	Error      string
	CreatedAt  time.Time
}

// Journal handles SQLite journal operations
type Journal struct {
	db *sql.DB
}

// Open opens the journal database, enabling WAL mode and running
// migrations
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	// WAL mode for concurrent reads from the control API
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the database connection
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS delivery_attempts (
			id TEXT PRIMARY KEY,
			base TEXT NOT NULL,
			captured_at DATETIME NOT NULL,
			labels TEXT,
			outcome TEXT NOT NULL,
			error TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_created ON delivery_attempts(created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS counters (
			name TEXT PRIMARY KEY,
			value INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, m := range migrations {
		if _, err := j.db.Exec(m); err != nil {
			return fmt.Errorf("migrate journal: %w", err)
		}
	}
	return nil
}

// RecordAttempt inserts one delivery attempt row
func (j *Journal) RecordAttempt(e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	labels, err := json.Marshal(e.Labels)
	if err != nil {
		return err
	}
	_, err = j.db.Exec(
		`INSERT INTO delivery_attempts (id, base, captured_at, labels, outcome, error) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Base, e.CapturedAt.UTC(), string(labels), e.Outcome, e.Error,
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// AddCounter increments a named lifetime counter
func (j *Journal) AddCounter(name string, delta uint64) error {
	_, err := j.db.Exec(
		`INSERT INTO counters (name, value) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = value + excluded.value`,
		name, delta,
	)
	if err != nil {
		return fmt.Errorf("bump counter %s: %w", name, err)
	}
	return nil
}

// Counter returns a named lifetime counter, zero if never written
func (j *Journal) Counter(name string) (uint64, error) {
	var value uint64
	err := j.db.QueryRow(`SELECT value FROM counters WHERE name = ?`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", name, err)
	}
	return value, nil
}

// Recent returns the newest delivery attempts, most recent first
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.Query(
		`SELECT id, base, captured_at, labels, outcome, error, created_at
		 FROM delivery_attempts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var labels string
		var errText sql.NullString
		if err := rows.Scan(&e.ID, &e.Base, &e.CapturedAt, &labels, &e.Outcome, &errText, &e.CreatedAt); err != nil {
			return nil, err
		}
		if labels != "" {
			if err := json.Unmarshal([]byte(labels), &e.Labels); err != nil {
				return nil, err
			}
		}
		e.Error = errText.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
