// Package store persists session lifecycle events to SQLite for auditing.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/harun/agentgate/pkg/session"
)

// AuditStore records session events in a local SQLite database.
type AuditStore struct {
	db *sql.DB
	mu sync.Mutex
}

// Config holds audit store configuration.
type Config struct {
	Path          string
	RetentionDays int
}

// Open opens (or creates) the audit database at the given path.
func Open(cfg Config) (*AuditStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("store path is required")
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &AuditStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *AuditStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		occurred_at INTEGER NOT NULL,
		session_id TEXT NOT NULL,
		owner TEXT NOT NULL,
		event_type TEXT NOT NULL,
		detail TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_events_session ON session_events(session_id);
	CREATE INDEX IF NOT EXISTS idx_events_occurred ON session_events(occurred_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// RecordEvent implements session.EventRecorder. Failures are logged rather
// than propagated so auditing never blocks session operations.
func (s *AuditStore) RecordEvent(ev session.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO session_events (occurred_at, session_id, owner, event_type, detail) VALUES (?, ?, ?, ?, ?)`,
		ev.Time.UnixMilli(), ev.SessionID, ev.Owner, ev.Type, ev.Detail,
	)
	if err != nil {
		log.Warn().Err(err).
			Str("session_id", ev.SessionID).
			Str("event_type", ev.Type).
			Msg("Failed to record audit event")
	}
}

// EventsForSession returns events for a session, newest first.
func (s *AuditStore) EventsForSession(sessionID string, limit int) ([]session.Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(
		`SELECT occurred_at, session_id, owner, event_type, detail
		 FROM session_events WHERE session_id = ?
		 ORDER BY occurred_at DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []session.Event
	for rows.Next() {
		var ev session.Event
		var at int64
		if err := rows.Scan(&at, &ev.SessionID, &ev.Owner, &ev.Type, &ev.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Time = time.UnixMilli(at)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Prune deletes events older than the retention window. Returns the number
// of rows removed.
func (s *AuditStore) Prune(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays).UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM session_events WHERE occurred_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (s *AuditStore) Close() error {
	return s.db.Close()
}
