package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/sqlite"
	"github.com/google/uuid"

	"perpvault/core/events"
)

// Journal is an append-only sqlite log of every event the vault emits. It is
// the reconciliation trail for operators and downstream indexers.
type Journal struct {
	mu sync.Mutex
	db *sql.DB

	now func() time.Time
}

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("journal: database path must be configured")

const schema = `
CREATE TABLE IF NOT EXISTS vault_events (
    id         TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    attributes TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS vault_events_created_at ON vault_events (created_at);
CREATE INDEX IF NOT EXISTS vault_events_type ON vault_events (event_type);
`

// Open initialises the journal at the sqlite DSN path.
func Open(path string) (*Journal, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Emit implements events.Emitter. Append errors are discarded; the journal
// must never fail a vault operation.
func (j *Journal) Emit(e events.Event) {
	_ = j.Append(e)
}

// Append writes one event row.
func (j *Journal) Append(e events.Event) error {
	attrs, err := json.Marshal(e.Attributes())
	if err != nil {
		return fmt.Errorf("journal: marshal attributes: %w", err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.db.Exec(
		`INSERT INTO vault_events (id, event_type, attributes, created_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), e.EventType(), string(attrs), j.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("journal: insert event: %w", err)
	}
	return nil
}

// Entry is one persisted event row.
type Entry struct {
	ID         string            `json:"id"`
	EventType  string            `json:"eventType"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	rows, err := j.db.Query(
		`SELECT id, event_type, attributes, created_at FROM vault_events ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("journal: query events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			attrs     string
			createdAt int64
		)
		if err := rows.Scan(&entry.ID, &entry.EventType, &attrs, &createdAt); err != nil {
			return nil, fmt.Errorf("journal: scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(attrs), &entry.Attributes); err != nil {
			return nil, fmt.Errorf("journal: decode attributes: %w", err)
		}
		entry.CreatedAt = time.Unix(0, createdAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountByType reports how many rows each event type has accumulated.
func (j *Journal) CountByType() (map[string]int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	rows, err := j.db.Query(`SELECT event_type, COUNT(*) FROM vault_events GROUP BY event_type`)
	if err != nil {
		return nil, fmt.Errorf("journal: count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			eventType string
			count     int64
		)
		if err := rows.Scan(&eventType, &count); err != nil {
			return nil, fmt.Errorf("journal: scan count: %w", err)
		}
		counts[eventType] = count
	}
	return counts, rows.Err()
}
