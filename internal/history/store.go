package history

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store persists call history in SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a Store backed by an in-memory or file-based SQLite database.
func New(dbPath string) (*Store, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS calls (
		id TEXT PRIMARY KEY,
		agent TEXT NOT NULL,
		transport TEXT NOT NULL,
		status TEXT NOT NULL,
		task TEXT,
		response TEXT,
		elapsed_ms INTEGER DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		call_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		text TEXT,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (call_id) REFERENCES calls(id)
	);

	CREATE INDEX IF NOT EXISTS idx_calls_agent ON calls(agent);
	CREATE INDEX IF NOT EXISTS idx_events_call_id ON events(call_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordCall saves a call outcome, assigning an ID and timestamp when
// absent.
func (s *Store) RecordCall(call *Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if call.ID == "" {
		call.ID = uuid.New().String()
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO calls (id, agent, transport, status, task, response, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		call.ID, call.Agent, call.Transport, call.Status, call.Task, call.Response,
		call.ElapsedMs, call.CreatedAt,
	)
	return err
}

// RecordEvent saves a decoded stream event against a call.
func (s *Store) RecordEvent(ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO events (id, call_id, kind, text, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.CallID, ev.Kind, ev.Text, ev.CreatedAt,
	)
	return err
}

// ListCalls retrieves the most recent calls, newest first.
func (s *Store) ListCalls(limit int) ([]*Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, agent, transport, status, task, response, elapsed_ms, created_at
		FROM calls ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var calls []*Call
	for rows.Next() {
		call := &Call{}
		var task, response sql.NullString
		if err := rows.Scan(
			&call.ID, &call.Agent, &call.Transport, &call.Status,
			&task, &response, &call.ElapsedMs, &call.CreatedAt,
		); err != nil {
			return nil, err
		}
		call.Task = task.String
		call.Response = response.String
		calls = append(calls, call)
	}
	return calls, rows.Err()
}

// ListEvents retrieves all events for a call in arrival order.
func (s *Store) ListEvents(callID string) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, call_id, kind, text, created_at
		FROM events WHERE call_id = ? ORDER BY created_at ASC`, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		ev := &Event{}
		var text sql.NullString
		if err := rows.Scan(&ev.ID, &ev.CallID, &ev.Kind, &text, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Text = text.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Summary aggregates call statistics.
func (s *Store) Summary() (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT status, transport, elapsed_ms FROM calls`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		total, errorCount, successCount int
		totalElapsed                    int64
		transports                      = make(map[string]int)
	)
	for rows.Next() {
		var status, transport string
		var elapsed int64
		if err := rows.Scan(&status, &transport, &elapsed); err != nil {
			return nil, err
		}
		total++
		totalElapsed += elapsed
		transports[transport]++
		if status == "error" {
			errorCount++
		} else {
			successCount++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	avgElapsed := int64(0)
	if total > 0 {
		avgElapsed = totalElapsed / int64(total)
	}

	return map[string]any{
		"total_calls":      total,
		"error_count":      errorCount,
		"success_count":    successCount,
		"avg_elapsed_ms":   avgElapsed,
		"transport_counts": transports,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
