// Package sqlite provides a durable DocumentStore backed by SQLite. It uses
// the pure-Go modernc.org/sqlite driver so no cgo toolchain is required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/hupe1980/planmesh/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	session_id TEXT NOT NULL,
	kind       TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       TEXT NOT NULL,
	seq        INTEGER,
	updated    TIMESTAMP NOT NULL,
	PRIMARY KEY (session_id, kind, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_session ON documents (session_id, kind, seq);
`

// Store is a DocumentStore persisting documents in a single SQLite table
// keyed by (session_id, kind, id). Safe for concurrent use; SQLite serializes
// writers internally.
type Store struct {
	db *sql.DB
}

// Open creates (or opens) the database at path and ensures the schema exists.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewFromDB wraps an existing *sql.DB (useful for shared connections in tests).
func NewFromDB(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Upsert stores the JSON serialization of value under (sessionID, kind, id).
// Insertion order is preserved through a monotonic per-store sequence.
func (s *Store) Upsert(ctx context.Context, sessionID, kind, id string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s/%s/%s: %w", sessionID, kind, id, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (session_id, kind, id, data, seq, updated)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM documents), ?)
		ON CONFLICT (session_id, kind, id)
		DO UPDATE SET data = excluded.data, updated = excluded.updated`,
		sessionID, kind, id, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert document %s/%s/%s: %w", sessionID, kind, id, err)
	}
	return nil
}

// Get unmarshals the stored document into out.
func (s *Store) Get(ctx context.Context, sessionID, kind, id string, out any) error {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE session_id = ? AND kind = ? AND id = ?`,
		sessionID, kind, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s/%s/%s: %w", sessionID, kind, id, core.ErrDocumentNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get document %s/%s/%s: %w", sessionID, kind, id, err)
	}
	return json.Unmarshal([]byte(data), out)
}

// QueryBySession lists all documents of a kind within a session in insertion order.
func (s *Store) QueryBySession(ctx context.Context, sessionID, kind string) ([]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM documents WHERE session_id = ? AND kind = ? ORDER BY seq`,
		sessionID, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents %s/%s: %w", sessionID, kind, err)
	}
	defer rows.Close()

	var res []json.RawMessage
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		res = append(res, json.RawMessage(data))
	}
	return res, rows.Err()
}

// DeleteSession removes every document belonging to the session.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	return nil
}
