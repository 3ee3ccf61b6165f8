// Package store persists the session token across runs, so a restarted
// client resumes with the last refreshed token instead of forcing a
// fresh login.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/perchhq/perch-sync/internal/auth"
)

// ErrNoSession means no token has been saved yet.
var ErrNoSession = errors.New("store: no saved session")

// sessionRow is the single persisted row; the store keeps exactly one
// session per database file.
const sessionID = "current"

const schema = `
CREATE TABLE IF NOT EXISTS session (
	id           TEXT PRIMARY KEY,
	token        TEXT NOT NULL,
	refreshed_at TIMESTAMP NOT NULL
);`

// SessionStore reads and writes the persisted session on SQLite.
type SessionStore struct {
	db *sql.DB
}

// Open opens (or creates) the session database at path and ensures the
// schema exists. Use ":memory:" for an ephemeral store.
func Open(path string) (*SessionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ensure schema: %w", err)
	}
	return &SessionStore{db: db}, nil
}

// NewWithDB wraps an existing database handle. The schema must already
// exist; tests use this with a mock connection.
func NewWithDB(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Close releases the underlying database handle.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

// Save upserts the current session token.
func (s *SessionStore) Save(ctx context.Context, session auth.Session) error {
	refreshedAt := session.RefreshedAt
	if refreshedAt.IsZero() {
		refreshedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session (id, token, refreshed_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET token = $2, refreshed_at = $3`,
		sessionID, session.Token.Raw, refreshedAt,
	)
	if err != nil {
		return fmt.Errorf("store: save session: %w", err)
	}
	return nil
}

// Load returns the persisted session, or ErrNoSession when none has
// been saved. A token that no longer parses is treated the same as an
// absent one; the caller falls back to a fresh login.
func (s *SessionStore) Load(ctx context.Context) (auth.Session, error) {
	var raw string
	var refreshedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT token, refreshed_at FROM session WHERE id = $1`, sessionID,
	).Scan(&raw, &refreshedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return auth.Session{}, ErrNoSession
	case err != nil:
		return auth.Session{}, fmt.Errorf("store: load session: %w", err)
	}

	token, err := auth.ParseToken(raw)
	if err != nil {
		return auth.Session{}, ErrNoSession
	}

	return auth.Session{Token: token, RefreshedAt: refreshedAt}, nil
}

// Clear removes the persisted session, e.g. after a terminal expiry.
func (s *SessionStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("store: clear session: %w", err)
	}
	return nil
}
