// Package sqlitestore implements store.Store on a single sqlite file.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spetersoncode/agbridge/store"

	_ "modernc.org/sqlite"
)

// Store is a sqlite-backed session store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source used for CreatedAt and UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens the database at path and creates the schema.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) init(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS sessions (
  session_id TEXT PRIMARY KEY,
  app_name TEXT NOT NULL,
  user_id TEXT NOT NULL,
  thread_id TEXT NOT NULL,
  state_json TEXT NOT NULL DEFAULT '{}',
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  UNIQUE(app_name, user_id, thread_id)
);
CREATE INDEX IF NOT EXISTS idx_sessions_app ON sessions(app_name);
CREATE TABLE IF NOT EXISTS session_events (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id TEXT NOT NULL,
  event_id TEXT NOT NULL,
  invocation_id TEXT NOT NULL DEFAULT '',
  author TEXT NOT NULL DEFAULT '',
  content_json TEXT NOT NULL DEFAULT 'null',
  ts TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id, seq);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlitestore: init schema: %w", err)
	}
	return nil
}

// Create stores a new session.
func (s *Store) Create(ctx context.Context, sess *store.Session) (*store.Session, error) {
	id := sess.ID
	if id == "" {
		id = uuid.NewString()
	}
	stateJSON, err := store.EncodeState(store.ApplyDelta(nil, sess.State))
	if err != nil {
		return nil, err
	}
	now := s.now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: create: %w", err)
	}
	defer tx.Rollback()

	var n int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE session_id=? OR (app_name=? AND user_id=? AND thread_id=?)`,
		id, sess.AppName, sess.UserID, sess.ThreadID,
	).Scan(&n)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: create: %w", err)
	}
	if n > 0 {
		return nil, store.ErrSessionExists
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions(session_id, app_name, user_id, thread_id, state_json, created_at, updated_at) VALUES(?,?,?,?,?,?,?)`,
		id, sess.AppName, sess.UserID, sess.ThreadID, string(stateJSON), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: create: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlitestore: create: %w", err)
	}
	return s.Get(ctx, id)
}

const selectSession = `SELECT session_id, app_name, user_id, thread_id, state_json, created_at, updated_at FROM sessions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*store.Session, error) {
	var (
		out                  store.Session
		stateJSON            string
		tsCreated, tsUpdated string
	)
	err := row.Scan(&out.ID, &out.AppName, &out.UserID, &out.ThreadID, &stateJSON, &tsCreated, &tsUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	state, err := store.DecodeState([]byte(stateJSON))
	if err != nil {
		return nil, err
	}
	out.State = state
	out.CreatedAt, _ = time.Parse(time.RFC3339Nano, tsCreated)
	out.UpdatedAt, _ = time.Parse(time.RFC3339Nano, tsUpdated)
	return &out, nil
}

// Get retrieves a session by id.
func (s *Store) Get(ctx context.Context, id string) (*store.Session, error) {
	return scanSession(s.db.QueryRowContext(ctx, selectSession+` WHERE session_id=?`, id))
}

// FindByThread retrieves the session for a thread.
func (s *Store) FindByThread(ctx context.Context, appName, userID, threadID string) (*store.Session, error) {
	return scanSession(s.db.QueryRowContext(ctx,
		selectSession+` WHERE app_name=? AND user_id=? AND thread_id=?`,
		appName, userID, threadID,
	))
}

// UpdateState merges delta into the session state in one transaction.
func (s *Store) UpdateState(ctx context.Context, id string, delta map[string]any) (*store.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: update state: %w", err)
	}
	defer tx.Rollback()

	sess, err := scanSession(tx.QueryRowContext(ctx, selectSession+` WHERE session_id=?`, id))
	if err != nil {
		return nil, err
	}
	sess.State = store.ApplyDelta(sess.State, delta)
	sess.UpdatedAt = s.now().UTC()
	stateJSON, err := store.EncodeState(sess.State)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET state_json=?, updated_at=? WHERE session_id=?`,
		string(stateJSON), sess.UpdatedAt.Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: update state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlitestore: update state: %w", err)
	}
	sess.State, err = store.DecodeState(stateJSON)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// AppendEvent adds a record to the session's event log.
func (s *Store) AppendEvent(ctx context.Context, id string, rec store.Record) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now().UTC()
	}
	contentJSON, err := json.Marshal(rec.Content)
	if err != nil {
		return &store.SerializationError{What: "event " + rec.ID, Err: err}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_events(session_id, event_id, invocation_id, author, content_json, ts) VALUES(?,?,?,?,?,?)`,
		id, rec.ID, rec.InvocationID, rec.Author, string(contentJSON), rec.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: append event: %w", err)
	}
	return nil
}

// Events returns the session's event log.
func (s *Store) Events(ctx context.Context, id string) ([]store.Record, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, invocation_id, author, content_json, ts FROM session_events WHERE session_id=? ORDER BY seq`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: events: %w", err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var (
			rec         store.Record
			contentJSON string
			ts          string
		)
		if err := rows.Scan(&rec.ID, &rec.InvocationID, &rec.Author, &contentJSON, &ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(contentJSON), &rec.Content); err != nil {
			return nil, &store.SerializationError{What: "event " + rec.ID, Err: err}
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes a session and its events.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: delete: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_events WHERE session_id=?`, id); err != nil {
		return fmt.Errorf("sqlitestore: delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id=?`, id); err != nil {
		return fmt.Errorf("sqlitestore: delete: %w", err)
	}
	return tx.Commit()
}

// List returns every session for an app, oldest first.
func (s *Store) List(ctx context.Context, appName string) ([]*store.Session, error) {
	rows, err := s.db.QueryContext(ctx, selectSession+` WHERE app_name=? ORDER BY created_at, session_id`, appName)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list: %w", err)
	}
	defer rows.Close()

	out := []*store.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
