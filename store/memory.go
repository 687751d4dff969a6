package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type threadKey struct {
	app, user, thread string
}

// MemoryStore provides thread-safe in-memory session storage.
// State is copied through its JSON form on every read and write, so callers
// observe the same value shapes a durable backend would return.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	threads  map[threadKey]string
	events   map[string][]Record
	now      func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock sets the time source used for CreatedAt and UpdatedAt.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		sessions: make(map[string]*Session),
		threads:  make(map[threadKey]string),
		events:   make(map[string][]Record),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create stores a new session.
func (m *MemoryStore) Create(_ context.Context, s *Session) (*Session, error) {
	state, err := copyState(s.State)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := threadKey{s.AppName, s.UserID, s.ThreadID}
	if _, ok := m.threads[key]; ok {
		return nil, ErrSessionExists
	}
	id := s.ID
	if id == "" {
		id = uuid.NewString()
	}
	if _, ok := m.sessions[id]; ok {
		return nil, ErrSessionExists
	}

	now := m.now().UTC()
	stored := &Session{
		ID:        id,
		AppName:   s.AppName,
		UserID:    s.UserID,
		ThreadID:  s.ThreadID,
		State:     state,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.sessions[id] = stored
	m.threads[key] = id
	return cloneSession(stored)
}

// Get retrieves a session by id.
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(s)
}

// FindByThread retrieves the session for a thread.
func (m *MemoryStore) FindByThread(_ context.Context, appName, userID, threadID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.threads[threadKey{appName, userID, threadID}]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(m.sessions[id])
}

// UpdateState merges delta into the session state.
func (m *MemoryStore) UpdateState(_ context.Context, id string, delta map[string]any) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	state, err := copyState(ApplyDelta(s.State, delta))
	if err != nil {
		return nil, err
	}
	s.State = state
	s.UpdatedAt = m.now().UTC()
	return cloneSession(s)
}

// AppendEvent adds a record to the session's event log.
func (m *MemoryStore) AppendEvent(_ context.Context, id string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = m.now().UTC()
	}
	m.events[id] = append(m.events[id], rec)
	return nil
}

// Events returns the session's event log.
func (m *MemoryStore) Events(_ context.Context, id string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.sessions[id]; !ok {
		return nil, ErrSessionNotFound
	}
	return append([]Record(nil), m.events[id]...), nil
}

// Delete removes a session and its events.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.threads, threadKey{s.AppName, s.UserID, s.ThreadID})
	delete(m.sessions, id)
	delete(m.events, id)
	return nil
}

// List returns every session for an app, oldest first.
func (m *MemoryStore) List(_ context.Context, appName string) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.AppName != appName {
			continue
		}
		c, err := cloneSession(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func copyState(state map[string]any) (map[string]any, error) {
	data, err := EncodeState(state)
	if err != nil {
		return nil, err
	}
	return DecodeState(data)
}

func cloneSession(s *Session) (*Session, error) {
	state, err := copyState(s.State)
	if err != nil {
		return nil, err
	}
	c := *s
	c.State = state
	return &c, nil
}
