package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/spetersoncode/agbridge"
	"github.com/spetersoncode/agbridge/retry"
	"github.com/spetersoncode/agbridge/store"
)

// Defaults for a Manager.
const (
	DefaultAppName   = "agbridge"
	DefaultTimeout   = 20 * time.Minute
	DefaultCacheSize = 1024
)

// Manager maps AG-UI threads to durable sessions.
//
// A session touched for the first time by this process is reconciled: any
// pending tool calls it carries were surfaced by an earlier process and can
// no longer be answered in-process, so they are cleared.
//
// Manager is safe for concurrent use.
type Manager struct {
	store   store.Store
	appName string
	timeout time.Duration
	retry   retry.Config
	log     *slog.Logger
	now     func() time.Time

	threads *lru.Cache[string, string]
	group   singleflight.Group

	mu         sync.Mutex
	lastActive map[string]time.Time
}

// Option configures a Manager.
type Option func(*managerOptions)

type managerOptions struct {
	appName   string
	timeout   time.Duration
	retry     *retry.Config
	logger    *slog.Logger
	now       func() time.Time
	cacheSize int
}

// WithAppName scopes sessions to an application name.
func WithAppName(name string) Option {
	return func(o *managerOptions) { o.appName = name }
}

// WithTimeout sets how long a session may stay idle before Cleanup deletes it.
func WithTimeout(d time.Duration) Option {
	return func(o *managerOptions) { o.timeout = d }
}

// WithRetry sets the retry policy for session writes.
func WithRetry(cfg retry.Config) Option {
	return func(o *managerOptions) { o.retry = &cfg }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *managerOptions) { o.logger = l }
}

// WithClock sets the time source used for idle tracking.
func WithClock(now func() time.Time) Option {
	return func(o *managerOptions) { o.now = now }
}

// WithCacheSize bounds the thread lookup cache.
func WithCacheSize(n int) Option {
	return func(o *managerOptions) { o.cacheSize = n }
}

// NewManager creates a Manager over st.
func NewManager(st store.Store, opts ...Option) (*Manager, error) {
	o := managerOptions{
		appName:   DefaultAppName,
		timeout:   DefaultTimeout,
		now:       time.Now,
		cacheSize: DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.cacheSize <= 0 {
		o.cacheSize = DefaultCacheSize
	}
	threads, err := lru.New[string, string](o.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("session: thread cache: %w", err)
	}

	m := &Manager{
		store:      st,
		appName:    o.appName,
		timeout:    o.timeout,
		log:        o.logger,
		now:        o.now,
		threads:    threads,
		lastActive: make(map[string]time.Time),
	}
	if o.retry != nil {
		m.retry = *o.retry
	} else {
		m.retry = retry.DefaultConfig()
	}
	if m.retry.OnRetry == nil {
		m.retry.OnRetry = func(attempt int, err error, delay time.Duration) {
			m.log.Warn("retrying session write", "attempt", attempt, "delay", delay, "error", err)
		}
	}
	return m, nil
}

// AppName returns the application name sessions are scoped to.
func (m *Manager) AppName() string {
	return m.appName
}

// Store returns the underlying session store.
func (m *Manager) Store() store.Store {
	return m.store
}

type ensured struct {
	session *store.Session
	created bool
}

// Ensure returns the session for a thread, creating it if needed.
// Client-visible keys of initial are written to the session state; internal
// keys are ignored.
func (m *Manager) Ensure(ctx context.Context, userID, threadID string, initial map[string]any) (*store.Session, error) {
	seed := store.PublicState(initial)
	key := cacheKey(userID, threadID)

	v, err, shared := m.group.Do(key, func() (any, error) {
		return m.ensure(ctx, userID, threadID, seed)
	})
	if err != nil {
		return nil, agbridge.NewPermanentError("session: ensure "+threadID, agbridge.CodeSession, err)
	}
	res := v.(ensured)
	sess := res.session

	if len(seed) > 0 && (!res.created || shared) {
		sess, err = m.Persist(ctx, sess.ID, seed)
		if err != nil {
			return nil, err
		}
	}
	m.touch(sess.ID)
	return sess, nil
}

func (m *Manager) ensure(ctx context.Context, userID, threadID string, seed map[string]any) (ensured, error) {
	sess, err := m.lookup(ctx, userID, threadID)
	if err == nil {
		sess, err = m.reconcile(ctx, sess)
		return ensured{session: sess}, err
	}
	if !errors.Is(err, store.ErrSessionNotFound) {
		return ensured{}, err
	}

	sess, err = m.store.Create(ctx, &store.Session{
		AppName:  m.appName,
		UserID:   userID,
		ThreadID: threadID,
		State:    seed,
	})
	if errors.Is(err, store.ErrSessionExists) {
		// another process created it first
		sess, err = m.store.FindByThread(ctx, m.appName, userID, threadID)
		if err != nil {
			return ensured{}, err
		}
		m.threads.Add(cacheKey(userID, threadID), sess.ID)
		sess, err = m.reconcile(ctx, sess)
		return ensured{session: sess}, err
	}
	if err != nil {
		return ensured{}, err
	}

	m.log.Debug("created session", "thread_id", threadID, "session_id", sess.ID)
	m.threads.Add(cacheKey(userID, threadID), sess.ID)
	m.touch(sess.ID)
	return ensured{session: sess, created: true}, nil
}

// lookup finds a thread's session without creating it.
func (m *Manager) lookup(ctx context.Context, userID, threadID string) (*store.Session, error) {
	key := cacheKey(userID, threadID)
	if id, ok := m.threads.Get(key); ok {
		sess, err := m.store.Get(ctx, id)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, store.ErrSessionNotFound) {
			return nil, err
		}
		m.threads.Remove(key)
	}

	sess, err := m.store.FindByThread(ctx, m.appName, userID, threadID)
	if err != nil {
		return nil, err
	}
	m.threads.Add(key, sess.ID)
	return sess, nil
}

// reconcile clears pending tool calls left by an earlier process the first
// time this process touches a session.
func (m *Manager) reconcile(ctx context.Context, sess *store.Session) (*store.Session, error) {
	if m.active(sess.ID) {
		return sess, nil
	}
	m.touch(sess.ID)

	stale := store.Strings(sess.State[store.StateKeyPendingToolCalls])
	if len(stale) == 0 {
		return sess, nil
	}
	m.log.Info("clearing stale pending tool calls",
		"thread_id", sess.ThreadID, "session_id", sess.ID, "tool_call_ids", stale)
	return m.Persist(ctx, sess.ID, map[string]any{store.StateKeyPendingToolCalls: nil})
}

// Begin starts tracking one run against sess.
func (m *Manager) Begin(sess *store.Session, resumable bool) *Execution {
	return newExecution(m, sess, resumable)
}

// Pending returns the thread's pending tool-call ids.
func (m *Manager) Pending(ctx context.Context, userID, threadID string) ([]string, error) {
	sess, err := m.lookup(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}
	return store.Strings(sess.State[store.StateKeyPendingToolCalls]), nil
}

// InvocationID returns the thread's stored resumption token, or "".
func (m *Manager) InvocationID(ctx context.Context, userID, threadID string) (string, error) {
	sess, err := m.lookup(ctx, userID, threadID)
	if err != nil {
		return "", err
	}
	return store.String(sess.State[store.StateKeyInvocationID]), nil
}

// State returns the thread's client-visible state.
func (m *Manager) State(ctx context.Context, userID, threadID string) (map[string]any, error) {
	sess, err := m.lookup(ctx, userID, threadID)
	if err != nil {
		return nil, err
	}
	return store.PublicState(sess.State), nil
}

// Persist merges delta into a session's state, retrying conflicts.
func (m *Manager) Persist(ctx context.Context, sessionID string, delta map[string]any) (*store.Session, error) {
	sess, err := retry.Do(ctx, m.retry, func() (*store.Session, error) {
		return m.store.UpdateState(ctx, sessionID, delta)
	})
	if err != nil {
		m.log.Error("session write failed", "session_id", sessionID, "error", err)
		return nil, agbridge.NewPermanentError("session: persist "+sessionID, agbridge.CodeSession, err)
	}
	m.touch(sessionID)
	return sess, nil
}

// Append adds a record to a session's event log, retrying transient errors.
func (m *Manager) Append(ctx context.Context, sessionID string, rec store.Record) error {
	err := retry.Run(ctx, m.retry, func() error {
		return m.store.AppendEvent(ctx, sessionID, rec)
	})
	if err != nil {
		m.log.Error("session append failed", "session_id", sessionID, "error", err)
		return agbridge.NewPermanentError("session: append "+sessionID, agbridge.CodeSession, err)
	}
	m.touch(sessionID)
	return nil
}

// Cleanup deletes sessions idle longer than the timeout. Sessions with
// pending tool calls are kept regardless of age. Returns the number deleted.
//
// Activity records of sessions that no longer exist in the store are dropped
// on every call, including when the timeout is zero and nothing is deleted.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	now := m.now()
	sessions, err := m.store.List(ctx, m.appName)
	if err != nil {
		return 0, fmt.Errorf("session: cleanup: %w", err)
	}
	m.forgetMissing(sessions, now)
	if m.timeout <= 0 {
		return 0, nil
	}

	deleted := 0
	for _, sess := range sessions {
		if len(store.Strings(sess.State[store.StateKeyPendingToolCalls])) > 0 {
			continue
		}
		last := sess.UpdatedAt
		m.mu.Lock()
		if t, ok := m.lastActive[sess.ID]; ok && t.After(last) {
			last = t
		}
		m.mu.Unlock()
		if now.Sub(last) <= m.timeout {
			continue
		}

		if err := m.store.Delete(ctx, sess.ID); err != nil {
			m.log.Error("failed to delete idle session", "session_id", sess.ID, "error", err)
			continue
		}
		m.threads.Remove(cacheKey(sess.UserID, sess.ThreadID))
		m.mu.Lock()
		delete(m.lastActive, sess.ID)
		m.mu.Unlock()
		deleted++
		m.log.Debug("deleted idle session", "thread_id", sess.ThreadID, "session_id", sess.ID)
	}
	if deleted > 0 {
		m.log.Info("cleaned up idle sessions", "deleted", deleted, "remaining", len(sessions)-deleted)
	}
	return deleted, nil
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (m *Manager) RunCleanup(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		return nil
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.Cleanup(ctx); err != nil {
				m.log.Error("session cleanup failed", "error", err)
			}
		}
	}
}

// StartCleanup runs RunCleanup in a new goroutine.
func (m *Manager) StartCleanup(ctx context.Context, every time.Duration) {
	go func() { _ = m.RunCleanup(ctx, every) }()
}

// forgetMissing drops activity records for sessions absent from a listing
// taken at listed. Records touched after the listing are kept.
func (m *Manager) forgetMissing(sessions []*store.Session, listed time.Time) {
	live := make(map[string]struct{}, len(sessions))
	for _, sess := range sessions {
		live[sess.ID] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.lastActive {
		if _, ok := live[id]; ok || t.After(listed) {
			continue
		}
		delete(m.lastActive, id)
	}
}

func (m *Manager) touch(sessionID string) {
	m.mu.Lock()
	m.lastActive[sessionID] = m.now()
	m.mu.Unlock()
}

func (m *Manager) active(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.lastActive[sessionID]
	return ok
}

func cacheKey(userID, threadID string) string {
	return userID + "\x00" + threadID
}
