// Package redisstore implements store.Store on redis.
//
// Keys, relative to the configured prefix:
//
//	session:<id>                  session JSON
//	thread:<app>:<user>:<thread>  session id
//	app:<app>                     set of session ids
//	events:<id>                   list of record JSON
//
// State updates use WATCH/MULTI. A concurrent writer aborts the transaction
// and UpdateState returns a transient error wrapping store.ErrConflict.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/spetersoncode/agbridge"
	"github.com/spetersoncode/agbridge/store"
)

// DefaultPrefix is prepended to every key.
const DefaultPrefix = "agbridge:"

// Store is a redis-backed session store.
type Store struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithTTL expires session keys after ttl without writes. Zero disables
// expiry, which is the default; idle sessions are removed by the session
// manager instead. A session with pending tool calls never expires: its keys
// are persisted until the calls are resolved.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithClock sets the time source used for CreatedAt and UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store on an existing client.
func New(rdb *redis.Client, opts ...Option) *Store {
	s := &Store{rdb: rdb, prefix: DefaultPrefix, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to the redis server at url (redis://host:port/db).
func Open(ctx context.Context, url string, opts ...Option) (*Store, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse url: %w", err)
	}
	rdb := redis.NewClient(o)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redisstore: ping: %w", err)
	}
	return New(rdb, opts...), nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) sessionKey(id string) string { return s.prefix + "session:" + id }
func (s *Store) eventsKey(id string) string  { return s.prefix + "events:" + id }
func (s *Store) appKey(app string) string    { return s.prefix + "app:" + app }

func (s *Store) threadKey(app, user, thread string) string {
	return s.prefix + "thread:" + app + ":" + user + ":" + thread
}

// Create stores a new session.
func (s *Store) Create(ctx context.Context, sess *store.Session) (*store.Session, error) {
	id := sess.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now().UTC()
	state := store.ApplyDelta(nil, sess.State)
	stored := &store.Session{
		ID:        id,
		AppName:   sess.AppName,
		UserID:    sess.UserID,
		ThreadID:  sess.ThreadID,
		State:     state,
		CreatedAt: now,
		UpdatedAt: now,
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, &store.SerializationError{What: "session " + id, Err: err}
	}

	ttl := s.expiry(state)
	tk := s.threadKey(sess.AppName, sess.UserID, sess.ThreadID)
	ok, err := s.rdb.SetNX(ctx, tk, id, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: create: %w", err)
	}
	if !ok {
		return nil, store.ErrSessionExists
	}
	ok, err = s.rdb.SetNX(ctx, s.sessionKey(id), data, ttl).Result()
	if err != nil || !ok {
		_ = s.rdb.Del(ctx, tk).Err()
		if err != nil {
			return nil, fmt.Errorf("redisstore: create: %w", err)
		}
		return nil, store.ErrSessionExists
	}
	if err := s.rdb.SAdd(ctx, s.appKey(sess.AppName), id).Err(); err != nil {
		return nil, fmt.Errorf("redisstore: index session: %w", err)
	}
	return s.decode(id, data)
}

// Get retrieves a session by id.
func (s *Store) Get(ctx context.Context, id string) (*store.Session, error) {
	data, err := s.rdb.Get(ctx, s.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: get: %w", err)
	}
	return s.decode(id, data)
}

// FindByThread retrieves the session for a thread.
func (s *Store) FindByThread(ctx context.Context, appName, userID, threadID string) (*store.Session, error) {
	id, err := s.rdb.Get(ctx, s.threadKey(appName, userID, threadID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: find by thread: %w", err)
	}
	return s.Get(ctx, id)
}

// UpdateState merges delta into the session state inside a WATCH/MULTI
// transaction.
func (s *Store) UpdateState(ctx context.Context, id string, delta map[string]any) (*store.Session, error) {
	key := s.sessionKey(id)
	var updated *store.Session

	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return store.ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		sess, err := s.decode(id, data)
		if err != nil {
			return err
		}
		sess.State = store.ApplyDelta(sess.State, delta)
		sess.UpdatedAt = s.now().UTC()
		out, err := json.Marshal(sess)
		if err != nil {
			return &store.SerializationError{What: "session " + id, Err: err}
		}

		ttl := s.expiry(sess.State)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, ttl)
			if s.ttl == 0 {
				return nil
			}
			for _, k := range []string{s.threadKey(sess.AppName, sess.UserID, sess.ThreadID), s.eventsKey(id)} {
				if ttl > 0 {
					pipe.Expire(ctx, k, ttl)
				} else {
					pipe.Persist(ctx, k)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated, err = s.decode(id, out)
		return err
	}, key)

	switch {
	case err == nil:
		return updated, nil
	case errors.Is(err, redis.TxFailedErr):
		return nil, agbridge.NewTransientError("redisstore: update state", fmt.Errorf("%w: %s", store.ErrConflict, id))
	case errors.Is(err, store.ErrSessionNotFound):
		return nil, err
	default:
		return nil, fmt.Errorf("redisstore: update state: %w", err)
	}
}

// AppendEvent adds a record to the session's event log.
func (s *Store) AppendEvent(ctx context.Context, id string, rec store.Record) error {
	n, err := s.rdb.Exists(ctx, s.sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("redisstore: append event: %w", err)
	}
	if n == 0 {
		return store.ErrSessionNotFound
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return &store.SerializationError{What: "event " + rec.ID, Err: err}
	}
	if err := s.rdb.RPush(ctx, s.eventsKey(id), data).Err(); err != nil {
		return fmt.Errorf("redisstore: append event: %w", err)
	}
	if s.ttl == 0 {
		return nil
	}
	// the log expires with its session
	left, err := s.rdb.PTTL(ctx, s.sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("redisstore: append event: %w", err)
	}
	if left > 0 {
		err = s.rdb.PExpire(ctx, s.eventsKey(id), left).Err()
	} else {
		err = s.rdb.Persist(ctx, s.eventsKey(id)).Err()
	}
	if err != nil {
		return fmt.Errorf("redisstore: append event: %w", err)
	}
	return nil
}

// Events returns the session's event log.
func (s *Store) Events(ctx context.Context, id string) ([]store.Record, error) {
	n, err := s.rdb.Exists(ctx, s.sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: events: %w", err)
	}
	if n == 0 {
		return nil, store.ErrSessionNotFound
	}
	raw, err := s.rdb.LRange(ctx, s.eventsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: events: %w", err)
	}
	out := make([]store.Record, 0, len(raw))
	for _, r := range raw {
		var rec store.Record
		if err := json.Unmarshal([]byte(r), &rec); err != nil {
			return nil, &store.SerializationError{What: "event", Err: err}
		}
		out = append(out, rec)
	}
	return out, nil
}

// Delete removes a session and its events.
func (s *Store) Delete(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if errors.Is(err, store.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.sessionKey(id), s.eventsKey(id), s.threadKey(sess.AppName, sess.UserID, sess.ThreadID))
		pipe.SRem(ctx, s.appKey(sess.AppName), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: delete: %w", err)
	}
	return nil
}

// List returns every session for an app. Ids whose session key has expired
// are pruned from the index.
func (s *Store) List(ctx context.Context, appName string) ([]*store.Session, error) {
	ids, err := s.rdb.SMembers(ctx, s.appKey(appName)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list: %w", err)
	}
	out := make([]*store.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if errors.Is(err, store.ErrSessionNotFound) {
			_ = s.rdb.SRem(ctx, s.appKey(appName), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

// expiry returns the TTL for a session with the given state. Zero means the
// keys do not expire.
func (s *Store) expiry(state map[string]any) time.Duration {
	if len(store.Strings(state[store.StateKeyPendingToolCalls])) > 0 {
		return 0
	}
	return s.ttl
}

func (s *Store) decode(id string, data []byte) (*store.Session, error) {
	var sess store.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, &store.SerializationError{What: "session " + id, Err: err}
	}
	if sess.State == nil {
		sess.State = map[string]any{}
	}
	return &sess, nil
}
