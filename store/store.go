package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"google.golang.org/genai"
)

var (
	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("store: session not found")

	// ErrSessionExists indicates a session already exists for the thread.
	ErrSessionExists = errors.New("store: session already exists")

	// ErrConflict indicates the session changed between read and write.
	// Backends wrap it in a transient error so writers can retry.
	ErrConflict = errors.New("store: concurrent modification")
)

// Internal state keys. They are never shown to AG-UI clients.
const (
	// StateKeyPendingToolCalls holds the ids of tool calls surfaced to the
	// client that still await a result, as a list of strings.
	StateKeyPendingToolCalls = "pendingToolCalls"

	// StateKeyInvocationID holds the runtime's resumption token, or nil.
	StateKeyInvocationID = "invocationId"
)

// Session is the durable record of one conversation thread.
type Session struct {
	ID        string         `json:"id"`
	AppName   string         `json:"appName"`
	UserID    string         `json:"userId"`
	ThreadID  string         `json:"threadId"`
	State     map[string]any `json:"state"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Record is a persisted session event, such as a batch of function
// responses supplied by the client.
type Record struct {
	ID           string         `json:"id"`
	InvocationID string         `json:"invocationId,omitempty"`
	Author       string         `json:"author"`
	Content      *genai.Content `json:"content,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Store persists sessions and their events.
// Implementations must be thread-safe.
type Store interface {
	// Create stores a new session. An empty ID is assigned by the store.
	// Returns ErrSessionExists if the thread already has a session.
	Create(ctx context.Context, s *Session) (*Session, error)

	// Get retrieves a session by id.
	Get(ctx context.Context, id string) (*Session, error)

	// FindByThread retrieves the session for a thread.
	FindByThread(ctx context.Context, appName, userID, threadID string) (*Session, error)

	// UpdateState merges delta into the session state and returns the
	// updated session. A nil value removes the key.
	UpdateState(ctx context.Context, id string, delta map[string]any) (*Session, error)

	// AppendEvent adds a record to the session's event log.
	AppendEvent(ctx context.Context, id string, rec Record) error

	// Events returns the session's event log in append order.
	Events(ctx context.Context, id string) ([]Record, error)

	// Delete removes a session and its events. No error if it doesn't exist.
	Delete(ctx context.Context, id string) error

	// List returns every session for an app.
	List(ctx context.Context, appName string) ([]*Session, error)
}

// ApplyDelta returns a copy of state with delta merged in.
func ApplyDelta(state, delta map[string]any) map[string]any {
	out := maps.Clone(state)
	if out == nil {
		out = make(map[string]any, len(delta))
	}
	for k, v := range delta {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// PublicState returns a copy of state without the internal keys.
func PublicState(state map[string]any) map[string]any {
	out := maps.Clone(state)
	if out == nil {
		return map[string]any{}
	}
	delete(out, StateKeyPendingToolCalls)
	delete(out, StateKeyInvocationID)
	return out
}

// Strings reads a string list from a state value. Values decoded from JSON
// arrive as []any.
func Strings(v any) []string {
	switch vs := v.(type) {
	case []string:
		return append([]string(nil), vs...)
	case []any:
		out := make([]string, 0, len(vs))
		for _, x := range vs {
			if s, ok := x.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// String reads a string from a state value.
func String(v any) string {
	s, _ := v.(string)
	return s
}

// EncodeState serializes session state.
func EncodeState(state map[string]any) ([]byte, error) {
	if state == nil {
		state = map[string]any{}
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, &SerializationError{What: "state", Err: err}
	}
	return data, nil
}

// DecodeState deserializes session state.
func DecodeState(data []byte) (map[string]any, error) {
	state := map[string]any{}
	if len(data) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, &SerializationError{What: "state", Err: err}
	}
	if state == nil {
		state = map[string]any{}
	}
	return state, nil
}

// SerializationError wraps JSON marshaling/unmarshaling errors with context.
type SerializationError struct {
	What string
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("store: serialization error for %s: %v", e.What, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}
