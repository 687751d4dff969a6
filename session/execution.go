package session

import (
	"context"
	"slices"

	"github.com/spetersoncode/agbridge/dedup"
	"github.com/spetersoncode/agbridge/store"
)

// Execution tracks pending tool calls and the resumption token for one run.
//
// It reads the durable state once, when the run begins, and writes it back
// only at run boundaries: [Execution.Resolve] at run start and
// [Execution.Commit] at run end. Observations made while the native stream
// is consumed stay in memory until Commit.
//
// An Execution belongs to a single run and is not safe for concurrent use.
type Execution struct {
	m         *Manager
	session   *store.Session
	resumable bool

	pending  []string // durable pending set, as of the last write
	token    string   // stored resumption token
	observed string   // token captured this run
	awaiting *dedup.Set
	answered *dedup.Set
}

func newExecution(m *Manager, sess *store.Session, resumable bool) *Execution {
	return &Execution{
		m:         m,
		session:   sess,
		resumable: resumable,
		pending:   store.Strings(sess.State[store.StateKeyPendingToolCalls]),
		token:     store.String(sess.State[store.StateKeyInvocationID]),
		awaiting:  dedup.NewSet(),
		answered:  dedup.NewSet(),
	}
}

// Session returns the session as last read or written by this execution.
func (e *Execution) Session() *store.Session {
	return e.session
}

// Resumable reports whether the run uses resumption tokens.
func (e *Execution) Resumable() bool {
	return e.resumable
}

// ResumptionToken returns the token stored for the thread when the run
// began, or "" when the run is not resumable.
func (e *Execution) ResumptionToken() string {
	if !e.resumable {
		return ""
	}
	return e.token
}

// ObservedToken returns the token captured during this run.
func (e *Execution) ObservedToken() string {
	return e.observed
}

// Pending returns the tool-call ids that would remain pending if the run
// ended now.
func (e *Execution) Pending() []string {
	out := dedup.NewSet()
	for _, id := range e.pending {
		if !e.answered.Has(id) {
			out.Add(id)
		}
	}
	for _, id := range e.awaiting.Values() {
		if !e.answered.Has(id) {
			out.Add(id)
		}
	}
	return out.Values()
}

// Resolve removes tool calls the client answered in this request from the
// pending set and writes the result immediately.
func (e *Execution) Resolve(ctx context.Context, ids ...string) error {
	resolved := dedup.NewSet(ids...)
	remaining := slices.DeleteFunc(slices.Clone(e.pending), resolved.Has)
	if len(remaining) == len(e.pending) {
		return nil
	}

	sess, err := e.m.Persist(ctx, e.session.ID, map[string]any{
		store.StateKeyPendingToolCalls: pendingValue(remaining),
	})
	if err != nil {
		return err
	}
	e.session = sess
	e.pending = remaining
	e.m.log.Debug("resolved pending tool calls",
		"session_id", sess.ID, "tool_call_ids", ids, "remaining", len(remaining))
	return nil
}

// ObserveInvocation records the runtime's token for the paused invocation.
// Only the latest non-empty token is kept.
func (e *Execution) ObserveInvocation(token string) {
	if token != "" {
		e.observed = token
	}
}

// AwaitResult marks tool calls surfaced to the client this run.
func (e *Execution) AwaitResult(ids ...string) {
	e.awaiting.Add(ids...)
}

// Satisfied marks tool calls whose results the runtime produced this run.
func (e *Execution) Satisfied(ids ...string) {
	e.answered.Add(ids...)
}

// Commit writes the run's outcome. The pending set becomes what Pending
// returns. A resumable run that leaves pending calls stores the token it
// observed; any run that leaves none clears the stored token. Commit skips
// the write when nothing changed.
func (e *Execution) Commit(ctx context.Context) error {
	pending := e.Pending()

	token := e.token
	switch {
	case len(pending) == 0:
		token = ""
	case e.resumable && e.observed != "":
		token = e.observed
	}

	if slices.Equal(pending, sorted(e.pending)) && token == e.token {
		return nil
	}

	delta := map[string]any{store.StateKeyPendingToolCalls: pendingValue(pending)}
	if token == "" {
		delta[store.StateKeyInvocationID] = nil
	} else {
		delta[store.StateKeyInvocationID] = token
	}
	sess, err := e.m.Persist(ctx, e.session.ID, delta)
	if err != nil {
		return err
	}
	e.session = sess
	e.pending = pending
	e.token = token
	e.m.log.Debug("committed run state",
		"session_id", sess.ID, "pending", pending, "has_resumption_token", token != "")
	return nil
}

func pendingValue(ids []string) any {
	if len(ids) == 0 {
		return nil
	}
	return ids
}

func sorted(ids []string) []string {
	return dedup.NewSet(ids...).Values()
}
