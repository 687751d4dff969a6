// Package store provides durable session storage for AG-UI conversation threads.
//
// A [Session] holds the state of one thread. Besides client-visible keys the
// state carries two internal keys:
//   - [StateKeyPendingToolCalls]: ids of tool calls awaiting a client result
//   - [StateKeyInvocationID]: the runtime's resumption token
//
// [PublicState] strips them before state is shown to a client.
//
// # Backends
//
// All backends implement [Store]:
//   - [MemoryStore]: in-process, for tests and single-instance servers
//   - sqlitestore: a single sqlite file
//   - redisstore: redis with optimistic WATCH/MULTI updates
//
// # Usage
//
//	s := store.NewMemoryStore()
//	sess, err := s.Create(ctx, &store.Session{AppName: "app", UserID: "u", ThreadID: "t"})
//	if err != nil {
//	    return err
//	}
//	sess, err = s.UpdateState(ctx, sess.ID, map[string]any{
//	    store.StateKeyPendingToolCalls: []string{"call-1"},
//	})
//
// Writers that update state concurrently should retry errors wrapping
// [ErrConflict]. They are marked transient.
package store
