// Package storetest provides a conformance suite for store.Store backends.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/spetersoncode/agbridge/store"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run exercises every Store operation against the backend returned by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.Create(ctx, &store.Session{
			AppName: "app", UserID: "user", ThreadID: "thread-1",
			State: map[string]any{"document": "draft"},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.False(t, created.CreatedAt.IsZero())
		assert.Equal(t, "draft", created.State["document"])

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "thread-1", got.ThreadID)
		assert.Equal(t, "draft", got.State["document"])

		byThread, err := s.FindByThread(ctx, "app", "user", "thread-1")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byThread.ID)
	})

	t.Run("explicit id", func(t *testing.T) {
		s := newStore(t)
		created, err := s.Create(context.Background(), &store.Session{
			ID: "sess-1", AppName: "app", UserID: "user", ThreadID: "t",
		})
		require.NoError(t, err)
		assert.Equal(t, "sess-1", created.ID)
		assert.NotNil(t, created.State)
	})

	t.Run("one session per thread", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Create(ctx, &store.Session{AppName: "app", UserID: "user", ThreadID: "t"})
		require.NoError(t, err)
		_, err = s.Create(ctx, &store.Session{AppName: "app", UserID: "user", ThreadID: "t"})
		assert.ErrorIs(t, err, store.ErrSessionExists)

		_, err = s.Create(ctx, &store.Session{AppName: "app", UserID: "other", ThreadID: "t"})
		assert.NoError(t, err, "threads are scoped by user")
	})

	t.Run("not found", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrSessionNotFound)
		_, err = s.FindByThread(ctx, "app", "user", "missing")
		assert.ErrorIs(t, err, store.ErrSessionNotFound)
		_, err = s.UpdateState(ctx, "missing", map[string]any{"a": 1})
		assert.ErrorIs(t, err, store.ErrSessionNotFound)
		assert.ErrorIs(t, s.AppendEvent(ctx, "missing", store.Record{Author: "user"}), store.ErrSessionNotFound)
		_, err = s.Events(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("update state", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sess, err := s.Create(ctx, &store.Session{
			AppName: "app", UserID: "user", ThreadID: "t",
			State: map[string]any{"document": "draft", "keep": true},
		})
		require.NoError(t, err)

		updated, err := s.UpdateState(ctx, sess.ID, map[string]any{
			store.StateKeyPendingToolCalls: []string{"call-1", "call-2"},
			store.StateKeyInvocationID:     "inv-1",
			"document":                     nil,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"call-1", "call-2"}, store.Strings(updated.State[store.StateKeyPendingToolCalls]))
		assert.Equal(t, "inv-1", store.String(updated.State[store.StateKeyInvocationID]))
		assert.NotContains(t, updated.State, "document")
		assert.Equal(t, true, updated.State["keep"])
		assert.False(t, updated.UpdatedAt.Before(sess.UpdatedAt))

		got, err := s.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, updated.State, got.State)
	})

	t.Run("returned sessions are copies", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sess, err := s.Create(ctx, &store.Session{AppName: "app", UserID: "user", ThreadID: "t"})
		require.NoError(t, err)
		sess.State["leak"] = true

		got, err := s.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.NotContains(t, got.State, "leak")
	})

	t.Run("events", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sess, err := s.Create(ctx, &store.Session{AppName: "app", UserID: "user", ThreadID: "t"})
		require.NoError(t, err)

		for i := range 3 {
			err := s.AppendEvent(ctx, sess.ID, store.Record{
				InvocationID: "inv-1",
				Author:       "user",
				Content: genai.NewContentFromFunctionResponse(
					fmt.Sprintf("tool_%d", i), map[string]any{"ok": true}, genai.RoleUser,
				),
			})
			require.NoError(t, err)
		}

		recs, err := s.Events(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		for i, rec := range recs {
			assert.NotEmpty(t, rec.ID)
			assert.False(t, rec.Timestamp.IsZero())
			assert.Equal(t, "inv-1", rec.InvocationID)
			require.NotNil(t, rec.Content)
			require.Len(t, rec.Content.Parts, 1)
			require.NotNil(t, rec.Content.Parts[0].FunctionResponse)
			assert.Equal(t, fmt.Sprintf("tool_%d", i), rec.Content.Parts[0].FunctionResponse.Name)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sess, err := s.Create(ctx, &store.Session{AppName: "app", UserID: "user", ThreadID: "t"})
		require.NoError(t, err)
		require.NoError(t, s.AppendEvent(ctx, sess.ID, store.Record{Author: "user"}))

		require.NoError(t, s.Delete(ctx, sess.ID))
		_, err = s.Get(ctx, sess.ID)
		assert.ErrorIs(t, err, store.ErrSessionNotFound)
		_, err = s.FindByThread(ctx, "app", "user", "t")
		assert.ErrorIs(t, err, store.ErrSessionNotFound)

		require.NoError(t, s.Delete(ctx, sess.ID), "deleting twice is not an error")

		_, err = s.Create(ctx, &store.Session{AppName: "app", UserID: "user", ThreadID: "t"})
		assert.NoError(t, err, "thread can be reused after delete")
	})

	t.Run("list", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, thread := range []string{"a", "b", "c"} {
			_, err := s.Create(ctx, &store.Session{AppName: "app", UserID: "user", ThreadID: thread})
			require.NoError(t, err)
		}
		_, err := s.Create(ctx, &store.Session{AppName: "other", UserID: "user", ThreadID: "a"})
		require.NoError(t, err)

		list, err := s.List(ctx, "app")
		require.NoError(t, err)
		threads := make([]string, 0, len(list))
		for _, sess := range list {
			threads = append(threads, sess.ThreadID)
		}
		assert.ElementsMatch(t, []string{"a", "b", "c"}, threads)

		empty, err := s.List(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("concurrent updates", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sess, err := s.Create(ctx, &store.Session{AppName: "app", UserID: "user", ThreadID: "t"})
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = s.UpdateState(ctx, sess.ID, map[string]any{fmt.Sprintf("k%d", i): i})
			}()
		}
		wg.Wait()

		got, err := s.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, got.State)
	})
}
