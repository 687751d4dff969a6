package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetersoncode/agbridge/store"
	"github.com/spetersoncode/agbridge/store/storetest"
)

func TestMemoryStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return store.NewMemoryStore()
	})
}

func TestMemoryStore_Clock(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := store.NewMemoryStore(store.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	sess, err := s.Create(ctx, &store.Session{AppName: "app", UserID: "u", ThreadID: "t"})
	require.NoError(t, err)
	assert.Equal(t, now, sess.CreatedAt)

	now = now.Add(time.Minute)
	updated, err := s.UpdateState(ctx, sess.ID, map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, now, updated.UpdatedAt)
	assert.Equal(t, sess.CreatedAt, updated.CreatedAt)
}

func TestMemoryStore_ListOrder(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := store.NewMemoryStore(store.WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
	ctx := context.Background()
	for _, thread := range []string{"c", "a", "b"} {
		_, err := s.Create(ctx, &store.Session{AppName: "app", UserID: "u", ThreadID: thread})
		require.NoError(t, err)
	}

	list, err := s.List(ctx, "app")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].ThreadID)
	assert.Equal(t, "b", list[2].ThreadID)
}

func TestApplyDelta(t *testing.T) {
	base := map[string]any{"a": 1, "b": 2}
	out := store.ApplyDelta(base, map[string]any{"b": nil, "c": 3})
	assert.Equal(t, map[string]any{"a": 1, "c": 3}, out)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, base, "input is not modified")

	assert.Equal(t, map[string]any{"x": true}, store.ApplyDelta(nil, map[string]any{"x": true}))
}

func TestPublicState(t *testing.T) {
	state := map[string]any{
		"document":                     "draft",
		store.StateKeyPendingToolCalls: []any{"call-1"},
		store.StateKeyInvocationID:     "inv-1",
	}
	assert.Equal(t, map[string]any{"document": "draft"}, store.PublicState(state))
	assert.Len(t, state, 3)
	assert.Equal(t, map[string]any{}, store.PublicState(nil))
}

func TestStrings(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, store.Strings([]any{"a", 1, "", "b"}))
	assert.Equal(t, []string{"a"}, store.Strings([]string{"a"}))
	assert.Nil(t, store.Strings(nil))
	assert.Nil(t, store.Strings("a"))
	assert.Equal(t, "x", store.String("x"))
	assert.Equal(t, "", store.String(nil))
}

func TestDecodeState(t *testing.T) {
	state, err := store.DecodeState(nil)
	require.NoError(t, err)
	assert.Empty(t, state)

	state, err = store.DecodeState([]byte("null"))
	require.NoError(t, err)
	assert.NotNil(t, state)

	_, err = store.DecodeState([]byte("{"))
	var serr *store.SerializationError
	assert.ErrorAs(t, err, &serr)
}
