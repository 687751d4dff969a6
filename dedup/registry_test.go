package dedup

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	s := NewSet("a", "b")
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has("c"))

	s.Add("c", "")
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"a", "b", "c"}, s.Values())

	s.Remove("b")
	assert.False(t, s.Has("b"))

	s.Clear()
	assert.Equal(t, 0, s.Len())

	var nilSet *Set
	assert.False(t, nilSet.Has("a"))
	assert.Equal(t, 0, nilSet.Len())
	assert.Nil(t, nilSet.Values())
}

func TestSet_ConcurrentWriters(t *testing.T) {
	s := NewSet()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := fmt.Sprintf("%d-%d", n, j)
				s.Add(id)
				_ = s.Has(id)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 800, s.Len())
}

func TestSet_Claim(t *testing.T) {
	t.Run("first claim wins", func(t *testing.T) {
		s := NewSet()
		assert.True(t, s.Claim("call-1"))
		assert.False(t, s.Claim("call-1"))
		assert.True(t, s.Has("call-1"))
		assert.True(t, s.Claim(""), "empty ids are never contended")
		assert.Equal(t, 1, s.Len())

		var nilSet *Set
		assert.True(t, nilSet.Claim("call-1"))
	})

	t.Run("one winner among concurrent claims", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			s := NewSet()
			var wins atomic.Int32
			var wg sync.WaitGroup
			for j := 0; j < 8; j++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if s.Claim("call-1") {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			require.Equal(t, int32(1), wins.Load())
		}
	})
}

func TestRegistry_Claim(t *testing.T) {
	claims := NewSet()
	a := NewRegistry(WithClaims(claims))
	b := NewRegistry(WithClaims(claims))

	assert.True(t, a.Claim("call-1"))
	assert.False(t, b.Claim("call-1"))
	assert.True(t, b.Claim("call-2"))
	assert.True(t, NewRegistry().Claim("call-1"), "no claim set means no contention")
}

func TestRegistry_Check(t *testing.T) {
	t.Run("allows unknown calls", func(t *testing.T) {
		r := NewRegistry()
		assert.Equal(t, Allowed, r.Check("call-1", "search"))
	})

	t.Run("own emissions", func(t *testing.T) {
		r := NewRegistry()
		r.MarkEmitted("call-1")
		assert.Equal(t, AlreadyEmitted, r.Check("call-1", "search"))
		assert.Equal(t, Allowed, r.Check("call-2", "search"))
	})

	t.Run("external set is read live", func(t *testing.T) {
		external := NewSet()
		r := NewRegistry(WithExternal(external))
		assert.Equal(t, Allowed, r.Check("call-1", "approve"))

		// the proxy adds the id after the registry was built
		external.Add("call-1")
		assert.Equal(t, EmittedByClient, r.Check("call-1", "approve"))
	})

	t.Run("client tool names only when resumable", func(t *testing.T) {
		names := NewSet("approve_plan")
		r := NewRegistry(WithClientToolNames(names))
		assert.Equal(t, Allowed, r.Check("preview-id", "approve_plan"))

		r.SetResumable(true)
		assert.True(t, r.Resumable())
		assert.Equal(t, ClientToolName, r.Check("preview-id", "approve_plan"))
		assert.Equal(t, Allowed, r.Check("other", "search"))
	})

	t.Run("empty id never matches id sets", func(t *testing.T) {
		external := NewSet()
		r := NewRegistry(WithExternal(external))
		external.Add("")
		r.MarkEmitted("")
		assert.Equal(t, Allowed, r.Check("", "search"))
	})
}

func TestRegistry_SharedEmittedSet(t *testing.T) {
	emitted := NewSet()
	r := NewRegistry(WithEmitted(emitted), WithResumable(true))
	r.MarkEmitted("call-1")
	assert.True(t, emitted.Has("call-1"), "writes go to the shared set")
	assert.Same(t, emitted, r.Emitted())
}

func TestRegistry_Reset(t *testing.T) {
	external := NewSet("ext")
	names := NewSet("approve")
	r := NewRegistry(WithExternal(external), WithClientToolNames(names), WithResumable(true))
	r.MarkEmitted("own")
	emitted := r.Emitted()

	r.Reset()

	assert.Equal(t, Allowed, r.Check("own", "search"))
	assert.Same(t, emitted, r.Emitted(), "reset clears in place")
	assert.Equal(t, EmittedByClient, r.Check("ext", "search"))
	assert.Equal(t, ClientToolName, r.Check("x", "approve"))
}

func TestReason_String(t *testing.T) {
	assert.Equal(t, "allowed", Allowed.String())
	assert.Equal(t, "emitted_by_client", EmittedByClient.String())
	assert.Equal(t, "client_tool_name", ClientToolName.String())
	assert.Equal(t, "already_emitted", AlreadyEmitted.String())
	assert.Equal(t, "claimed_elsewhere", ClaimedElsewhere.String())
	assert.Equal(t, "unknown", Reason(99).String())
}
