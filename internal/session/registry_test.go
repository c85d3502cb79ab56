package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ent0n29/chatrelay/internal/protocol"
	"github.com/ent0n29/chatrelay/internal/session/sessiontest"
)

func TestRegistryRegisterFreshThenReplace(t *testing.T) {
	r := NewRegistry()
	first := sessiontest.NewHandle("h1")
	second := sessiontest.NewHandle("h2")

	s, prev, fresh := r.Register("u1", first)
	require.True(t, fresh)
	require.Nil(t, prev)
	require.Equal(t, "u1", s.UserID)

	_, prev, fresh = r.Register("u1", second)
	require.False(t, fresh)
	require.Equal(t, Handle(first), prev)

	got, ok := r.Lookup("u1")
	require.True(t, ok)
	require.Equal(t, Handle(second), got)
}

func TestRegistryStaleUnregisterIsNoop(t *testing.T) {
	r := NewRegistry()
	first := sessiontest.NewHandle("h1")
	second := sessiontest.NewHandle("h2")
	r.Register("u1", first)
	r.Register("u1", second)

	require.False(t, r.Unregister("u1", first))
	got, ok := r.Lookup("u1")
	require.True(t, ok)
	require.Equal(t, Handle(second), got)

	require.True(t, r.Unregister("u1", second))
	require.False(t, r.Online("u1"))
	require.False(t, r.Unregister("u1", second))
}

func TestRegistryReRegisterSameHandle(t *testing.T) {
	r := NewRegistry()
	h := sessiontest.NewHandle("h1")
	r.Register("u1", h)
	_, prev, fresh := r.Register("u1", h)
	require.False(t, fresh)
	require.Nil(t, prev)
}

func TestRegistryNotifyAndBroadcast(t *testing.T) {
	r := NewRegistry()
	a := sessiontest.NewHandle("a")
	b := sessiontest.NewHandle("b")
	r.Register("a", a)
	r.Register("b", b)

	msg := protocol.UserStatus{Type: protocol.TypeUserStatus, UserID: "a", IsOnline: true}
	require.True(t, r.Notify("b", msg))
	require.False(t, r.Notify("ghost", msg))
	require.Len(t, b.Messages(), 1)

	b.Refuse(true)
	require.Equal(t, 1, r.Broadcast(msg))
	require.Len(t, a.Messages(), 1)
}

func TestRegistryChangeHook(t *testing.T) {
	r := NewRegistry()
	var counts []int
	r.SetChangeHook(func(n int) { counts = append(counts, n) })

	h := sessiontest.NewHandle("h")
	r.Register("u1", h)
	r.Register("u2", sessiontest.NewHandle("h2"))
	r.Unregister("u1", h)
	r.Unregister("u1", h)

	require.Equal(t, []int{1, 2, 1}, counts)
}

func TestRegistryConcurrentRegisterKeepsOneSession(t *testing.T) {
	r := NewRegistry()
	handles := make([]*sessiontest.Handle, 32)
	for i := range handles {
		handles[i] = sessiontest.NewHandle("h")
	}

	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h *sessiontest.Handle) {
			defer wg.Done()
			r.Register("u1", h)
			r.Unregister("u1", h)
			r.Register("u1", h)
		}(h)
	}
	wg.Wait()

	require.Equal(t, 1, r.Count())
}

func TestRegistryBroadcastExceptSkipsUser(t *testing.T) {
	r := NewRegistry()
	a := sessiontest.NewHandle("a")
	b := sessiontest.NewHandle("b")
	r.Register("a", a)
	r.Register("b", b)

	sent := r.BroadcastExcept("a", protocol.SystemEvent{Type: protocol.TypeSystemEvent, Code: "ping"})
	require.Equal(t, 1, sent)
	require.Empty(t, a.Messages())
	require.Len(t, b.Messages(), 1)
}

func TestRegistryChangeHookReportsCountsInOrder(t *testing.T) {
	r := NewRegistry()
	var counts []int
	r.SetChangeHook(func(n int) { counts = append(counts, n) })

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := sessiontest.NewHandle("h")
			user := fmt.Sprintf("u%d", i)
			r.Register(user, h)
			r.Unregister(user, h)
		}(i)
	}
	wg.Wait()

	require.Len(t, counts, 128)
	prev := 0
	for _, n := range counts {
		require.Contains(t, []int{prev - 1, prev + 1}, n)
		prev = n
	}
	require.Equal(t, 0, counts[len(counts)-1])
	require.Equal(t, r.Count(), counts[len(counts)-1])
}
