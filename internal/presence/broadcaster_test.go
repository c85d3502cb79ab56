package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ent0n29/chatrelay/internal/mocks"
	"github.com/ent0n29/chatrelay/internal/protocol"
	"github.com/ent0n29/chatrelay/internal/session"
	"github.com/ent0n29/chatrelay/internal/session/sessiontest"
	"github.com/ent0n29/chatrelay/internal/store"
)

func TestOnlineBroadcastsAndPersists(t *testing.T) {
	reg := session.NewRegistry()
	watcher := sessiontest.NewHandle("w")
	reg.Register("watcher", watcher)

	mem := store.NewInMemoryStore()
	w := store.NewWriter(mem, store.WriterConfig{}, nil, nil)
	b := NewBroadcaster(reg, w, nil, nil)

	reg.Register("alice", sessiontest.NewHandle("a"))
	b.Online("alice")
	w.Close()

	got := sessiontest.Of[protocol.UserStatus](watcher)
	require.Len(t, got, 1)
	require.Equal(t, "alice", got[0].UserID)
	require.True(t, got[0].IsOnline)
	require.Nil(t, got[0].LastSeen)
	require.True(t, mem.Online("alice"))
}

func TestOfflineCarriesLastSeen(t *testing.T) {
	reg := session.NewRegistry()
	watcher := sessiontest.NewHandle("w")
	reg.Register("watcher", watcher)

	mem := store.NewInMemoryStore()
	w := store.NewWriter(mem, store.WriterConfig{}, nil, nil)
	b := NewBroadcaster(reg, w, nil, nil)
	fixed := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	b.Offline("alice")
	w.Close()

	got := sessiontest.Of[protocol.UserStatus](watcher)
	require.Len(t, got, 1)
	require.False(t, got[0].IsOnline)
	require.NotNil(t, got[0].LastSeen)
	require.True(t, fixed.Equal(*got[0].LastSeen))

	seen, ok, err := mem.LastSeen(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, fixed.Equal(seen))
	require.False(t, mem.Online("alice"))
}

func TestQueryPrefersRegistryThenMemoryThenStore(t *testing.T) {
	reg := session.NewRegistry()
	mem := store.NewInMemoryStore()
	stored := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, mem.SetPresence(context.Background(), "carol", false, stored))

	w := store.NewWriter(mem, store.WriterConfig{}, nil, nil)
	defer w.Close()
	b := NewBroadcaster(reg, w, nil, nil)

	reg.Register("alice", sessiontest.NewHandle("a"))
	st := b.Query(context.Background(), "alice")
	require.True(t, st.IsOnline)
	require.NotNil(t, st.LastSeen)

	b.Offline("bob")
	st = b.Query(context.Background(), "bob")
	require.False(t, st.IsOnline)
	require.NotNil(t, st.LastSeen)

	st = b.Query(context.Background(), "carol")
	require.False(t, st.IsOnline)
	require.True(t, stored.Equal(*st.LastSeen))

	st = b.Query(context.Background(), "nobody")
	require.False(t, st.IsOnline)
	require.Nil(t, st.LastSeen)

	reply := st.Reply("req-7")
	require.Equal(t, protocol.TypeUserStatusReply, reply.Type)
	require.Equal(t, "req-7", reply.RequestID)
}

func TestPersistenceFailureDoesNotSurface(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockStore(ctrl)
	done := make(chan struct{})
	s.EXPECT().SetPresence(gomock.Any(), "alice", true, gomock.Any()).
		DoAndReturn(func(context.Context, string, bool, time.Time) error {
			close(done)
			return errors.New("store down")
		})
	s.EXPECT().LastSeen(gomock.Any(), "ghost").Return(time.Time{}, false, errors.New("store down"))

	reg := session.NewRegistry()
	watcher := sessiontest.NewHandle("w")
	reg.Register("watcher", watcher)
	w := store.NewWriter(s, store.WriterConfig{}, nil, nil)
	defer w.Close()
	b := NewBroadcaster(reg, w, nil, nil)

	b.Online("alice")
	<-done
	require.Len(t, sessiontest.Of[protocol.UserStatus](watcher), 1)

	st := b.Query(context.Background(), "ghost")
	require.Nil(t, st.LastSeen)
}

func TestLastSeenIsReleasedOncePersisted(t *testing.T) {
	reg := session.NewRegistry()
	mem := store.NewInMemoryStore()
	w := store.NewWriter(mem, store.WriterConfig{}, nil, nil)
	b := NewBroadcaster(reg, w, nil, nil)

	for _, user := range []string{"alice", "bob", "carol"} {
		b.Offline(user)
	}
	w.Close()

	require.Zero(t, b.pending())
	st := b.Query(context.Background(), "bob")
	require.NotNil(t, st.LastSeen)
}

func TestLastSeenKeptWhenStoreFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := mocks.NewMockStore(ctrl)
	s.EXPECT().SetPresence(gomock.Any(), "alice", false, gomock.Any()).Return(errors.New("store down"))

	reg := session.NewRegistry()
	w := store.NewWriter(s, store.WriterConfig{}, nil, nil)
	b := NewBroadcaster(reg, w, nil, nil)
	fixed := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	b.Offline("alice")
	w.Close()

	require.Equal(t, 1, b.pending())
	st := b.Query(context.Background(), "alice")
	require.NotNil(t, st.LastSeen)
	require.True(t, fixed.Equal(*st.LastSeen))
}
