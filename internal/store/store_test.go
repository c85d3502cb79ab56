package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ent0n29/chatrelay/internal/message"
)

type recordingStore interface {
	Store
	Recorder
}

func exerciseStore(t *testing.T, s recordingStore) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.LastSeen(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetPresence(ctx, "u1", false, at))
	seen, ok, err := s.LastSeen(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, at.Equal(seen))

	require.NoError(t, s.RecordMessage(ctx, message.Message{ID: "m1", ConversationID: "c1", SenderID: "a", ReceiverID: "b"}))
	require.NoError(t, s.SetMessageStatus(ctx, []string{"m1", "missing"}, message.StatusRead))
	require.NoError(t, s.SetMessageStatus(ctx, []string{"m1"}, message.StatusDelivered))
	require.NoError(t, s.SetReactions(ctx, "m1", []message.Reaction{{UserID: "b", Emoji: "😂"}}))

	got, err := s.LoadMessages(ctx, []string{"m1", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, message.StatusRead, got[0].Status)
	require.Equal(t, []message.Reaction{{UserID: "b", Emoji: "😂"}}, got[0].Reactions)

	require.NoError(t, s.RecordMessage(ctx, message.Message{ID: "m1", SenderID: "a", ReceiverID: "b", Status: message.StatusSent}))
	got, err = s.LoadMessages(ctx, []string{"m1"})
	require.NoError(t, err)
	require.Equal(t, message.StatusRead, got[0].Status, "recording again must not regress status")
}

func TestInMemoryStore(t *testing.T) {
	s := NewInMemoryStore()
	exerciseStore(t, s)
	require.False(t, s.Online("u1"))
}

func TestBadgerStore(t *testing.T) {
	s, err := OpenBadgerStore("")
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestBadgerStoreOnDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.SetPresence(context.Background(), "u1", true, time.Now()))
	require.NoError(t, s.Close())

	s, err = OpenBadgerStore(dir)
	require.NoError(t, err)
	defer s.Close()
	_, ok, err := s.LastSeen(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNewStoreDefaultsToInMemory(t *testing.T) {
	s, mode, err := NewStore(context.Background(), "", "")
	require.NoError(t, err)
	require.Equal(t, "in-memory", mode)
	require.IsType(t, &InMemoryStore{}, s)
}
