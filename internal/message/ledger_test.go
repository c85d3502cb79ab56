package message

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubLoader struct {
	messages map[string]Message
	calls    [][]string
	err      error
}

func (s *stubLoader) LoadMessages(_ context.Context, ids []string) ([]Message, error) {
	s.calls = append(s.calls, ids)
	if s.err != nil {
		return nil, s.err
	}
	var out []Message
	for _, id := range ids {
		if m, ok := s.messages[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func TestLedgerAdvanceIsMonotonic(t *testing.T) {
	l := NewLedger(10, nil)
	l.Put(Message{ID: "m1", SenderID: "a", ReceiverID: "b"})

	m, changed := l.Advance("m1", StatusRead)
	require.True(t, changed)
	require.Equal(t, StatusRead, m.Status)

	m, changed = l.Advance("m1", StatusDelivered)
	require.False(t, changed)
	require.Equal(t, StatusRead, m.Status)

	_, changed = l.Advance("m1", StatusRead)
	require.False(t, changed)
}

func TestLedgerPutNeverLowersStatus(t *testing.T) {
	l := NewLedger(10, nil)
	l.Put(Message{ID: "m1", Status: StatusRead})
	got := l.Put(Message{ID: "m1", Status: StatusDelivered})
	require.Equal(t, StatusRead, got.Status)
}

func TestLedgerResolveLoadsMissing(t *testing.T) {
	loader := &stubLoader{messages: map[string]Message{
		"m2": {ID: "m2", SenderID: "a", ReceiverID: "b"},
	}}
	l := NewLedger(10, loader)
	l.Put(Message{ID: "m1", SenderID: "a", ReceiverID: "b"})

	got, err := l.Resolve(context.Background(), []string{"m1", "m2", "m3"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "m1", got[0].ID)
	require.Equal(t, "m2", got[1].ID)
	require.Equal(t, StatusSent, got[1].Status)
	require.Equal(t, [][]string{{"m2", "m3"}}, loader.calls)

	_, err = l.Resolve(context.Background(), []string{"m2"})
	require.NoError(t, err)
	require.Len(t, loader.calls, 1, "cached message must not be reloaded")
}

func TestLedgerResolvePropagatesLoaderError(t *testing.T) {
	l := NewLedger(10, &stubLoader{err: errors.New("db down")})
	_, err := l.Resolve(context.Background(), []string{"m1"})
	require.Error(t, err)
}

func TestLedgerEvictsOldest(t *testing.T) {
	l := NewLedger(2, nil)
	l.Put(Message{ID: "m1"})
	l.Put(Message{ID: "m2"})
	l.Advance("m1", StatusDelivered)
	l.Put(Message{ID: "m3"})

	require.Equal(t, 2, l.Len())
	_, ok := l.Get("m2")
	require.False(t, ok)
	_, ok = l.Get("m1")
	require.True(t, ok)
}

func TestLedgerReactReturnsCopy(t *testing.T) {
	l := NewLedger(10, nil)
	l.Put(Message{ID: "m1"})

	m, action, err := l.React("m1", "u1", "👍")
	require.NoError(t, err)
	require.Equal(t, ReactionAdded, action)
	m.Reactions[0].Emoji = "x"

	stored, _ := l.Get("m1")
	require.Equal(t, "👍", stored.Reactions[0].Emoji)

	_, _, err = l.React("missing", "u1", "👍")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLedgerPinnedEntriesSurviveEviction(t *testing.T) {
	l := NewLedger(1, nil)
	l.Put(Message{ID: "m1"})
	l.Pin("m1")
	l.Pin("m1")

	l.Put(Message{ID: "m2"})
	l.Put(Message{ID: "m3"})
	_, ok := l.Get("m1")
	require.True(t, ok)
	_, ok = l.Get("m2")
	require.False(t, ok)
	require.Equal(t, 2, l.Len())

	l.Unpin("m1")
	_, ok = l.Get("m1")
	require.True(t, ok)

	l.Unpin("m1")
	_, ok = l.Get("m1")
	require.False(t, ok)
	_, ok = l.Get("m3")
	require.True(t, ok)
	require.Equal(t, 1, l.Len())
}
