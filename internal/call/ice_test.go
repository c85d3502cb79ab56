package call

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIceQueueOrdersAndDedups(t *testing.T) {
	q := NewIceQueue()
	a := json.RawMessage(`{"candidate":"A"}`)
	b := json.RawMessage(`{"candidate":"B"}`)
	c := json.RawMessage(`{"candidate":"C"}`)

	for _, cand := range []json.RawMessage{a, b, c} {
		forward, accepted := q.Offer(cand)
		require.False(t, forward)
		require.True(t, accepted)
	}
	_, accepted := q.Offer(json.RawMessage(`{ "candidate": "B" }`))
	require.False(t, accepted)
	require.Equal(t, 3, q.Len())

	require.Equal(t, []json.RawMessage{a, b, c}, q.Drain())
	require.True(t, q.Ready())
	require.Empty(t, q.Drain())
	require.Equal(t, 0, q.Len())
}

func TestIceQueueForwardsOnceReady(t *testing.T) {
	q := NewIceQueue()
	require.Empty(t, q.Drain())

	forward, accepted := q.Offer(json.RawMessage(`{"candidate":"A"}`))
	require.True(t, forward)
	require.True(t, accepted)
	require.Equal(t, 0, q.Len())

	forward, accepted = q.Offer(json.RawMessage(`{"candidate":"A"}`))
	require.False(t, forward)
	require.False(t, accepted)
}
