package call

import (
	"bytes"
	"encoding/json"
)

// IceQueue buffers the candidates addressed to one side of a call until that
// side has applied the peer's remote description. It is not safe for
// concurrent use; the Coordinator guards it.
type IceQueue struct {
	ready   bool
	pending []json.RawMessage
	seen    map[string]struct{}
}

func NewIceQueue() *IceQueue {
	return &IceQueue{seen: make(map[string]struct{})}
}

// Offer reports whether candidate should be forwarded now. When the side is
// not ready yet the candidate is queued instead; exact duplicates are
// dropped in both cases and report accepted=false.
func (q *IceQueue) Offer(candidate json.RawMessage) (forward bool, accepted bool) {
	key := candidateKey(candidate)
	if _, dup := q.seen[key]; dup {
		return false, false
	}
	q.seen[key] = struct{}{}
	if q.ready {
		return true, true
	}
	q.pending = append(q.pending, append(json.RawMessage(nil), candidate...))
	return false, true
}

// Drain marks the side ready and hands back the queued candidates in arrival
// order. Later calls return nothing.
func (q *IceQueue) Drain() []json.RawMessage {
	q.ready = true
	out := q.pending
	q.pending = nil
	return out
}

func (q *IceQueue) Ready() bool { return q.ready }

func (q *IceQueue) Len() int { return len(q.pending) }

func candidateKey(candidate json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, candidate); err != nil {
		return string(candidate)
	}
	return buf.String()
}
