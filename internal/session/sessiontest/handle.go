// Package sessiontest provides an in-memory session.Handle that records
// every frame it is sent.
package sessiontest

import (
	"sync"

	"github.com/ent0n29/chatrelay/internal/protocol"
)

type Handle struct {
	id string

	mu       sync.Mutex
	messages []protocol.Outbound
	closed   bool
	refuse   bool
}

func NewHandle(id string) *Handle {
	return &Handle{id: id}
}

func (h *Handle) ID() string { return h.id }

func (h *Handle) Send(msg protocol.Outbound) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || h.refuse {
		return false
	}
	h.messages = append(h.messages, msg)
	return true
}

func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Refuse makes subsequent sends fail as if the outbound queue were full.
func (h *Handle) Refuse(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refuse = v
}

func (h *Handle) Messages() []protocol.Outbound {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]protocol.Outbound(nil), h.messages...)
}

func (h *Handle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
}

// Of returns the frames of type T that h received, in order.
func Of[T protocol.Outbound](h *Handle) []T {
	var out []T
	for _, m := range h.Messages() {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
