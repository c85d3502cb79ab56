package typing

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ent0n29/chatrelay/internal/logging"
	"github.com/ent0n29/chatrelay/internal/observability"
	"github.com/ent0n29/chatrelay/internal/protocol"
	"github.com/ent0n29/chatrelay/internal/session"
)

const DefaultTimeout = 3 * time.Second

type entry struct {
	receiverID string
	gen        uint64
	timer      *time.Timer
}

// Coordinator tracks who is typing in which conversation. Each entry owns one
// expiry timer; the generation counter makes a timer that fired after being
// stopped or re-armed a no-op.
type Coordinator struct {
	notifier session.Notifier
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu      sync.Mutex
	gen     uint64
	entries map[string]map[string]*entry
}

func NewCoordinator(notifier session.Notifier, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{
		notifier: notifier,
		timeout:  timeout,
		logger:   logging.OrDefault(logger),
		metrics:  metrics,
		entries:  make(map[string]map[string]*entry),
	}
}

// Start moves (userID, conversationID) to Typing. Only the Idle to Typing
// edge notifies the receiver; repeated starts just re-arm the timer.
func (c *Coordinator) Start(userID, conversationID, receiverID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	gen := c.gen
	byConv := c.entries[userID]
	if byConv == nil {
		byConv = make(map[string]*entry)
		c.entries[userID] = byConv
	}
	if e, ok := byConv[conversationID]; ok {
		e.timer.Stop()
		e.gen = gen
		e.receiverID = receiverID
		e.timer = c.arm(userID, conversationID, gen)
		c.metrics.ObserveTyping("rearm")
		return
	}

	byConv[conversationID] = &entry{
		receiverID: receiverID,
		gen:        gen,
		timer:      c.arm(userID, conversationID, gen),
	}
	c.metrics.ObserveTyping("start")
	c.emit(userID, conversationID, receiverID, true)
}

// Stop moves the pair back to Idle. A stop without a prior start is ignored.
func (c *Coordinator) Stop(userID, conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.remove(userID, conversationID)
	if !ok {
		return
	}
	e.timer.Stop()
	c.metrics.ObserveTyping("stop")
	c.emit(userID, conversationID, e.receiverID, false)
}

// DropUser discards every entry owned by userID without notifying anyone.
func (c *Coordinator) DropUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries[userID] {
		e.timer.Stop()
		c.metrics.ObserveTyping("drop")
	}
	delete(c.entries, userID)
}

// Typing reports whether the pair is currently in the Typing state.
func (c *Coordinator) Typing(userID, conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[userID][conversationID]
	return ok
}

func (c *Coordinator) arm(userID, conversationID string, gen uint64) *time.Timer {
	return time.AfterFunc(c.timeout, func() {
		c.expire(userID, conversationID, gen)
	})
}

func (c *Coordinator) expire(userID, conversationID string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[userID][conversationID]
	if !ok || e.gen != gen {
		return
	}
	c.remove(userID, conversationID)
	c.metrics.ObserveTyping("expire")
	c.logger.Debug("typing expired", "user_id", userID, "conversation_id", conversationID)
	c.emit(userID, conversationID, e.receiverID, false)
}

func (c *Coordinator) remove(userID, conversationID string) (*entry, bool) {
	byConv := c.entries[userID]
	e, ok := byConv[conversationID]
	if !ok {
		return nil, false
	}
	delete(byConv, conversationID)
	if len(byConv) == 0 {
		delete(c.entries, userID)
	}
	return e, true
}

// emit runs under c.mu so notifications for one pair keep their order.
// Notifier sends never block.
func (c *Coordinator) emit(userID, conversationID, receiverID string, typing bool) {
	c.notifier.Notify(receiverID, protocol.UserTyping{
		Type:           protocol.TypeUserTyping,
		UserID:         userID,
		ConversationID: conversationID,
		IsTyping:       typing,
	})
}
