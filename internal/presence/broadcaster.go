package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ent0n29/chatrelay/internal/logging"
	"github.com/ent0n29/chatrelay/internal/observability"
	"github.com/ent0n29/chatrelay/internal/protocol"
	"github.com/ent0n29/chatrelay/internal/session"
	"github.com/ent0n29/chatrelay/internal/store"
)

// Status is a point-in-time view of one user's presence.
type Status struct {
	UserID   string     `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen"`
}

// Broadcaster turns registry transitions into user_status notifications and
// persists them through the write-behind writer. lastSeen only holds offline
// transitions the store has not confirmed yet.
type Broadcaster struct {
	registry *session.Registry
	writer   *store.Writer
	logger   *slog.Logger
	metrics  *observability.Metrics
	now      func() time.Time

	mu       sync.RWMutex
	lastSeen map[string]time.Time
}

func NewBroadcaster(registry *session.Registry, writer *store.Writer, logger *slog.Logger, metrics *observability.Metrics) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		writer:   writer,
		logger:   logging.OrDefault(logger),
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
		lastSeen: make(map[string]time.Time),
	}
}

// Online announces a fresh login. Replacement logins must not call it.
func (b *Broadcaster) Online(userID string) {
	now := b.now()
	b.mu.Lock()
	delete(b.lastSeen, userID)
	b.mu.Unlock()

	sent := b.registry.Broadcast(protocol.UserStatus{
		Type:     protocol.TypeUserStatus,
		UserID:   userID,
		IsOnline: true,
	})
	b.metrics.ObservePresence("online")
	b.logger.Debug("user online", "user_id", userID, "notified", sent)
	if b.writer != nil {
		b.writer.SetPresence(userID, true, now, nil)
	}
}

// Offline announces a successful unregister.
func (b *Broadcaster) Offline(userID string) {
	now := b.now()
	b.mu.Lock()
	b.lastSeen[userID] = now
	b.mu.Unlock()

	sent := b.registry.Broadcast(protocol.UserStatus{
		Type:     protocol.TypeUserStatus,
		UserID:   userID,
		IsOnline: false,
		LastSeen: &now,
	})
	b.metrics.ObservePresence("offline")
	b.logger.Debug("user offline", "user_id", userID, "notified", sent)
	if b.writer != nil {
		b.writer.SetPresence(userID, false, now, func(err error) {
			if err == nil {
				b.forget(userID, now)
			}
		})
	}
}

// forget drops the in-memory lastSeen once the store holds it, unless a
// newer transition replaced it meanwhile.
func (b *Broadcaster) forget(userID string, seen time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.lastSeen[userID]; ok && cur.Equal(seen) {
		delete(b.lastSeen, userID)
	}
}

func (b *Broadcaster) pending() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.lastSeen)
}

// Query answers from the registry first, then the last transition seen by
// this process, then the external store. A store failure yields an unknown
// lastSeen, never an error.
func (b *Broadcaster) Query(ctx context.Context, userID string) Status {
	if b.registry.Online(userID) {
		now := b.now()
		return Status{UserID: userID, IsOnline: true, LastSeen: &now}
	}

	b.mu.RLock()
	seen, ok := b.lastSeen[userID]
	b.mu.RUnlock()
	if ok {
		return Status{UserID: userID, LastSeen: &seen}
	}

	if b.writer == nil {
		return Status{UserID: userID}
	}
	ctx, cancel := context.WithTimeout(ctx, b.writer.Timeout())
	defer cancel()
	seen, ok, err := b.writer.Store().LastSeen(ctx, userID)
	if err != nil {
		b.metrics.ObservePersist("last_seen", "error")
		b.logger.Warn("last seen lookup failed", "user_id", userID, "err", err)
		return Status{UserID: userID}
	}
	if !ok {
		return Status{UserID: userID}
	}
	return Status{UserID: userID, LastSeen: &seen}
}

// Reply wraps a query result for the requesting connection.
func (s Status) Reply(requestID string) protocol.UserStatusReply {
	return protocol.UserStatusReply{
		Type:      protocol.TypeUserStatusReply,
		RequestID: requestID,
		UserID:    s.UserID,
		IsOnline:  s.IsOnline,
		LastSeen:  s.LastSeen,
	}
}
