package session

import (
	"sync"
	"time"

	"github.com/ent0n29/chatrelay/internal/protocol"
)

// Handle is one live transport connection. Send must never block: a
// connection that cannot accept the frame reports false.
type Handle interface {
	ID() string
	Send(msg protocol.Outbound) bool
	Close()
}

// Notifier delivers frames to whichever connection currently represents a
// user. Lookups happen at send time, never cached.
type Notifier interface {
	Notify(userID string, msg protocol.Outbound) bool
	Online(userID string) bool
}

// Session binds a user to the connection that announced it.
type Session struct {
	UserID   string    `json:"user_id"`
	Handle   Handle    `json:"-"`
	JoinedAt time.Time `json:"joined_at"`
}

// Registry maps users to their single active connection. The last
// connection to register wins.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
	onChange func(count int)
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Session)}
}

// SetChangeHook installs a callback invoked with the number of registered
// users after every successful register or unregister. The hook runs under
// the registry lock so counts are reported in order; it must not call back
// into the registry.
func (r *Registry) SetChangeHook(hook func(count int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = hook
}

// Register binds userID to h, overwriting any previous binding. It returns
// the new session, the handle it replaced (nil on a fresh login) and whether
// the login was fresh.
func (r *Registry) Register(userID string, h Handle) (Session, Handle, bool) {
	s := Session{UserID: userID, Handle: h, JoinedAt: time.Now().UTC()}

	r.mu.Lock()
	prev, existed := r.sessions[userID]
	r.sessions[userID] = s
	r.changedLocked()
	r.mu.Unlock()

	if !existed {
		return s, nil, true
	}
	if prev.Handle == h {
		return s, nil, false
	}
	return s, prev.Handle, false
}

// Unregister removes userID only while it is still bound to h, so a late
// disconnect from a superseded connection cannot evict its replacement.
func (r *Registry) Unregister(userID string, h Handle) bool {
	r.mu.Lock()
	cur, ok := r.sessions[userID]
	if !ok || cur.Handle != h {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, userID)
	r.changedLocked()
	r.mu.Unlock()
	return true
}

func (r *Registry) changedLocked() {
	if r.onChange != nil {
		r.onChange(len(r.sessions))
	}
}

func (r *Registry) Lookup(userID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	if !ok {
		return nil, false
	}
	return s.Handle, true
}

func (r *Registry) Get(userID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	return s, ok
}

func (r *Registry) Online(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Notify sends msg to the user's current connection.
func (r *Registry) Notify(userID string, msg protocol.Outbound) bool {
	h, ok := r.Lookup(userID)
	if !ok {
		return false
	}
	return h.Send(msg)
}

// Broadcast sends msg to every registered connection and returns how many
// accepted it.
func (r *Registry) Broadcast(msg protocol.Outbound) int {
	return r.BroadcastExcept("", msg)
}

// BroadcastExcept is Broadcast skipping the connection of userID.
func (r *Registry) BroadcastExcept(userID string, msg protocol.Outbound) int {
	r.mu.RLock()
	handles := make([]Handle, 0, len(r.sessions))
	for id, s := range r.sessions {
		if userID != "" && id == userID {
			continue
		}
		handles = append(handles, s.Handle)
	}
	r.mu.RUnlock()

	sent := 0
	for _, h := range handles {
		if h.Send(msg) {
			sent++
		}
	}
	return sent
}
