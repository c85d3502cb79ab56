package message

import (
	"container/list"
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("message not found")

// Loader fetches messages the ledger has not seen yet.
type Loader interface {
	LoadMessages(ctx context.Context, ids []string) ([]Message, error)
}

// Ledger is a bounded, concurrency-safe view of recently active messages.
// The oldest entries are evicted once capacity is reached and are reloaded
// through the Loader on demand. Pinned entries are never evicted, so the
// ledger may exceed capacity while writes for them are in flight.
type Ledger struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
	pins     map[string]int
	loader   Loader
}

func NewLedger(capacity int, loader Loader) *Ledger {
	if capacity <= 0 {
		capacity = 10000
	}
	return &Ledger{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
		pins:     make(map[string]int),
		loader:   loader,
	}
}

// Put records m, keeping the higher of the stored and incoming status.
func (l *Ledger) Put(m Message) Message {
	if m.Status == "" {
		m.Status = StatusSent
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.items[m.ID]; ok {
		cur := el.Value.(*Message)
		if m.Status.Before(cur.Status) {
			m.Status = cur.Status
		}
		*cur = m.clone()
		l.order.MoveToFront(el)
		return cur.clone()
	}
	l.insertLocked(m.clone())
	return m.clone()
}

func (l *Ledger) Get(id string) (Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	el, ok := l.items[id]
	if !ok {
		return Message{}, false
	}
	return el.Value.(*Message).clone(), true
}

// Resolve returns the messages for ids that are known to the ledger or the
// loader, in the order of ids. Unknown ids are skipped.
func (l *Ledger) Resolve(ctx context.Context, ids []string) ([]Message, error) {
	var missing []string
	l.mu.Lock()
	for _, id := range ids {
		if _, ok := l.items[id]; !ok {
			missing = append(missing, id)
		}
	}
	l.mu.Unlock()

	if len(missing) > 0 && l.loader != nil {
		loaded, err := l.loader.LoadMessages(ctx, missing)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		for _, m := range loaded {
			if _, ok := l.items[m.ID]; ok {
				continue
			}
			if m.Status == "" {
				m.Status = StatusSent
			}
			l.insertLocked(m.clone())
		}
		l.mu.Unlock()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, 0, len(ids))
	for _, id := range ids {
		if el, ok := l.items[id]; ok {
			out = append(out, el.Value.(*Message).clone())
		}
	}
	return out, nil
}

// Advance moves the message to status if status is higher than the current
// one. Lower or equal statuses are a no-op and report false.
func (l *Ledger) Advance(id string, status Status) (Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	el, ok := l.items[id]
	if !ok {
		return Message{}, false
	}
	m := el.Value.(*Message)
	if !m.Status.Before(status) {
		return m.clone(), false
	}
	m.Status = status
	l.order.MoveToFront(el)
	return m.clone(), true
}

// React applies userID's emoji to the message with toggle/replace semantics.
func (l *Ledger) React(id, userID, emoji string) (Message, ReactionAction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	el, ok := l.items[id]
	if !ok {
		return Message{}, "", ErrNotFound
	}
	m := el.Value.(*Message)
	var action ReactionAction
	m.Reactions, action = ApplyReaction(m.Reactions, userID, emoji)
	l.order.MoveToFront(el)
	return m.clone(), action, nil
}

func (l *Ledger) Forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.items[id]; ok {
		l.order.Remove(el)
		delete(l.items, id)
	}
}

// Pin keeps id resident until a matching Unpin. Pins nest.
func (l *Ledger) Pin(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pins[id]++
}

func (l *Ledger) Unpin(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pins[id] <= 1 {
		delete(l.pins, id)
	} else {
		l.pins[id]--
	}
	l.evictLocked()
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

func (l *Ledger) insertLocked(m Message) {
	l.items[m.ID] = l.order.PushFront(&m)
	l.evictLocked()
}

func (l *Ledger) evictLocked() {
	front := l.order.Front()
	for el := l.order.Back(); el != nil && el != front && l.order.Len() > l.capacity; {
		prev := el.Prev()
		id := el.Value.(*Message).ID
		if l.pins[id] == 0 {
			l.order.Remove(el)
			delete(l.items, id)
		}
		el = prev
	}
}
