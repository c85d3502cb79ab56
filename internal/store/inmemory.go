package store

import (
	"context"
	"sync"
	"time"

	"github.com/ent0n29/chatrelay/internal/message"
)

type presenceRecord struct {
	online   bool
	lastSeen time.Time
}

// InMemoryStore is a simple in-process store for local/dev use.
type InMemoryStore struct {
	mu       sync.RWMutex
	presence map[string]presenceRecord
	messages map[string]message.Message
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		presence: make(map[string]presenceRecord),
		messages: make(map[string]message.Message),
	}
}

func (s *InMemoryStore) SetPresence(_ context.Context, userID string, online bool, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence[userID] = presenceRecord{online: online, lastSeen: lastSeen.UTC()}
	return nil
}

func (s *InMemoryStore) LastSeen(_ context.Context, userID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presence[userID]
	if !ok || p.lastSeen.IsZero() {
		return time.Time{}, false, nil
	}
	return p.lastSeen, true, nil
}

// Online reports the persisted presence flag.
func (s *InMemoryStore) Online(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presence[userID].online
}

func (s *InMemoryStore) RecordMessage(_ context.Context, m message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.messages[m.ID]; ok && m.Status.Before(cur.Status) {
		m.Status = cur.Status
	}
	if m.Status == "" {
		m.Status = message.StatusSent
	}
	m.Reactions = append([]message.Reaction(nil), m.Reactions...)
	s.messages[m.ID] = m
	return nil
}

func (s *InMemoryStore) SetMessageStatus(_ context.Context, ids []string, status message.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		m, ok := s.messages[id]
		if !ok || !m.Status.Before(status) {
			continue
		}
		m.Status = status
		s.messages[id] = m
	}
	return nil
}

func (s *InMemoryStore) SetReactions(_ context.Context, messageID string, reactions []message.Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return nil
	}
	m.Reactions = append([]message.Reaction(nil), reactions...)
	s.messages[messageID] = m
	return nil
}

func (s *InMemoryStore) LoadMessages(_ context.Context, ids []string) ([]message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]message.Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := s.messages[id]; ok {
			m.Reactions = append([]message.Reaction(nil), m.Reactions...)
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
