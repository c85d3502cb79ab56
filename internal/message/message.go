package message

import (
	"fmt"
	"strings"
	"time"
)

// Status is the delivery state of a message. Statuses only move forward:
// sent < delivered < read.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// ParseStatus accepts the wire spellings used by the chat API, including the
// legacy "send" spelling for StatusSent.
func ParseStatus(v string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "sent", "send", "":
		return StatusSent, true
	case "delivered":
		return StatusDelivered, true
	case "read":
		return StatusRead, true
	default:
		return "", false
	}
}

func (s *Status) UnmarshalText(b []byte) error {
	v, ok := ParseStatus(string(b))
	if !ok {
		return fmt.Errorf("unknown message status %q", string(b))
	}
	*s = v
	return nil
}

func (s Status) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Before reports whether s is strictly lower than o.
func (s Status) Before(o Status) bool {
	return s.rank() < o.rank()
}

type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentVideo ContentType = "video"
)

// Reaction is one user's emoji on a message. A message holds at most one
// reaction per user.
type Reaction struct {
	UserID string `json:"user"`
	Emoji  string `json:"emoji"`
}

// Message is the relay's view of a persisted chat message. Content is carried
// through to the receiver untouched; the relay only writes Status and
// Reactions.
type Message struct {
	ID             string      `json:"id" validate:"required"`
	ConversationID string      `json:"conversationId" validate:"required"`
	SenderID       string      `json:"senderId" validate:"required"`
	ReceiverID     string      `json:"receiverId" validate:"required"`
	ContentType    ContentType `json:"contentType" validate:"omitempty,oneof=text image video"`
	Content        string      `json:"content,omitempty"`
	MediaURL       string      `json:"imageOrVideoUrl,omitempty"`
	Status         Status      `json:"messageStatus"`
	Reactions      []Reaction  `json:"reactions"`
	CreatedAt      time.Time   `json:"createdAt"`
}

func (m Message) clone() Message {
	c := m
	if m.Reactions != nil {
		c.Reactions = append([]Reaction(nil), m.Reactions...)
	}
	return c
}

// ReactionAction describes how ApplyReaction changed a reaction list.
type ReactionAction string

const (
	ReactionAdded    ReactionAction = "added"
	ReactionRemoved  ReactionAction = "removed"
	ReactionReplaced ReactionAction = "replaced"
)

// ApplyReaction toggles userID's emoji on rs. Re-submitting the same emoji
// removes it, a different emoji replaces the existing entry in place.
func ApplyReaction(rs []Reaction, userID, emoji string) ([]Reaction, ReactionAction) {
	for i, r := range rs {
		if r.UserID != userID {
			continue
		}
		if r.Emoji == emoji {
			out := make([]Reaction, 0, len(rs)-1)
			out = append(out, rs[:i]...)
			return append(out, rs[i+1:]...), ReactionRemoved
		}
		out := append([]Reaction(nil), rs...)
		out[i].Emoji = emoji
		return out, ReactionReplaced
	}
	out := make([]Reaction, 0, len(rs)+1)
	out = append(out, rs...)
	return append(out, Reaction{UserID: userID, Emoji: emoji}), ReactionAdded
}
