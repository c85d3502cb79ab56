//go:generate go run go.uber.org/mock/mockgen -source=types.go -destination=../mocks/mock_store.go -package=mocks
package store

import (
	"context"
	"time"

	"github.com/ent0n29/chatrelay/internal/message"
)

// Store is the boundary to the chat service's persistence. Every write is an
// idempotent "set" so a dropped or repeated call never corrupts state.
type Store interface {
	SetPresence(ctx context.Context, userID string, online bool, lastSeen time.Time) error
	LastSeen(ctx context.Context, userID string) (time.Time, bool, error)
	SetMessageStatus(ctx context.Context, ids []string, status message.Status) error
	SetReactions(ctx context.Context, messageID string, reactions []message.Reaction) error
	LoadMessages(ctx context.Context, ids []string) ([]message.Message, error)
	Close() error
}

// Recorder is implemented by the standalone stores, which keep their own copy
// of message metadata because no chat service owns it for them.
type Recorder interface {
	RecordMessage(ctx context.Context, m message.Message) error
}
