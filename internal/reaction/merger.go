package reaction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ent0n29/chatrelay/internal/logging"
	"github.com/ent0n29/chatrelay/internal/message"
	"github.com/ent0n29/chatrelay/internal/observability"
	"github.com/ent0n29/chatrelay/internal/protocol"
	"github.com/ent0n29/chatrelay/internal/session"
	"github.com/ent0n29/chatrelay/internal/store"
)

// Result is the outcome of one reaction toggle.
type Result struct {
	Message message.Message
	Action  message.ReactionAction
}

// Merger keeps at most one reaction per user on each message.
type Merger struct {
	notifier session.Notifier
	ledger   *message.Ledger
	writer   *store.Writer
	logger   *slog.Logger
	metrics  *observability.Metrics
}

func NewMerger(notifier session.Notifier, ledger *message.Ledger, writer *store.Writer, logger *slog.Logger, metrics *observability.Metrics) *Merger {
	return &Merger{
		notifier: notifier,
		ledger:   ledger,
		writer:   writer,
		logger:   logging.OrDefault(logger),
		metrics:  metrics,
	}
}

// Apply toggles or replaces userID's reaction on messageID, persists the new
// set and pushes it to the sender and receiver independently.
func (r *Merger) Apply(ctx context.Context, messageID, userID, emoji string) (Result, error) {
	// Pinned until the reaction write lands.
	r.ledger.Pin(messageID)
	if _, err := r.ledger.Resolve(ctx, []string{messageID}); err != nil {
		r.ledger.Unpin(messageID)
		return Result{}, fmt.Errorf("resolve message %s: %w", messageID, err)
	}
	m, action, err := r.ledger.React(messageID, userID, emoji)
	if err != nil {
		r.ledger.Unpin(messageID)
		return Result{}, err
	}
	r.metrics.ObserveReaction(string(action))
	if r.writer != nil {
		r.writer.SetReactions(m.ID, m.Reactions, func(error) { r.ledger.Unpin(m.ID) })
	} else {
		r.ledger.Unpin(m.ID)
	}

	update := protocol.ReactionUpdate{
		Type:      protocol.TypeReactionUpdate,
		MessageID: m.ID,
		Reactions: m.Reactions,
	}
	if update.Reactions == nil {
		update.Reactions = []message.Reaction{}
	}
	for _, participant := range []string{m.SenderID, m.ReceiverID} {
		if !r.notifier.Notify(participant, update) {
			r.logger.Debug("reaction update not delivered", "user_id", participant, "message_id", m.ID)
		}
	}
	return Result{Message: m, Action: action}, nil
}
