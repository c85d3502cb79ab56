package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/ent0n29/chatrelay/internal/logging"
	"github.com/ent0n29/chatrelay/internal/message"
	"github.com/ent0n29/chatrelay/internal/observability"
	"github.com/ent0n29/chatrelay/internal/protocol"
	"github.com/ent0n29/chatrelay/internal/session"
	"github.com/ent0n29/chatrelay/internal/store"
)

var ErrInvalidMessage = errors.New("invalid message")

// Tracker owns the Sent < Delivered < Read progression of messages that pass
// through the relay.
type Tracker struct {
	notifier session.Notifier
	ledger   *message.Ledger
	writer   *store.Writer
	logger   *slog.Logger
	metrics  *observability.Metrics
}

func NewTracker(notifier session.Notifier, ledger *message.Ledger, writer *store.Writer, logger *slog.Logger, metrics *observability.Metrics) *Tracker {
	return &Tracker{
		notifier: notifier,
		ledger:   ledger,
		writer:   writer,
		logger:   logging.OrDefault(logger),
		metrics:  metrics,
	}
}

// Created registers a freshly persisted message. A successful forward of
// receive_message to the receiver is the delivery check: it advances the
// message to Delivered and tells the sender.
func (t *Tracker) Created(m message.Message) (message.Message, error) {
	if err := protocol.Validate(m); err != nil {
		return message.Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m = t.ledger.Put(m)
	t.metrics.ObserveMessageStatus(string(message.StatusSent))
	if t.writer != nil {
		t.writer.RecordMessage(m)
	}

	if !t.notifier.Notify(m.ReceiverID, protocol.ReceiveMessage{Type: protocol.TypeReceiveMessage, Message: m}) {
		return m, nil
	}
	delivered, ok := t.ledger.Advance(m.ID, message.StatusDelivered)
	if !ok {
		return m, nil
	}
	t.metrics.ObserveMessageStatus(string(message.StatusDelivered))
	if t.writer != nil {
		t.writer.SetMessageStatus([]string{m.ID}, message.StatusDelivered)
	}
	t.notifier.Notify(m.SenderID, statusUpdate(m.ID, message.StatusDelivered))
	return delivered, nil
}

// MarkRead advances every message in ids addressed to readerID to Read and
// returns the ids that actually changed. Each sender gets one update per
// message; offline senders are skipped but the store write still happens.
func (t *Tracker) MarkRead(ctx context.Context, readerID string, ids []string) ([]string, error) {
	msgs, err := t.ledger.Resolve(ctx, lo.Uniq(ids))
	if err != nil {
		return nil, fmt.Errorf("resolve messages: %w", err)
	}

	var advanced []message.Message
	for _, m := range msgs {
		if m.ReceiverID != readerID {
			continue
		}
		if next, ok := t.ledger.Advance(m.ID, message.StatusRead); ok {
			advanced = append(advanced, next)
		}
	}
	if len(advanced) == 0 {
		return nil, nil
	}

	readIDs := lo.Map(advanced, func(m message.Message, _ int) string { return m.ID })
	if t.writer != nil {
		t.writer.SetMessageStatus(readIDs, message.StatusRead)
	}

	for senderID, group := range lo.GroupBy(advanced, func(m message.Message) string { return m.SenderID }) {
		for _, m := range group {
			t.metrics.ObserveMessageStatus(string(message.StatusRead))
			if !t.notifier.Notify(senderID, statusUpdate(m.ID, message.StatusRead)) {
				t.logger.Debug("sender offline, read receipt not pushed", "sender_id", senderID, "message_id", m.ID)
			}
		}
	}
	return readIDs, nil
}

// Deleted tells the receiver a message is gone and drops it from the ledger.
func (t *Tracker) Deleted(messageID, receiverID string) bool {
	t.ledger.Forget(messageID)
	return t.notifier.Notify(receiverID, protocol.MessageDeleted{
		Type:      protocol.TypeMessageDeleted,
		MessageID: messageID,
	})
}

func statusUpdate(id string, status message.Status) protocol.MessageStatusUpdate {
	return protocol.MessageStatusUpdate{
		Type:      protocol.TypeMessageStatusUpdate,
		MessageID: id,
		Status:    status,
	}
}
