package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ent0n29/chatrelay/internal/call"
	"github.com/ent0n29/chatrelay/internal/delivery"
	"github.com/ent0n29/chatrelay/internal/logging"
	"github.com/ent0n29/chatrelay/internal/message"
	"github.com/ent0n29/chatrelay/internal/observability"
	"github.com/ent0n29/chatrelay/internal/presence"
	"github.com/ent0n29/chatrelay/internal/protocol"
	"github.com/ent0n29/chatrelay/internal/reaction"
	"github.com/ent0n29/chatrelay/internal/session"
	"github.com/ent0n29/chatrelay/internal/statusfeed"
	"github.com/ent0n29/chatrelay/internal/typing"
)

// Error codes sent in error_event frames.
const (
	CodeInvalidMessage  = "invalid_client_message"
	CodeNotConnected    = "not_connected"
	CodeMessageNotFound = "message_not_found"
	CodeMarkReadFailed  = "mark_read_failed"
	CodeReactionFailed  = "reaction_failed"
	CodeNotParticipant  = "not_participant"
	CodeCallExists      = "call_exists"
	CodeSelfCall        = "self_call"
	CodeSessionReplaced = "session_replaced"
)

// Components are the state owners an inbound frame can be routed to.
type Components struct {
	Registry  *session.Registry
	Presence  *presence.Broadcaster
	Typing    *typing.Coordinator
	Delivery  *delivery.Tracker
	Reactions *reaction.Merger
	Calls     *call.Coordinator
	Statuses  *statusfeed.Feed
}

// Relay routes every inbound frame to exactly one component.
type Relay struct {
	Components
	logger  *slog.Logger
	metrics *observability.Metrics
}

func New(c Components, logger *slog.Logger, metrics *observability.Metrics) *Relay {
	if metrics != nil {
		c.Registry.SetChangeHook(metrics.SetActiveConnections)
	}
	return &Relay{
		Components: c,
		logger:     logging.OrDefault(logger),
		metrics:    metrics,
	}
}

// Peer is one connection's view of the relay. The identity it acts as is
// set by Attach and never taken from frame payloads.
type Peer struct {
	relay  *Relay
	handle session.Handle

	mu     sync.Mutex
	userID string
}

func (r *Relay) NewPeer(h session.Handle) *Peer {
	return &Peer{relay: r, handle: h}
}

func (p *Peer) UserID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userID
}

// Attach announces the connection as userID. A connection that announces a
// different user first releases the previous one.
func (p *Peer) Attach(userID string) session.Session {
	r := p.relay

	p.mu.Lock()
	prev := p.userID
	p.userID = userID
	p.mu.Unlock()
	if prev != "" && prev != userID {
		p.release(prev)
	}

	sess, replaced, fresh := r.Registry.Register(userID, p.handle)
	if replaced != nil {
		replaced.Send(protocol.SystemEvent{
			Type:   protocol.TypeSystemEvent,
			Code:   CodeSessionReplaced,
			Detail: "signed in from another connection",
		})
		replaced.Close()
		r.logger.Info("session replaced", "user_id", userID, "old_conn", replaced.ID(), "new_conn", p.handle.ID())
	}
	if fresh {
		r.Presence.Online(userID)
		r.logger.Info("user connected", "user_id", userID, "conn", p.handle.ID())
	}
	return sess
}

// Detach runs the disconnect cascade. It is a no-op for a connection that
// was already superseded.
func (p *Peer) Detach() {
	p.mu.Lock()
	userID := p.userID
	p.userID = ""
	p.mu.Unlock()
	if userID != "" {
		p.release(userID)
	}
}

func (p *Peer) release(userID string) {
	r := p.relay
	if !r.Registry.Unregister(userID, p.handle) {
		r.logger.Debug("stale disconnect ignored", "user_id", userID, "conn", p.handle.ID())
		return
	}
	r.Typing.DropUser(userID)
	r.Calls.DropUser(userID)
	r.Presence.Offline(userID)
	r.logger.Info("user disconnected", "user_id", userID, "conn", p.handle.ID())
}

// Dispatch handles one inbound frame.
func (p *Peer) Dispatch(ctx context.Context, msg protocol.Inbound) {
	r := p.relay
	if m, ok := msg.(protocol.UserConnected); ok {
		p.Attach(m.UserID)
		return
	}
	userID := p.UserID()
	if userID == "" {
		p.fail(CodeNotConnected, "send user_connected first")
		return
	}
	if h, ok := r.Registry.Lookup(userID); !ok || h != p.handle {
		r.logger.Debug("frame from superseded connection dropped", "type", msg.Kind(), "user_id", userID, "conn", p.handle.ID())
		return
	}

	switch m := msg.(type) {
	case protocol.GetUserStatus:
		p.handle.Send(r.Presence.Query(ctx, m.UserID).Reply(m.RequestID))
	case protocol.MessageRead:
		if _, err := r.Delivery.MarkRead(ctx, userID, m.MessageIDs); err != nil {
			r.logger.Warn("mark read failed", "user_id", userID, "err", err)
			p.fail(CodeMarkReadFailed, err.Error())
		}
	case protocol.TypingStart:
		r.Typing.Start(userID, m.ConversationID, m.ReceiverID)
	case protocol.TypingStop:
		r.Typing.Stop(userID, m.ConversationID)
	case protocol.AddReaction:
		if _, err := r.Reactions.Apply(ctx, m.MessageID, userID, m.Emoji); err != nil {
			if errors.Is(err, message.ErrNotFound) {
				p.fail(CodeMessageNotFound, m.MessageID)
				return
			}
			r.logger.Warn("reaction failed", "user_id", userID, "message_id", m.MessageID, "err", err)
			p.fail(CodeReactionFailed, err.Error())
		}
	case protocol.InitiateCall:
		_, err := r.Calls.Initiate(userID, m)
		p.callResult(m, err)
	case protocol.AcceptCall:
		_, err := r.Calls.Accept(userID, m)
		p.callResult(m, err)
	case protocol.RejectCall:
		_, err := r.Calls.Reject(userID, m)
		p.callResult(m, err)
	case protocol.EndCall:
		_, err := r.Calls.End(userID, m)
		p.callResult(m, err)
	case protocol.CallError:
		_, err := r.Calls.Fail(userID, m)
		p.callResult(m, err)
	case protocol.RemoteDescriptionSet:
		p.callResult(m, r.Calls.RemoteDescriptionSet(userID, m))
	case protocol.WebRTCOffer, protocol.WebRTCAnswer, protocol.WebRTCIceCandidate:
		p.callResult(m, r.Calls.Relay(userID, m))
	case protocol.UserConnected:
		// handled above
	default:
		p.fail(CodeInvalidMessage, string(msg.Kind()))
	}
}

func (p *Peer) callResult(msg protocol.Inbound, err error) {
	switch {
	case err == nil:
	case errors.Is(err, call.ErrCallNotFound), errors.Is(err, call.ErrInvalidState):
		p.relay.logger.Debug("stale signaling frame", "type", msg.Kind(), "user_id", p.UserID(), "err", err)
	case errors.Is(err, call.ErrNotParticipant):
		p.fail(CodeNotParticipant, err.Error())
	case errors.Is(err, call.ErrCallExists):
		p.fail(CodeCallExists, err.Error())
	case errors.Is(err, call.ErrSelfCall):
		p.fail(CodeSelfCall, err.Error())
	default:
		p.fail(CodeInvalidMessage, err.Error())
	}
}

func (p *Peer) fail(code, detail string) {
	p.handle.Send(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: code, Detail: detail})
}
