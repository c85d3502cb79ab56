package call

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/chatrelay/internal/logging"
	"github.com/ent0n29/chatrelay/internal/observability"
	"github.com/ent0n29/chatrelay/internal/protocol"
	"github.com/ent0n29/chatrelay/internal/session"
)

var (
	ErrCallNotFound   = errors.New("call not found")
	ErrInvalidState   = errors.New("call is not in a state that allows this action")
	ErrNotParticipant = errors.New("user is not a participant of this call")
	ErrCallExists     = errors.New("call id already in use")
	ErrSelfCall       = errors.New("cannot call yourself")
)

// Failure and end reasons sent to clients.
const (
	ReasonUserOffline        = "user_offline"
	ReasonCallerDisconnected = "caller_disconnected"
	ReasonSignalingFailed    = "signaling_failed"
	ReasonPeerDisconnected   = "peer_disconnected"
	ReasonTimeout            = "timeout"
	ReasonCallError          = "call_error"
)

type Status string

const (
	StatusCalling    Status = "calling"
	StatusRinging    Status = "ringing"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusEnded      Status = "ended"
	StatusRejected   Status = "rejected"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusEnded, StatusRejected, StatusFailed:
		return true
	default:
		return false
	}
}

// Call is a snapshot of one call's signaling state.
type Call struct {
	ID            string            `json:"call_id"`
	CallerID      string            `json:"caller_id"`
	ReceiverID    string            `json:"receiver_id"`
	Type          protocol.CallType `json:"call_type"`
	Status        Status            `json:"status"`
	Reason        string            `json:"reason,omitempty"`
	OfferRelayed  bool              `json:"offer_relayed"`
	AnswerRelayed bool              `json:"answer_relayed"`
	PendingIce    map[string]int    `json:"pending_ice,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type callSession struct {
	Call
	caller   protocol.Participant
	ice      map[string]*IceQueue
	ringStop func() bool
}

func (cs *callSession) peer(userID string) (string, bool) {
	switch userID {
	case cs.CallerID:
		return cs.ReceiverID, true
	case cs.ReceiverID:
		return cs.CallerID, true
	default:
		return "", false
	}
}

func (cs *callSession) snapshot() Call {
	out := cs.Call
	out.PendingIce = nil
	for user, q := range cs.ice {
		if q.Len() == 0 {
			continue
		}
		if out.PendingIce == nil {
			out.PendingIce = make(map[string]int)
		}
		out.PendingIce[user] = q.Len()
	}
	return out
}

// Coordinator runs the call signaling state machine. Every call lives in one
// map guarded by mu; frames are pushed to participants through the notifier
// while mu is held, which is safe because handle sends never block.
type Coordinator struct {
	notifier    session.Notifier
	ringTimeout time.Duration
	logger      *slog.Logger
	metrics     *observability.Metrics
	now         func() time.Time
	newID       func() string

	mu     sync.Mutex
	calls  map[string]*callSession
	byUser map[string]map[string]struct{}
}

type Option func(*Coordinator)

// WithRingTimeout ends calls nobody answered within d. Zero disables it.
func WithRingTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.ringTimeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logging.OrDefault(l) }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func NewCoordinator(notifier session.Notifier, opts ...Option) *Coordinator {
	c := &Coordinator{
		notifier: notifier,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		calls:    make(map[string]*callSession),
		byUser:   make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initiate creates a call from callerID. The call fails with user_offline
// when incoming_call cannot be handed to the receiver.
func (c *Coordinator) Initiate(callerID string, req protocol.InitiateCall) (Call, error) {
	if req.ReceiverID == callerID {
		return Call{}, ErrSelfCall
	}
	callID := req.CallID
	if callID == "" {
		callID = c.newID()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.calls[callID]; exists {
		return Call{}, ErrCallExists
	}
	now := c.now()
	cs := &callSession{
		Call: Call{
			ID:         callID,
			CallerID:   callerID,
			ReceiverID: req.ReceiverID,
			Type:       req.CallType,
			Status:     StatusCalling,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
		caller: req.CallerInfo,
		ice: map[string]*IceQueue{
			callerID:       NewIceQueue(),
			req.ReceiverID: NewIceQueue(),
		},
	}
	c.metrics.ObserveCallTransition(string(StatusCalling))

	delivered := c.notifier.Notify(req.ReceiverID, protocol.IncomingCall{
		Type:         protocol.TypeIncomingCall,
		CallID:       callID,
		CallerID:     callerID,
		CallerName:   req.CallerInfo.Username,
		CallerAvatar: req.CallerInfo.ProfilePicture,
		CallType:     req.CallType,
	})
	if !delivered {
		c.setStatus(cs, StatusFailed, ReasonUserOffline)
		c.notifier.Notify(callerID, callFailed(callID, ReasonUserOffline))
		c.logger.Info("call failed", "call_id", callID, "reason", ReasonUserOffline)
		return cs.snapshot(), nil
	}

	c.calls[callID] = cs
	c.index(callerID, callID)
	c.index(req.ReceiverID, callID)
	c.setStatus(cs, StatusRinging, "")
	c.armRing(cs)
	c.metrics.SetActiveCalls(len(c.calls))
	c.logger.Info("call ringing", "call_id", callID, "caller_id", callerID, "receiver_id", req.ReceiverID, "call_type", req.CallType)
	return cs.snapshot(), nil
}

// Accept moves a ringing call to Connecting. If the caller is gone by then
// the receiver gets call_failed{caller_disconnected}.
func (c *Coordinator) Accept(receiverID string, req protocol.AcceptCall) (Call, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cs, err := c.lookup(req.CallID, receiverID)
	if err != nil {
		return Call{}, err
	}
	if cs.ReceiverID != receiverID {
		return Call{}, ErrNotParticipant
	}
	if !ringing(cs.Status) {
		return Call{}, ErrInvalidState
	}
	c.stopRing(cs)

	accepted := c.notifier.Notify(cs.CallerID, protocol.CallAccepted{
		Type:           protocol.TypeCallAccepted,
		CallID:         cs.ID,
		ReceiverName:   req.ReceiverInfo.Username,
		ReceiverAvatar: req.ReceiverInfo.ProfilePicture,
	})
	if !accepted {
		c.notifier.Notify(receiverID, callFailed(cs.ID, ReasonCallerDisconnected))
		return c.finish(cs, StatusFailed, ReasonCallerDisconnected), nil
	}
	c.setStatus(cs, StatusConnecting, "")
	return cs.snapshot(), nil
}

func (c *Coordinator) Reject(receiverID string, req protocol.RejectCall) (Call, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cs, err := c.lookup(req.CallID, receiverID)
	if err != nil {
		return Call{}, err
	}
	if cs.ReceiverID != receiverID {
		return Call{}, ErrNotParticipant
	}
	if !ringing(cs.Status) {
		return Call{}, ErrInvalidState
	}
	c.notifier.Notify(cs.CallerID, protocol.CallRejected{Type: protocol.TypeCallRejected, CallID: cs.ID})
	return c.finish(cs, StatusRejected, ""), nil
}

// End terminates the call from either side. The other participant receives
// exactly one call_ended.
func (c *Coordinator) End(userID string, req protocol.EndCall) (Call, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cs, err := c.lookup(req.CallID, userID)
	if err != nil {
		return Call{}, err
	}
	peer, _ := cs.peer(userID)
	c.notifier.Notify(peer, protocol.CallEnded{Type: protocol.TypeCallEnded, CallID: cs.ID})
	return c.finish(cs, StatusEnded, ""), nil
}

// Fail records a local error reported by one side and tells the other.
func (c *Coordinator) Fail(userID string, req protocol.CallError) (Call, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cs, err := c.lookup(req.CallID, userID)
	if err != nil {
		return Call{}, err
	}
	reason := req.Reason
	if reason == "" {
		reason = ReasonCallError
	}
	peer, _ := cs.peer(userID)
	c.notifier.Notify(peer, callFailed(cs.ID, reason))
	return c.finish(cs, StatusFailed, reason), nil
}

// Relay forwards an offer, answer or ICE candidate to the sender's peer.
// The sender identity is always the resolved connection, never the payload.
func (c *Coordinator) Relay(senderID string, frame protocol.Inbound) error {
	callID, err := signalCallID(frame)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cs, err := c.lookup(callID, senderID)
	if err != nil {
		return err
	}
	if cs.Status != StatusConnecting && cs.Status != StatusConnected {
		return ErrInvalidState
	}
	peer, _ := cs.peer(senderID)

	switch f := frame.(type) {
	case protocol.WebRTCOffer:
		f.Type, f.SenderID, f.ReceiverID = protocol.TypeWebRTCOffer, senderID, peer
		if !c.notifier.Notify(peer, f) {
			c.signalingFailed(cs, senderID)
			return nil
		}
		cs.OfferRelayed = true
	case protocol.WebRTCAnswer:
		f.Type, f.SenderID, f.ReceiverID = protocol.TypeWebRTCAnswer, senderID, peer
		if !c.notifier.Notify(peer, f) {
			c.signalingFailed(cs, senderID)
			return nil
		}
		cs.AnswerRelayed = true
		// The answering side has applied the offer as its remote description.
		if !c.drain(cs, senderID) {
			return nil
		}
	case protocol.WebRTCIceCandidate:
		forward, accepted := cs.ice[peer].Offer(f.Candidate)
		switch {
		case !accepted:
			c.metrics.ObserveIceCandidate("duplicate")
		case !forward:
			c.metrics.ObserveIceCandidate("queued")
		default:
			if !c.notifier.Notify(peer, iceFrame(cs.ID, senderID, peer, f.Candidate)) {
				c.signalingFailed(cs, senderID)
				return nil
			}
			c.metrics.ObserveIceCandidate("forwarded")
		}
	}

	cs.UpdatedAt = c.now()
	if cs.Status == StatusConnecting && cs.OfferRelayed && cs.AnswerRelayed {
		c.setStatus(cs, StatusConnected, "")
	}
	return nil
}

// RemoteDescriptionSet flushes the candidates buffered for userID.
func (c *Coordinator) RemoteDescriptionSet(userID string, req protocol.RemoteDescriptionSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cs, err := c.lookup(req.CallID, userID)
	if err != nil {
		return err
	}
	if cs.Status != StatusConnecting && cs.Status != StatusConnected {
		return ErrInvalidState
	}
	c.drain(cs, userID)
	return nil
}

// DropUser ends every call userID takes part in, notifying the other side.
func (c *Coordinator) DropUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for callID := range c.byUser[userID] {
		cs, ok := c.calls[callID]
		if !ok {
			continue
		}
		peer, _ := cs.peer(userID)
		c.notifier.Notify(peer, protocol.CallEnded{
			Type:   protocol.TypeCallEnded,
			CallID: cs.ID,
			Reason: ReasonPeerDisconnected,
		})
		c.finish(cs, StatusEnded, ReasonPeerDisconnected)
	}
}

func (c *Coordinator) Get(callID string) (Call, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cs, ok := c.calls[callID]
	if !ok {
		return Call{}, false
	}
	return cs.snapshot(), true
}

func (c *Coordinator) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// drain forwards the candidates queued for userID. It reports false when the
// call failed because userID could not be reached.
func (c *Coordinator) drain(cs *callSession, userID string) bool {
	q := cs.ice[userID]
	peer, _ := cs.peer(userID)
	for _, cand := range q.Drain() {
		if !c.notifier.Notify(userID, iceFrame(cs.ID, peer, userID, cand)) {
			c.signalingFailed(cs, peer)
			return false
		}
		c.metrics.ObserveIceCandidate("drained")
	}
	return true
}

// signalingFailed is used when a frame from senderID could not reach its
// addressee.
func (c *Coordinator) signalingFailed(cs *callSession, senderID string) {
	c.notifier.Notify(senderID, callFailed(cs.ID, ReasonSignalingFailed))
	c.finish(cs, StatusFailed, ReasonSignalingFailed)
	c.logger.Info("call signaling failed", "call_id", cs.ID, "sender_id", senderID)
}

func (c *Coordinator) lookup(callID, userID string) (*callSession, error) {
	cs, ok := c.calls[callID]
	if !ok {
		return nil, ErrCallNotFound
	}
	if _, ok := cs.peer(userID); !ok {
		return nil, ErrNotParticipant
	}
	return cs, nil
}

func (c *Coordinator) setStatus(cs *callSession, status Status, reason string) {
	cs.Status = status
	cs.Reason = reason
	cs.UpdatedAt = c.now()
	c.metrics.ObserveCallTransition(string(status))
}

// finish moves cs to a terminal status and discards it.
func (c *Coordinator) finish(cs *callSession, status Status, reason string) Call {
	c.stopRing(cs)
	c.setStatus(cs, status, reason)
	delete(c.calls, cs.ID)
	c.unindex(cs.CallerID, cs.ID)
	c.unindex(cs.ReceiverID, cs.ID)
	c.metrics.SetActiveCalls(len(c.calls))
	c.logger.Debug("call finished", "call_id", cs.ID, "status", status, "reason", reason)
	return cs.snapshot()
}

func (c *Coordinator) armRing(cs *callSession) {
	if c.ringTimeout <= 0 {
		return
	}
	t := time.AfterFunc(c.ringTimeout, func() { c.ringExpired(cs) })
	cs.ringStop = t.Stop
}

func (c *Coordinator) stopRing(cs *callSession) {
	if cs.ringStop != nil {
		cs.ringStop()
		cs.ringStop = nil
	}
}

func (c *Coordinator) ringExpired(cs *callSession) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.calls[cs.ID] != cs || !ringing(cs.Status) {
		return
	}
	ended := protocol.CallEnded{Type: protocol.TypeCallEnded, CallID: cs.ID, Reason: ReasonTimeout}
	c.notifier.Notify(cs.CallerID, ended)
	c.notifier.Notify(cs.ReceiverID, ended)
	cs.ringStop = nil
	c.finish(cs, StatusEnded, ReasonTimeout)
}

func (c *Coordinator) index(userID, callID string) {
	calls := c.byUser[userID]
	if calls == nil {
		calls = make(map[string]struct{})
		c.byUser[userID] = calls
	}
	calls[callID] = struct{}{}
}

func (c *Coordinator) unindex(userID, callID string) {
	calls := c.byUser[userID]
	delete(calls, callID)
	if len(calls) == 0 {
		delete(c.byUser, userID)
	}
}

func ringing(s Status) bool {
	return s == StatusCalling || s == StatusRinging
}

func signalCallID(frame protocol.Inbound) (string, error) {
	switch f := frame.(type) {
	case protocol.WebRTCOffer:
		return f.CallID, nil
	case protocol.WebRTCAnswer:
		return f.CallID, nil
	case protocol.WebRTCIceCandidate:
		return f.CallID, nil
	default:
		return "", protocol.ErrUnsupportedType
	}
}

func callFailed(callID, reason string) protocol.CallFailed {
	return protocol.CallFailed{Type: protocol.TypeCallFailed, CallID: callID, Reason: reason}
}

func iceFrame(callID, senderID, receiverID string, candidate json.RawMessage) protocol.WebRTCIceCandidate {
	return protocol.WebRTCIceCandidate{
		Type:       protocol.TypeWebRTCIceCandidate,
		CallID:     callID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Candidate:  candidate,
	}
}
