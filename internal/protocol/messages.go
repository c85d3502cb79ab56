package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ent0n29/chatrelay/internal/message"
)

// MessageType identifies websocket payload variants.
type MessageType string

// Client to relay.
const (
	TypeUserConnected        MessageType = "user_connected"
	TypeGetUserStatus        MessageType = "get_user_status"
	TypeMessageRead          MessageType = "message_read"
	TypeTypingStart          MessageType = "typing_start"
	TypeTypingStop           MessageType = "typing_stop"
	TypeAddReaction          MessageType = "add_reaction"
	TypeInitiateCall         MessageType = "initiate_call"
	TypeAcceptCall           MessageType = "accept_call"
	TypeRejectCall           MessageType = "reject_call"
	TypeEndCall              MessageType = "end_call"
	TypeCallError            MessageType = "call_error"
	TypeRemoteDescriptionSet MessageType = "webrtc_remote_description_set"
)

// Relayed verbatim in both directions.
const (
	TypeWebRTCOffer        MessageType = "webrtc_offer"
	TypeWebRTCAnswer       MessageType = "webrtc_answer"
	TypeWebRTCIceCandidate MessageType = "webrtc_ice_candidate"
)

// Relay to client.
const (
	TypeUserStatus          MessageType = "user_status"
	TypeUserStatusReply     MessageType = "user_status_reply"
	TypeUserTyping          MessageType = "user_typing"
	TypeReceiveMessage      MessageType = "receive_message"
	TypeMessageStatusUpdate MessageType = "message_status_update"
	TypeMessageDeleted      MessageType = "message_deleted"
	TypeReactionUpdate      MessageType = "reaction_update"
	TypeIncomingCall        MessageType = "incoming_call"
	TypeCallAccepted        MessageType = "call_accepted"
	TypeCallRejected        MessageType = "call_rejected"
	TypeCallEnded           MessageType = "call_ended"
	TypeCallFailed          MessageType = "call_failed"
	TypeNewStatus           MessageType = "new_status"
	TypeStatusViewed        MessageType = "status_viewed"
	TypeStatusDeleted       MessageType = "status_deleted"
	TypeSystemEvent         MessageType = "system_event"
	TypeErrorEvent          MessageType = "error_event"
)

type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

var ErrUnsupportedType = errors.New("unsupported message type")

// Inbound is the closed set of frames a client may send.
type Inbound interface {
	Kind() MessageType
	inbound()
}

// Outbound is the closed set of frames the relay may emit.
type Outbound interface {
	Kind() MessageType
	outbound()
}

type Envelope struct {
	Type MessageType `json:"type"`
}

type UserConnected struct {
	Type   MessageType `json:"type"`
	UserID string      `json:"userId" validate:"required"`
}

type GetUserStatus struct {
	Type      MessageType `json:"type"`
	UserID    string      `json:"userId" validate:"required"`
	RequestID string      `json:"requestId,omitempty"`
}

// MessageRead marks messages addressed to the connected user as read.
type MessageRead struct {
	Type       MessageType `json:"type"`
	MessageIDs []string    `json:"messageIds" validate:"required,min=1,dive,required"`
}

type TypingStart struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversationId" validate:"required"`
	ReceiverID     string      `json:"receiverId" validate:"required"`
}

type TypingStop struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversationId" validate:"required"`
	ReceiverID     string      `json:"receiverId" validate:"required"`
}

// AddReaction carries an optional UserID for compatibility; the relay always
// acts as the connected user.
type AddReaction struct {
	Type      MessageType `json:"type"`
	MessageID string      `json:"messageId" validate:"required"`
	Emoji     string      `json:"emoji" validate:"required"`
	UserID    string      `json:"userId,omitempty"`
}

// Participant is the display info a client attaches to call frames.
type Participant struct {
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture"`
}

type InitiateCall struct {
	Type       MessageType `json:"type"`
	CallID     string      `json:"callId"`
	CallerID   string      `json:"callerId,omitempty"`
	ReceiverID string      `json:"receiverId" validate:"required"`
	CallType   CallType    `json:"callType" validate:"required,oneof=audio video"`
	CallerInfo Participant `json:"callerInfo"`
}

type AcceptCall struct {
	Type         MessageType `json:"type"`
	CallID       string      `json:"callId" validate:"required"`
	CallerID     string      `json:"callerId,omitempty"`
	ReceiverInfo Participant `json:"receiverInfo"`
}

type RejectCall struct {
	Type     MessageType `json:"type"`
	CallID   string      `json:"callId" validate:"required"`
	CallerID string      `json:"callerId,omitempty"`
}

type EndCall struct {
	Type          MessageType `json:"type"`
	CallID        string      `json:"callId" validate:"required"`
	ParticipantID string      `json:"participantId,omitempty"`
}

// CallError reports a local failure (media, peer connection) on one side.
type CallError struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"callId" validate:"required"`
	Reason string      `json:"reason"`
}

type RemoteDescriptionSet struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"callId" validate:"required"`
}

// WebRTC frames are relayed as-is. SenderID is always overwritten with the
// identity of the connection that sent the frame.
type WebRTCOffer struct {
	Type       MessageType     `json:"type"`
	CallID     string          `json:"callId" validate:"required"`
	ReceiverID string          `json:"receiverId,omitempty"`
	SenderID   string          `json:"senderId,omitempty"`
	Offer      json.RawMessage `json:"offer" validate:"required"`
}

type WebRTCAnswer struct {
	Type       MessageType     `json:"type"`
	CallID     string          `json:"callId" validate:"required"`
	ReceiverID string          `json:"receiverId,omitempty"`
	SenderID   string          `json:"senderId,omitempty"`
	Answer     json.RawMessage `json:"answer" validate:"required"`
}

type WebRTCIceCandidate struct {
	Type       MessageType     `json:"type"`
	CallID     string          `json:"callId" validate:"required"`
	ReceiverID string          `json:"receiverId,omitempty"`
	SenderID   string          `json:"senderId,omitempty"`
	Candidate  json.RawMessage `json:"candidate" validate:"required"`
}

type UserStatus struct {
	Type     MessageType `json:"type"`
	UserID   string      `json:"userId"`
	IsOnline bool        `json:"isOnline"`
	LastSeen *time.Time  `json:"lastSeen,omitempty"`
}

type UserStatusReply struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"requestId,omitempty"`
	UserID    string      `json:"userId"`
	IsOnline  bool        `json:"isOnline"`
	LastSeen  *time.Time  `json:"lastSeen"`
}

type UserTyping struct {
	Type           MessageType `json:"type"`
	UserID         string      `json:"userId"`
	ConversationID string      `json:"conversationId"`
	IsTyping       bool        `json:"isTyping"`
}

type ReceiveMessage struct {
	Type    MessageType     `json:"type"`
	Message message.Message `json:"message"`
}

type MessageStatusUpdate struct {
	Type      MessageType    `json:"type"`
	MessageID string         `json:"messageId"`
	Status    message.Status `json:"messageStatus"`
}

type MessageDeleted struct {
	Type      MessageType `json:"type"`
	MessageID string      `json:"messageId"`
}

type ReactionUpdate struct {
	Type      MessageType        `json:"type"`
	MessageID string             `json:"messageId"`
	Reactions []message.Reaction `json:"reactions"`
}

type IncomingCall struct {
	Type         MessageType `json:"type"`
	CallID       string      `json:"callId"`
	CallerID     string      `json:"callerId"`
	CallerName   string      `json:"callerName"`
	CallerAvatar string      `json:"callerAvatar"`
	CallType     CallType    `json:"callType"`
}

type CallAccepted struct {
	Type           MessageType `json:"type"`
	CallID         string      `json:"callId"`
	ReceiverName   string      `json:"receiverName"`
	ReceiverAvatar string      `json:"receiverAvatar"`
}

type CallRejected struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"callId"`
}

type CallEnded struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"callId"`
	Reason string      `json:"reason,omitempty"`
}

type CallFailed struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"callId"`
	Reason string      `json:"reason"`
}

// NewStatus announces a status post. The post body is owned by the chat
// service and relayed as-is.
type NewStatus struct {
	Type     MessageType     `json:"type"`
	StatusID string          `json:"statusId"`
	OwnerID  string          `json:"ownerId"`
	Status   json.RawMessage `json:"status"`
}

type StatusViewed struct {
	Type         MessageType     `json:"type"`
	StatusID     string          `json:"statusId"`
	ViewerID     string          `json:"viewerId"`
	TotalViewers int             `json:"totalViewers"`
	Viewers      json.RawMessage `json:"viewers"`
}

type StatusDeleted struct {
	Type     MessageType `json:"type"`
	StatusID string      `json:"statusId"`
}

type SystemEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail"`
}

func (UserConnected) Kind() MessageType        { return TypeUserConnected }
func (GetUserStatus) Kind() MessageType        { return TypeGetUserStatus }
func (MessageRead) Kind() MessageType          { return TypeMessageRead }
func (TypingStart) Kind() MessageType          { return TypeTypingStart }
func (TypingStop) Kind() MessageType           { return TypeTypingStop }
func (AddReaction) Kind() MessageType          { return TypeAddReaction }
func (InitiateCall) Kind() MessageType         { return TypeInitiateCall }
func (AcceptCall) Kind() MessageType           { return TypeAcceptCall }
func (RejectCall) Kind() MessageType           { return TypeRejectCall }
func (EndCall) Kind() MessageType              { return TypeEndCall }
func (CallError) Kind() MessageType            { return TypeCallError }
func (RemoteDescriptionSet) Kind() MessageType { return TypeRemoteDescriptionSet }
func (WebRTCOffer) Kind() MessageType          { return TypeWebRTCOffer }
func (WebRTCAnswer) Kind() MessageType         { return TypeWebRTCAnswer }
func (WebRTCIceCandidate) Kind() MessageType   { return TypeWebRTCIceCandidate }
func (UserStatus) Kind() MessageType           { return TypeUserStatus }
func (UserStatusReply) Kind() MessageType      { return TypeUserStatusReply }
func (UserTyping) Kind() MessageType           { return TypeUserTyping }
func (ReceiveMessage) Kind() MessageType       { return TypeReceiveMessage }
func (MessageStatusUpdate) Kind() MessageType  { return TypeMessageStatusUpdate }
func (MessageDeleted) Kind() MessageType       { return TypeMessageDeleted }
func (ReactionUpdate) Kind() MessageType       { return TypeReactionUpdate }
func (IncomingCall) Kind() MessageType         { return TypeIncomingCall }
func (CallAccepted) Kind() MessageType         { return TypeCallAccepted }
func (CallRejected) Kind() MessageType         { return TypeCallRejected }
func (CallEnded) Kind() MessageType            { return TypeCallEnded }
func (CallFailed) Kind() MessageType           { return TypeCallFailed }
func (NewStatus) Kind() MessageType            { return TypeNewStatus }
func (StatusViewed) Kind() MessageType         { return TypeStatusViewed }
func (StatusDeleted) Kind() MessageType        { return TypeStatusDeleted }
func (SystemEvent) Kind() MessageType          { return TypeSystemEvent }
func (ErrorEvent) Kind() MessageType           { return TypeErrorEvent }

func (UserConnected) inbound()        {}
func (GetUserStatus) inbound()        {}
func (MessageRead) inbound()          {}
func (TypingStart) inbound()          {}
func (TypingStop) inbound()           {}
func (AddReaction) inbound()          {}
func (InitiateCall) inbound()         {}
func (AcceptCall) inbound()           {}
func (RejectCall) inbound()           {}
func (EndCall) inbound()              {}
func (CallError) inbound()            {}
func (RemoteDescriptionSet) inbound() {}
func (WebRTCOffer) inbound()          {}
func (WebRTCAnswer) inbound()         {}
func (WebRTCIceCandidate) inbound()   {}

func (WebRTCOffer) outbound()         {}
func (WebRTCAnswer) outbound()        {}
func (WebRTCIceCandidate) outbound()  {}
func (UserStatus) outbound()          {}
func (UserStatusReply) outbound()     {}
func (UserTyping) outbound()          {}
func (ReceiveMessage) outbound()      {}
func (MessageStatusUpdate) outbound() {}
func (MessageDeleted) outbound()      {}
func (ReactionUpdate) outbound()      {}
func (IncomingCall) outbound()        {}
func (CallAccepted) outbound()        {}
func (CallRejected) outbound()        {}
func (CallEnded) outbound()           {}
func (CallFailed) outbound()          {}
func (NewStatus) outbound()           {}
func (StatusViewed) outbound()        {}
func (StatusDeleted) outbound()       {}
func (SystemEvent) outbound()         {}
func (ErrorEvent) outbound()          {}

var validate = validator.New()

// Validate runs struct tag validation on v. It is shared with the REST
// ingress so both surfaces reject the same payloads.
func Validate(v any) error {
	return validate.Struct(v)
}

var decoders = map[MessageType]func([]byte) (Inbound, error){
	TypeUserConnected:        decode[UserConnected],
	TypeGetUserStatus:        decode[GetUserStatus],
	TypeMessageRead:          decode[MessageRead],
	TypeTypingStart:          decode[TypingStart],
	TypeTypingStop:           decode[TypingStop],
	TypeAddReaction:          decode[AddReaction],
	TypeInitiateCall:         decode[InitiateCall],
	TypeAcceptCall:           decode[AcceptCall],
	TypeRejectCall:           decode[RejectCall],
	TypeEndCall:              decode[EndCall],
	TypeCallError:            decode[CallError],
	TypeRemoteDescriptionSet: decode[RemoteDescriptionSet],
	TypeWebRTCOffer:          decode[WebRTCOffer],
	TypeWebRTCAnswer:         decode[WebRTCAnswer],
	TypeWebRTCIceCandidate:   decode[WebRTCIceCandidate],
}

func ParseClientMessage(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	dec, ok := decoders[env.Type]
	if !ok {
		return nil, ErrUnsupportedType
	}
	return dec(raw)
}

func decode[T Inbound](raw []byte) (Inbound, error) {
	var msg T
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	if err := validate.Struct(msg); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", msg.Kind(), err)
	}
	return msg, nil
}
