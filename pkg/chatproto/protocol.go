// Package chatproto defines the realtime chat wire protocol: the event
// envelope, event names, payload shapes, and client-side helpers for
// optimistic sends and call state tracking. It has no server dependencies so
// client tooling can import it directly.
package chatproto

import (
	"encoding/json"
	"fmt"
	"time"
)

// Events sent by clients.
const (
	EventAuthenticate = "authenticate"
	EventSendMessage  = "send-message"
	EventCallUser     = "call-user"
	EventAnswerCall   = "answer-call"
	EventICECandidate = "ice-candidate"
	EventEndCall      = "end-call"
)

// Events sent by the server.
const (
	EventAuthenticated  = "authenticated"
	EventMessageSent    = "message-sent"
	EventReceiveMessage = "receive-message"
	EventSendRejected   = "send-rejected"
	EventIncomingCall   = "incoming-call"
	EventCallAnswered   = "call-answered"
	EventCallEnded      = "call-ended"
	EventError          = "error"
)

// Envelope frames every message on the socket in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals an envelope carrying the given payload.
func Encode(event string, payload interface{}) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Decode unmarshals an envelope from raw socket bytes.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("envelope has no event")
	}
	return &env, nil
}

// Attachment mirrors the server's stored attachment descriptor.
type Attachment struct {
	URL          string `json:"url"`
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
}

// Message is a chat message as it appears on the wire.
type Message struct {
	ID         string      `json:"id"`
	SenderID   string      `json:"senderId"`
	ReceiverID string      `json:"receiverId"`
	Text       string      `json:"text"`
	Attachment *Attachment `json:"attachment,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// AuthenticatePayload carries the bearer token as the first client message.
type AuthenticatePayload struct {
	Token string `json:"token"`
}

// AuthenticatedPayload confirms a successful socket login.
type AuthenticatedPayload struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// SendMessagePayload asks the server to store and forward one message.
// ClientRef is an opaque client-chosen id echoed back in the ack so the
// sender can reconcile its optimistic copy.
type SendMessagePayload struct {
	ClientRef  string      `json:"clientRef,omitempty"`
	ReceiverID string      `json:"receiverId"`
	Text       string      `json:"text"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// MessageSentPayload acknowledges a stored message to its sender.
type MessageSentPayload struct {
	ClientRef string  `json:"clientRef,omitempty"`
	Message   Message `json:"message"`
}

// ReceiveMessagePayload delivers a stored message to its receiver.
type ReceiveMessagePayload struct {
	Message Message `json:"message"`
}

// SendRejectedPayload tells the sender a message was refused and why.
type SendRejectedPayload struct {
	ClientRef string `json:"clientRef,omitempty"`
	Reason    string `json:"reason"`
}

// Signaling payloads. Each event names its target differently: the initiator
// addresses a receiverId, the callee answers back to a callerId, and either
// side hangs up on an otherUserId. SDP and candidate material is relayed
// verbatim; the origin on delivered events is always the authenticated
// sender.

// CallUserPayload opens a call by sending an SDP offer to a peer.
type CallUserPayload struct {
	ReceiverID string          `json:"receiverId"`
	Offer      json.RawMessage `json:"offer"`
}

// IncomingCallPayload notifies the callee that someone is ringing.
type IncomingCallPayload struct {
	CallerID string          `json:"callerId"`
	Offer    json.RawMessage `json:"offer"`
}

// AnswerCallPayload returns the SDP answer to the caller.
type AnswerCallPayload struct {
	CallerID string          `json:"callerId"`
	Answer   json.RawMessage `json:"answer"`
}

// CallAnsweredPayload delivers the answer back to the caller.
type CallAnsweredPayload struct {
	Answer json.RawMessage `json:"answer"`
}

// ICECandidatePayload exchanges one ICE candidate. ReceiverID addresses the
// inbound leg and is stripped on delivery.
type ICECandidatePayload struct {
	ReceiverID string          `json:"receiverId,omitempty"`
	Candidate  json.RawMessage `json:"candidate"`
}

// EndCallPayload tears down signaling with the named peer. The delivered
// call-ended event carries no payload.
type EndCallPayload struct {
	OtherUserID string `json:"otherUserId"`
}

// ErrorPayload reports a protocol-level failure.
type ErrorPayload struct {
	Message string `json:"message"`
}
