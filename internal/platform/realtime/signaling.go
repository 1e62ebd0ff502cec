package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telemed/telemed/pkg/chatproto"
)

// Signaling relays WebRTC handshake material between peers. It keeps no call
// state and never inspects SDP or candidates; when the target peer is offline
// the event is dropped and the caller's own timeout handles the miss.
type Signaling struct {
	registry Registry
	logger   zerolog.Logger
}

func NewSignaling(registry Registry, logger zerolog.Logger) *Signaling {
	return &Signaling{
		registry: registry,
		logger:   logger.With().Str("component", "signaling").Logger(),
	}
}

// forwardEvent maps each inbound signaling event to the event the peer sees.
var forwardEvent = map[string]string{
	chatproto.EventCallUser:     chatproto.EventIncomingCall,
	chatproto.EventAnswerCall:   chatproto.EventCallAnswered,
	chatproto.EventICECandidate: chatproto.EventICECandidate,
	chatproto.EventEndCall:      chatproto.EventCallEnded,
}

// Handles reports whether event is a signaling event.
func (s *Signaling) Handles(event string) bool {
	_, ok := forwardEvent[event]
	return ok
}

// Relay forwards one signaling event from sender to the peer named in the
// payload. The origin on delivered events is taken from the authenticated
// sender, so a client can never spoof it.
func (s *Signaling) Relay(sender *Client, event string, data json.RawMessage) {
	outbound, ok := forwardEvent[event]
	if !ok {
		return
	}

	target, payload, err := routeSignal(sender.Identity.UserID.String(), event, data)
	if err != nil {
		sender.EnqueueEvent(chatproto.EventError, chatproto.ErrorPayload{
			Message: "malformed " + event + " payload",
		})
		return
	}

	peerID, err := uuid.Parse(target)
	if err != nil {
		sender.EnqueueEvent(chatproto.EventError, chatproto.ErrorPayload{
			Message: "invalid signaling target",
		})
		return
	}

	peer, online := s.registry.Lookup(peerID)
	if !online {
		s.logger.Debug().
			Str("event", event).
			Str("from", sender.Identity.UserID.String()).
			Str("to", peerID.String()).
			Msg("signaling target offline, dropping")
		return
	}

	peer.EnqueueEvent(outbound, payload)
}

// routeSignal extracts the target user from an inbound signaling payload and
// builds the payload the peer receives. Each event addresses its target under
// a different name: call-user and ice-candidate carry receiverId, answer-call
// carries callerId, end-call carries otherUserId.
func routeSignal(senderID, event string, data json.RawMessage) (target string, payload interface{}, err error) {
	switch event {
	case chatproto.EventCallUser:
		var p chatproto.CallUserPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return "", nil, err
		}
		return p.ReceiverID, chatproto.IncomingCallPayload{CallerID: senderID, Offer: p.Offer}, nil

	case chatproto.EventAnswerCall:
		var p chatproto.AnswerCallPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return "", nil, err
		}
		return p.CallerID, chatproto.CallAnsweredPayload{Answer: p.Answer}, nil

	case chatproto.EventICECandidate:
		var p chatproto.ICECandidatePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return "", nil, err
		}
		return p.ReceiverID, chatproto.ICECandidatePayload{Candidate: p.Candidate}, nil

	case chatproto.EventEndCall:
		var p chatproto.EndCallPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return "", nil, err
		}
		return p.OtherUserID, nil, nil
	}

	return "", nil, fmt.Errorf("unroutable signaling event %s", event)
}
