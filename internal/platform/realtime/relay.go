package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telemed/telemed/internal/domain/messaging"
	"github.com/telemed/telemed/internal/platform/uploads"
	"github.com/telemed/telemed/pkg/chatproto"
)

// Relay stores inbound chat messages and forwards them to the receiver when
// one is connected. The sender always learns the outcome: message-sent on
// success, send-rejected on refusal.
type Relay struct {
	messages *messaging.Service
	registry Registry
	logger   zerolog.Logger
}

func NewRelay(messages *messaging.Service, registry Registry, logger zerolog.Logger) *Relay {
	return &Relay{
		messages: messages,
		registry: registry,
		logger:   logger.With().Str("component", "relay").Logger(),
	}
}

type messageSentPayload struct {
	ClientRef string             `json:"clientRef,omitempty"`
	Message   *messaging.Message `json:"message"`
}

type receiveMessagePayload struct {
	Message *messaging.Message `json:"message"`
}

// HandleSend processes one send-message event from an authenticated client.
func (r *Relay) HandleSend(ctx context.Context, sender *Client, data json.RawMessage) {
	var payload chatproto.SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		sender.EnqueueEvent(chatproto.EventSendRejected, chatproto.SendRejectedPayload{
			Reason: "malformed send-message payload",
		})
		return
	}

	receiverID, err := uuid.Parse(payload.ReceiverID)
	if err != nil {
		r.reject(sender, payload.ClientRef, "invalid receiver id")
		return
	}

	var attachment *uploads.Attachment
	if payload.Attachment != nil {
		attachment = &uploads.Attachment{
			URL:          payload.Attachment.URL,
			Filename:     payload.Attachment.Filename,
			OriginalName: payload.Attachment.OriginalName,
			MimeType:     payload.Attachment.MimeType,
			Size:         payload.Attachment.Size,
		}
	}

	m, err := r.messages.SendMessage(ctx, sender.Identity.UserID, receiverID, payload.Text, attachment)
	if err != nil {
		switch {
		case errors.Is(err, messaging.ErrEmptyMessage),
			errors.Is(err, messaging.ErrSelfMessage),
			errors.Is(err, messaging.ErrNotRelated):
			r.reject(sender, payload.ClientRef, err.Error())
		default:
			r.logger.Error().Err(err).
				Str("sender", sender.Identity.UserID.String()).
				Msg("persist message")
			r.reject(sender, payload.ClientRef, "message could not be stored")
		}
		return
	}

	// Ack the sender first so the optimistic copy resolves even if the
	// receiver delivery below is dropped.
	sender.EnqueueEvent(chatproto.EventMessageSent, messageSentPayload{
		ClientRef: payload.ClientRef,
		Message:   m,
	})

	if receiver, ok := r.registry.Lookup(receiverID); ok {
		receiver.EnqueueEvent(chatproto.EventReceiveMessage, receiveMessagePayload{Message: m})
	}
}

func (r *Relay) reject(sender *Client, clientRef, reason string) {
	sender.EnqueueEvent(chatproto.EventSendRejected, chatproto.SendRejectedPayload{
		ClientRef: clientRef,
		Reason:    reason,
	})
}
