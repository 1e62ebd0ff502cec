package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telemed/telemed/internal/domain/messaging"
	"github.com/telemed/telemed/internal/domain/scheduling"
	"github.com/telemed/telemed/pkg/chatproto"
)

type stubMessageRepo struct {
	messages []*messaging.Message
	fail     bool
}

func (s *stubMessageRepo) Append(ctx context.Context, m *messaging.Message) error {
	if s.fail {
		return errors.New("db down")
	}
	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	s.messages = append(s.messages, m)
	return nil
}

func (s *stubMessageRepo) ConversationBetween(ctx context.Context, a, b uuid.UUID, limit, offset int) ([]*messaging.Message, int, error) {
	return nil, 0, nil
}

func (s *stubMessageRepo) LatestWith(ctx context.Context, a, b uuid.UUID) (*messaging.Message, error) {
	return nil, nil
}

type stubRelations struct{ related bool }

func (s stubRelations) ContactsOf(ctx context.Context, userID uuid.UUID) ([]scheduling.Contact, error) {
	return nil, nil
}

func (s stubRelations) AreRelated(ctx context.Context, a, b uuid.UUID) (bool, error) {
	return s.related, nil
}

// drainEvent pops one queued frame from the client and decodes it.
func drainEvent(t *testing.T, c *Client) *chatproto.Envelope {
	t.Helper()
	select {
	case data := <-c.Send:
		env, err := chatproto.Decode(data)
		if err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return env
	default:
		t.Fatal("expected a queued frame")
		return nil
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("expected no frame, got %s", data)
	default:
	}
}

func sendPayload(t *testing.T, p chatproto.SendMessagePayload) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func newRelayFixture(repo *stubMessageRepo, related bool) (*Relay, *MemoryRegistry) {
	registry := NewMemoryRegistry()
	svc := messaging.NewService(repo, stubRelations{related: related}, zerolog.Nop())
	return NewRelay(svc, registry, zerolog.Nop()), registry
}

func TestRelay_DeliversToOnlineReceiver(t *testing.T) {
	repo := &stubMessageRepo{}
	relay, registry := newRelayFixture(repo, true)

	sender := testClient(uuid.New())
	receiver := testClient(uuid.New())
	registry.Register(receiver.Identity.UserID, receiver)

	relay.HandleSend(context.Background(), sender, sendPayload(t, chatproto.SendMessagePayload{
		ClientRef:  "out-1",
		ReceiverID: receiver.Identity.UserID.String(),
		Text:       "hello",
	}))

	ack := drainEvent(t, sender)
	if ack.Event != chatproto.EventMessageSent {
		t.Fatalf("expected message-sent ack, got %s", ack.Event)
	}
	var ackPayload chatproto.MessageSentPayload
	if err := json.Unmarshal(ack.Data, &ackPayload); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ackPayload.ClientRef != "out-1" {
		t.Errorf("expected clientRef echoed, got %q", ackPayload.ClientRef)
	}
	if ackPayload.Message.Text != "hello" || ackPayload.Message.ID == "" {
		t.Errorf("expected stored message in ack, got %+v", ackPayload.Message)
	}

	delivery := drainEvent(t, receiver)
	if delivery.Event != chatproto.EventReceiveMessage {
		t.Fatalf("expected receive-message, got %s", delivery.Event)
	}

	if len(repo.messages) != 1 {
		t.Errorf("expected 1 persisted message, got %d", len(repo.messages))
	}
}

func TestRelay_OfflineReceiverStillPersistsAndAcks(t *testing.T) {
	repo := &stubMessageRepo{}
	relay, _ := newRelayFixture(repo, true)

	sender := testClient(uuid.New())
	relay.HandleSend(context.Background(), sender, sendPayload(t, chatproto.SendMessagePayload{
		ReceiverID: uuid.New().String(),
		Text:       "are you there",
	}))

	if ack := drainEvent(t, sender); ack.Event != chatproto.EventMessageSent {
		t.Fatalf("expected message-sent, got %s", ack.Event)
	}
	if len(repo.messages) != 1 {
		t.Errorf("expected message persisted for later history reads, got %d", len(repo.messages))
	}
}

func TestRelay_RejectsInvalidSends(t *testing.T) {
	tests := []struct {
		name    string
		related bool
		fail    bool
		payload chatproto.SendMessagePayload
	}{
		{
			"unrelated users", false, false,
			chatproto.SendMessagePayload{ClientRef: "out-1", ReceiverID: uuid.New().String(), Text: "hi"},
		},
		{
			"blank message", true, false,
			chatproto.SendMessagePayload{ClientRef: "out-2", ReceiverID: uuid.New().String(), Text: "   "},
		},
		{
			"bad receiver id", true, false,
			chatproto.SendMessagePayload{ClientRef: "out-3", ReceiverID: "not-a-uuid", Text: "hi"},
		},
		{
			"persistence failure", true, true,
			chatproto.SendMessagePayload{ClientRef: "out-4", ReceiverID: uuid.New().String(), Text: "hi"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay, _ := newRelayFixture(&stubMessageRepo{fail: tt.fail}, tt.related)
			sender := testClient(uuid.New())

			relay.HandleSend(context.Background(), sender, sendPayload(t, tt.payload))

			env := drainEvent(t, sender)
			if env.Event != chatproto.EventSendRejected {
				t.Fatalf("expected send-rejected, got %s", env.Event)
			}
			var rej chatproto.SendRejectedPayload
			if err := json.Unmarshal(env.Data, &rej); err != nil {
				t.Fatalf("decode rejection: %v", err)
			}
			if rej.ClientRef != tt.payload.ClientRef {
				t.Errorf("expected clientRef %q, got %q", tt.payload.ClientRef, rej.ClientRef)
			}
			if rej.Reason == "" {
				t.Error("expected a reason")
			}
		})
	}
}

func TestRelay_SelfSendRejected(t *testing.T) {
	relay, _ := newRelayFixture(&stubMessageRepo{}, true)
	sender := testClient(uuid.New())

	relay.HandleSend(context.Background(), sender, sendPayload(t, chatproto.SendMessagePayload{
		ReceiverID: sender.Identity.UserID.String(),
		Text:       "echo",
	}))

	if env := drainEvent(t, sender); env.Event != chatproto.EventSendRejected {
		t.Fatalf("expected send-rejected, got %s", env.Event)
	}
	assertNoEvent(t, sender)
}

func TestRelay_AttachmentSurvivesRelay(t *testing.T) {
	repo := &stubMessageRepo{}
	relay, registry := newRelayFixture(repo, true)

	sender := testClient(uuid.New())
	receiver := testClient(uuid.New())
	registry.Register(receiver.Identity.UserID, receiver)

	relay.HandleSend(context.Background(), sender, sendPayload(t, chatproto.SendMessagePayload{
		ReceiverID: receiver.Identity.UserID.String(),
		Attachment: &chatproto.Attachment{
			URL: "http://localhost/uploads/a.png", Filename: "a.png",
			OriginalName: "scan.png", MimeType: "image/png", Size: 99,
		},
	}))

	drainEvent(t, sender) // ack

	env := drainEvent(t, receiver)
	var delivery struct {
		Message chatproto.Message `json:"message"`
	}
	if err := json.Unmarshal(env.Data, &delivery); err != nil {
		t.Fatalf("decode delivery: %v", err)
	}
	if delivery.Message.Attachment == nil || delivery.Message.Attachment.OriginalName != "scan.png" {
		t.Errorf("expected attachment delivered intact, got %+v", delivery.Message.Attachment)
	}
}
