package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telemed/telemed/internal/domain/scheduling"
	"github.com/telemed/telemed/internal/platform/uploads"
)

var (
	ErrEmptyMessage = errors.New("message needs text or an attachment")
	ErrSelfMessage  = errors.New("cannot send a message to yourself")
	ErrNotRelated   = errors.New("no active appointment with this user")
)

// RelationshipDirectory answers who a user may talk to. The scheduling
// service is the production implementation.
type RelationshipDirectory interface {
	ContactsOf(ctx context.Context, userID uuid.UUID) ([]scheduling.Contact, error)
	AreRelated(ctx context.Context, a, b uuid.UUID) (bool, error)
}

// Service validates and persists messages and assembles chat threads.
type Service struct {
	repo      MessageRepository
	relations RelationshipDirectory
	logger    zerolog.Logger
}

func NewService(repo MessageRepository, relations RelationshipDirectory, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		relations: relations,
		logger:    logger.With().Str("component", "messaging").Logger(),
	}
}

// SendMessage validates and appends one message. The persisted message is
// returned with its server-assigned id and timestamp.
func (s *Service) SendMessage(ctx context.Context, sender, receiver uuid.UUID, text string, attachment *uploads.Attachment) (*Message, error) {
	if sender == uuid.Nil || receiver == uuid.Nil {
		return nil, fmt.Errorf("sender and receiver are required")
	}
	if sender == receiver {
		return nil, ErrSelfMessage
	}

	text = strings.TrimSpace(text)
	if text == "" && attachment == nil {
		return nil, ErrEmptyMessage
	}

	related, err := s.relations.AreRelated(ctx, sender, receiver)
	if err != nil {
		return nil, fmt.Errorf("check relationship: %w", err)
	}
	if !related {
		return nil, ErrNotRelated
	}

	m := &Message{
		SenderID:   sender,
		ReceiverID: receiver,
		Text:       text,
		Attachment: attachment,
	}
	if err := s.repo.Append(ctx, m); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	s.logger.Debug().
		Str("message_id", m.ID.String()).
		Str("sender", sender.String()).
		Str("receiver", receiver.String()).
		Bool("has_attachment", attachment != nil).
		Msg("message stored")

	return m, nil
}

// Conversation returns the caller's history with another related user, oldest
// first.
func (s *Service) Conversation(ctx context.Context, caller, other uuid.UUID, limit, offset int) ([]*Message, int, error) {
	related, err := s.relations.AreRelated(ctx, caller, other)
	if err != nil {
		return nil, 0, fmt.Errorf("check relationship: %w", err)
	}
	if !related {
		return nil, 0, ErrNotRelated
	}
	return s.repo.ConversationBetween(ctx, caller, other, limit, offset)
}

// BuildThreads assembles the caller's chat list: one thread per contact, with
// the most recent message attached. Contacts without any history still get a
// thread, so a fresh appointment is immediately visible in the chat UI.
func (s *Service) BuildThreads(ctx context.Context, userID uuid.UUID) ([]*Thread, error) {
	contacts, err := s.relations.ContactsOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}

	threads := make([]*Thread, 0, len(contacts))
	for _, contact := range contacts {
		last, err := s.repo.LatestWith(ctx, userID, contact.UserID)
		if err != nil {
			return nil, fmt.Errorf("latest message with %s: %w", contact.UserID, err)
		}
		threads = append(threads, &Thread{Contact: contact, LastMessage: last})
	}
	return threads, nil
}
