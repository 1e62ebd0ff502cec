package messaging

import (
	"context"

	"github.com/google/uuid"
)

// MessageRepository is the persistence contract for the append-only message
// store.
type MessageRepository interface {
	Append(ctx context.Context, m *Message) error
	// ConversationBetween returns messages exchanged between two users in
	// ascending creation order.
	ConversationBetween(ctx context.Context, a, b uuid.UUID, limit, offset int) ([]*Message, int, error)
	// LatestWith returns the most recent message between two users, or nil
	// when they have never exchanged one.
	LatestWith(ctx context.Context, a, b uuid.UUID) (*Message, error)
}
