// Package messaging implements the chat message store and thread assembly.
// Messages are append-only: there is no edit or delete surface.
package messaging

import (
	"time"

	"github.com/google/uuid"

	"github.com/telemed/telemed/internal/domain/scheduling"
	"github.com/telemed/telemed/internal/platform/uploads"
)

// Message is one chat message between two related users. Text and Attachment
// may each be empty, but never both.
type Message struct {
	ID         uuid.UUID           `db:"id" json:"id"`
	SenderID   uuid.UUID           `db:"sender_id" json:"senderId"`
	ReceiverID uuid.UUID           `db:"receiver_id" json:"receiverId"`
	Text       string              `db:"text" json:"text"`
	Attachment *uploads.Attachment `db:"attachment" json:"attachment,omitempty"`
	CreatedAt  time.Time           `db:"created_at" json:"createdAt"`
}

// Thread is one entry in a user's contact list: the contact plus the most
// recent message exchanged with them, if any.
type Thread struct {
	Contact     scheduling.Contact `json:"contact"`
	LastMessage *Message           `json:"lastMessage,omitempty"`
}
