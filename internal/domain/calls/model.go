// Package calls records the lifecycle of video calls. Signaling itself is
// relayed live over the socket; this package only keeps the audit trail.
package calls

import (
	"time"

	"github.com/google/uuid"
)

// Call log statuses.
const (
	StatusRinging   = "ringing"
	StatusMissed    = "missed"
	StatusCompleted = "completed"
)

// CallLog is one call attempt between two users.
type CallLog struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	CallerID        uuid.UUID  `db:"caller_id" json:"callerId"`
	ReceiverID      uuid.UUID  `db:"receiver_id" json:"receiverId"`
	Status          string     `db:"status" json:"status"`
	StartedAt       time.Time  `db:"started_at" json:"startedAt"`
	EndedAt         *time.Time `db:"ended_at" json:"endedAt,omitempty"`
	DurationSeconds int        `db:"duration_seconds" json:"durationSeconds"`
}
