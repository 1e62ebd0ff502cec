package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// Appointment statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Appointment maps to the appointment table. A pending or confirmed
// appointment is what entitles a patient and a doctor to message each other.
type Appointment struct {
	ID                    uuid.UUID `db:"id" json:"id"`
	DoctorUserID          uuid.UUID `db:"doctor_user_id" json:"doctor_user_id"`
	PatientUserID         uuid.UUID `db:"patient_user_id" json:"patient_user_id"`
	Date                  string    `db:"date" json:"date"`
	Time                  string    `db:"time" json:"time"`
	Fee                   float64   `db:"fee" json:"fee"`
	Status                string    `db:"status" json:"status"`
	StripeSessionID       *string   `db:"stripe_session_id" json:"stripe_session_id,omitempty"`
	StripePaymentIntentID *string   `db:"stripe_payment_intent_id" json:"stripe_payment_intent_id,omitempty"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

// Contact is a user the caller may message, derived from an active
// appointment. The counterpart of a doctor is always a patient and vice versa.
type Contact struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role"`
}

// Counterpart returns the other party of the appointment relative to userID,
// and false when userID is not a party at all.
func (a *Appointment) Counterpart(userID uuid.UUID) (Contact, bool) {
	switch userID {
	case a.DoctorUserID:
		return Contact{UserID: a.PatientUserID, Role: "patient"}, true
	case a.PatientUserID:
		return Contact{UserID: a.DoctorUserID, Role: "doctor"}, true
	}
	return Contact{}, false
}

// Active reports whether the appointment creates a contact edge.
func (a *Appointment) Active() bool {
	return a.Status == StatusPending || a.Status == StatusConfirmed
}
