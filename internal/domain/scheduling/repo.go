package scheduling

import (
	"context"

	"github.com/google/uuid"
)

// AppointmentRepository is the persistence contract for appointments.
type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Appointment, int, error)
	// ListActiveByUser returns the pending/confirmed appointments in which
	// userID participates, on either side of the relation.
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]*Appointment, error)
}
