package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrInvalidStatus     = errors.New("invalid appointment status")
	ErrSameParticipant   = errors.New("doctor and patient must be different users")
	ErrMissingSchedule   = errors.New("date and time are required")
	ErrNotParticipant    = errors.New("user is not a participant of this appointment")
	ErrInvalidTransition = errors.New("invalid status transition")
)

var validStatuses = map[string]bool{
	StatusPending:   true,
	StatusConfirmed: true,
	StatusCancelled: true,
}

// Service owns appointment business rules and derives the contact graph that
// gates who may message whom.
type Service struct {
	repo   AppointmentRepository
	logger zerolog.Logger
}

func NewService(repo AppointmentRepository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "scheduling").Logger()}
}

// Create books an appointment. Status defaults to pending when unset.
func (s *Service) Create(ctx context.Context, a *Appointment) (*Appointment, error) {
	if a.DoctorUserID == uuid.Nil || a.PatientUserID == uuid.Nil {
		return nil, fmt.Errorf("doctor and patient ids are required")
	}
	if a.DoctorUserID == a.PatientUserID {
		return nil, ErrSameParticipant
	}
	if a.Date == "" || a.Time == "" {
		return nil, ErrMissingSchedule
	}
	if a.Status == "" {
		a.Status = StatusPending
	}
	if !validStatuses[a.Status] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, a.Status)
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("doctor", a.DoctorUserID.String()).
		Str("patient", a.PatientUserID.String()).
		Msg("appointment created")

	return a, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	return a, nil
}

// UpdateStatus moves an appointment to a new status. Cancelled is terminal.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, callerID uuid.UUID, status string) (*Appointment, error) {
	if !validStatuses[status] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	if callerID != a.DoctorUserID && callerID != a.PatientUserID {
		return nil, ErrNotParticipant
	}
	if a.Status == StatusCancelled && status != StatusCancelled {
		return nil, fmt.Errorf("%w: cancelled appointments cannot be reopened", ErrInvalidTransition)
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	a.Status = status

	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("status", status).
		Msg("appointment status updated")

	return a, nil
}

func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// ContactsOf derives the users that userID is currently entitled to message:
// the counterparts of every pending or confirmed appointment. Each contact
// appears once, in the order its first appointment was discovered.
func (s *Service) ContactsOf(ctx context.Context, userID uuid.UUID) ([]Contact, error) {
	appts, err := s.repo.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list active appointments: %w", err)
	}

	seen := make(map[uuid.UUID]bool, len(appts))
	contacts := make([]Contact, 0, len(appts))
	for _, a := range appts {
		c, ok := a.Counterpart(userID)
		if !ok || seen[c.UserID] {
			continue
		}
		seen[c.UserID] = true
		contacts = append(contacts, c)
	}
	return contacts, nil
}

// AreRelated reports whether two users share at least one active appointment.
func (s *Service) AreRelated(ctx context.Context, a, b uuid.UUID) (bool, error) {
	contacts, err := s.ContactsOf(ctx, a)
	if err != nil {
		return false, err
	}
	for _, c := range contacts {
		if c.UserID == b {
			return true, nil
		}
	}
	return false, nil
}
