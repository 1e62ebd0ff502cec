package calls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound       = errors.New("call log not found")
	ErrNotParticipant = errors.New("user is not a participant of this call")
	ErrAlreadyClosed  = errors.New("call log is already closed")
	ErrInvalidOutcome = errors.New("invalid call outcome")
	ErrSelfCall       = errors.New("cannot call yourself")
	ErrNotRelated     = errors.New("no active appointment with this user")
)

// RelationshipChecker gates who may call whom. The scheduling service is the
// production implementation.
type RelationshipChecker interface {
	AreRelated(ctx context.Context, a, b uuid.UUID) (bool, error)
}

// Service owns the call log lifecycle: opened as ringing, closed once as
// completed or missed.
type Service struct {
	repo      CallLogRepository
	relations RelationshipChecker
	logger    zerolog.Logger
}

func NewService(repo CallLogRepository, relations RelationshipChecker, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		relations: relations,
		logger:    logger.With().Str("component", "calls").Logger(),
	}
}

// Start opens a call log in the ringing state.
func (s *Service) Start(ctx context.Context, caller, receiver uuid.UUID) (*CallLog, error) {
	if caller == uuid.Nil || receiver == uuid.Nil {
		return nil, fmt.Errorf("caller and receiver are required")
	}
	if caller == receiver {
		return nil, ErrSelfCall
	}

	related, err := s.relations.AreRelated(ctx, caller, receiver)
	if err != nil {
		return nil, fmt.Errorf("check relationship: %w", err)
	}
	if !related {
		return nil, ErrNotRelated
	}

	cl := &CallLog{CallerID: caller, ReceiverID: receiver, Status: StatusRinging}
	if err := s.repo.Create(ctx, cl); err != nil {
		return nil, fmt.Errorf("create call log: %w", err)
	}

	s.logger.Info().
		Str("call_id", cl.ID.String()).
		Str("caller", caller.String()).
		Str("receiver", receiver.String()).
		Msg("call started")

	return cl, nil
}

// Complete closes a ringing call with a final outcome. Duration is computed
// server-side from the start timestamp; missed calls get zero duration.
func (s *Service) Complete(ctx context.Context, id, callerID uuid.UUID, outcome string) (*CallLog, error) {
	if outcome != StatusCompleted && outcome != StatusMissed {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOutcome, outcome)
	}

	cl, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	if callerID != cl.CallerID && callerID != cl.ReceiverID {
		return nil, ErrNotParticipant
	}
	if cl.Status != StatusRinging {
		return nil, ErrAlreadyClosed
	}

	now := time.Now().UTC()
	cl.Status = outcome
	cl.EndedAt = &now
	if outcome == StatusCompleted {
		cl.DurationSeconds = int(now.Sub(cl.StartedAt).Seconds())
		if cl.DurationSeconds < 0 {
			cl.DurationSeconds = 0
		}
	}

	if err := s.repo.Update(ctx, cl); err != nil {
		return nil, fmt.Errorf("update call log: %w", err)
	}

	s.logger.Info().
		Str("call_id", cl.ID.String()).
		Str("outcome", outcome).
		Int("duration_seconds", cl.DurationSeconds).
		Msg("call closed")

	return cl, nil
}

// History returns the user's call logs, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*CallLog, int, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}
