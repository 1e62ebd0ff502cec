package calls

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockCallLogRepo struct {
	logs  map[uuid.UUID]*CallLog
	order []uuid.UUID
}

func newMockCallLogRepo() *mockCallLogRepo {
	return &mockCallLogRepo{logs: make(map[uuid.UUID]*CallLog)}
}

func (m *mockCallLogRepo) Create(ctx context.Context, cl *CallLog) error {
	cl.ID = uuid.New()
	cl.StartedAt = time.Now().UTC()
	m.logs[cl.ID] = cl
	m.order = append(m.order, cl.ID)
	return nil
}

func (m *mockCallLogRepo) GetByID(ctx context.Context, id uuid.UUID) (*CallLog, error) {
	cl, ok := m.logs[id]
	if !ok {
		return nil, errors.New("no rows")
	}
	return cl, nil
}

func (m *mockCallLogRepo) Update(ctx context.Context, cl *CallLog) error {
	if _, ok := m.logs[cl.ID]; !ok {
		return errors.New("no rows")
	}
	m.logs[cl.ID] = cl
	return nil
}

func (m *mockCallLogRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*CallLog, int, error) {
	var all []*CallLog
	// order holds insertion order; newest first means reverse.
	for i := len(m.order) - 1; i >= 0; i-- {
		cl := m.logs[m.order[i]]
		if cl.CallerID == userID || cl.ReceiverID == userID {
			all = append(all, cl)
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

type allowAll struct{}

func (allowAll) AreRelated(ctx context.Context, a, b uuid.UUID) (bool, error) { return true, nil }

type denyAll struct{}

func (denyAll) AreRelated(ctx context.Context, a, b uuid.UUID) (bool, error) { return false, nil }

func TestService_StartOpensRinging(t *testing.T) {
	svc := NewService(newMockCallLogRepo(), allowAll{}, zerolog.Nop())

	cl, err := svc.Start(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cl.Status != StatusRinging {
		t.Errorf("expected ringing, got %s", cl.Status)
	}
	if cl.StartedAt.IsZero() {
		t.Error("expected start timestamp")
	}
}

func TestService_StartValidation(t *testing.T) {
	same := uuid.New()

	svc := NewService(newMockCallLogRepo(), allowAll{}, zerolog.Nop())
	if _, err := svc.Start(context.Background(), same, same); !errors.Is(err, ErrSelfCall) {
		t.Errorf("expected ErrSelfCall, got %v", err)
	}

	svc = NewService(newMockCallLogRepo(), denyAll{}, zerolog.Nop())
	if _, err := svc.Start(context.Background(), uuid.New(), uuid.New()); !errors.Is(err, ErrNotRelated) {
		t.Errorf("expected ErrNotRelated, got %v", err)
	}
}

func TestService_CompleteLifecycle(t *testing.T) {
	repo := newMockCallLogRepo()
	svc := NewService(repo, allowAll{}, zerolog.Nop())

	caller, receiver := uuid.New(), uuid.New()
	cl, err := svc.Start(context.Background(), caller, receiver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	closed, err := svc.Complete(context.Background(), cl.ID, receiver, StatusCompleted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closed.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", closed.Status)
	}
	if closed.EndedAt == nil {
		t.Error("expected ended timestamp")
	}

	// Closing twice is rejected.
	if _, err := svc.Complete(context.Background(), cl.ID, caller, StatusMissed); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("expected ErrAlreadyClosed, got %v", err)
	}
}

func TestService_CompleteMissedHasZeroDuration(t *testing.T) {
	repo := newMockCallLogRepo()
	svc := NewService(repo, allowAll{}, zerolog.Nop())

	cl, err := svc.Start(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	closed, err := svc.Complete(context.Background(), cl.ID, cl.CallerID, StatusMissed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if closed.DurationSeconds != 0 {
		t.Errorf("expected zero duration for missed call, got %d", closed.DurationSeconds)
	}
}

func TestService_CompleteGuards(t *testing.T) {
	repo := newMockCallLogRepo()
	svc := NewService(repo, allowAll{}, zerolog.Nop())

	cl, err := svc.Start(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.Complete(context.Background(), cl.ID, uuid.New(), StatusCompleted); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("expected ErrNotParticipant, got %v", err)
	}
	if _, err := svc.Complete(context.Background(), cl.ID, cl.CallerID, "ringing"); !errors.Is(err, ErrInvalidOutcome) {
		t.Errorf("expected ErrInvalidOutcome, got %v", err)
	}
	if _, err := svc.Complete(context.Background(), uuid.New(), cl.CallerID, StatusCompleted); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_History(t *testing.T) {
	repo := newMockCallLogRepo()
	svc := NewService(repo, allowAll{}, zerolog.Nop())

	user, other := uuid.New(), uuid.New()
	if _, err := svc.Start(context.Background(), user, other); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Start(context.Background(), other, user); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Start(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, total, err := svc.History(context.Background(), user, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("expected 2 calls, got %d (total %d)", len(items), total)
	}
}
