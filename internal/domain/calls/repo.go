package calls

import (
	"context"

	"github.com/google/uuid"
)

// CallLogRepository is the persistence contract for call logs.
type CallLogRepository interface {
	Create(ctx context.Context, cl *CallLog) error
	GetByID(ctx context.Context, id uuid.UUID) (*CallLog, error)
	Update(ctx context.Context, cl *CallLog) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*CallLog, int, error)
}
