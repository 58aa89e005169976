package reservation

import (
	"context"
	"time"

	"plumberleads/internal/domain"

	"github.com/google/uuid"
)

type leadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Lead, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Lead, error)
	CompareAndSwap(ctx context.Context, l *domain.Lead, expected domain.LeadStatus, now time.Time) error
	UpdateLocation(ctx context.Context, id uuid.UUID, lat, lng float64) error
}

type historyWriter interface {
	Append(ctx context.Context, h *domain.LeadHistory) error
}

type claimantStore interface {
	GetByID(ctx context.Context, id string) (*domain.Claimant, error)
	UpdateLocation(ctx context.Context, id string, lat, lng float64) error
}

type attemptFailer interface {
	FailPendingForLead(ctx context.Context, leadID uuid.UUID, reason string, now time.Time) (int64, error)
}

type transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
