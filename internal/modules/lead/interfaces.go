package lead

import (
	"context"
	"time"

	"plumberleads/internal/domain"
	"plumberleads/internal/repository"

	"github.com/google/uuid"
)

type leadStore interface {
	Create(ctx context.Context, l *domain.Lead) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Lead, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Lead, error)
	List(ctx context.Context, f repository.LeadFilter, limit, offset int) ([]domain.Lead, int64, error)
	CompareAndSwap(ctx context.Context, l *domain.Lead, expected domain.LeadStatus, now time.Time) error
}

type historyStore interface {
	Append(ctx context.Context, h *domain.LeadHistory) error
	ListByLead(ctx context.Context, leadID uuid.UUID) ([]domain.LeadHistory, error)
}

type attemptFailer interface {
	FailPendingForLead(ctx context.Context, leadID uuid.UUID, reason string, now time.Time) (int64, error)
}

type transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
