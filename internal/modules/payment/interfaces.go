package payment

import (
	"context"
	"time"

	"plumberleads/internal/domain"
	"plumberleads/internal/repository"

	"github.com/google/uuid"
)

type leadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Lead, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Lead, error)
	CompareAndSwap(ctx context.Context, l *domain.Lead, expected domain.LeadStatus, now time.Time) error
}

type attemptStore interface {
	Create(ctx context.Context, a *domain.PaymentAttempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentAttempt, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.PaymentAttempt, error)
	GetByExternalRef(ctx context.Context, ref string) (*domain.PaymentAttempt, error)
	FindPending(ctx context.Context, leadID uuid.UUID, claimantID string) (*domain.PaymentAttempt, error)
	ListByLead(ctx context.Context, leadID uuid.UUID) ([]domain.PaymentAttempt, error)
	ListRefundRequired(ctx context.Context, limit int) ([]domain.PaymentAttempt, error)
	Transition(ctx context.Context, id uuid.UUID, from domain.AttemptStatus, ch repository.AttemptChange, now time.Time) error
}

type historyWriter interface {
	Append(ctx context.Context, h *domain.LeadHistory) error
}

type transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type reservations interface {
	ReleaseForPayment(ctx context.Context, leadID uuid.UUID, claimantID, reason string) (*domain.Lead, error)
	IsExpired(l *domain.Lead, now time.Time) bool
}

type finalizer interface {
	Finalize(ctx context.Context, attemptID uuid.UUID) (*domain.Lead, *domain.PaymentAttempt, error)
}

// deduper remembers webhook event ids. Claim reports false for an id seen before.
type deduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}
