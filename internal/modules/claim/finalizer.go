// Package claim commits a paid reservation as a claim.
package claim

import (
	"context"
	"errors"
	"time"

	"plumberleads/internal/clock"
	"plumberleads/internal/domain"
	"plumberleads/internal/modules/reservation"
	"plumberleads/internal/notification"
	"plumberleads/internal/repository"

	"github.com/google/uuid"
)

type leadStore interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Lead, error)
	CompareAndSwap(ctx context.Context, l *domain.Lead, expected domain.LeadStatus, now time.Time) error
}

type attemptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentAttempt, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.PaymentAttempt, error)
	Transition(ctx context.Context, id uuid.UUID, from domain.AttemptStatus, ch repository.AttemptChange, now time.Time) error
}

type historyWriter interface {
	Append(ctx context.Context, h *domain.LeadHistory) error
}

type transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Finalizer struct {
	leads     leadStore
	attempts  attemptStore
	history   historyWriter
	tx        transactor
	clock     clock.Clock
	ttl       time.Duration
	publisher notification.Publisher
	loggerf   func(format string, args ...interface{})
}

func NewFinalizer(leads leadStore, attempts attemptStore, history historyWriter, tx transactor, c clock.Clock, ttl time.Duration, publisher notification.Publisher, loggerf func(format string, args ...interface{})) *Finalizer {
	if c == nil {
		c = clock.NewSystem()
	}
	if ttl <= 0 {
		ttl = reservation.DefaultTTL
	}
	if publisher == nil {
		publisher = notification.Discard
	}
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Finalizer{
		leads:     leads,
		attempts:  attempts,
		history:   history,
		tx:        tx,
		clock:     c,
		ttl:       ttl,
		publisher: publisher,
		loggerf:   loggerf,
	}
}

// Finalize moves the attempt to completed and the lead to claimed in one
// transaction. Calling it again for an attempt it already finalized returns the
// stored state with no writes. The lead row is locked before the attempt row,
// matching the order the reservation paths use.
func (f *Finalizer) Finalize(ctx context.Context, attemptID uuid.UUID) (*domain.Lead, *domain.PaymentAttempt, error) {
	var (
		lead    *domain.Lead
		attempt *domain.PaymentAttempt
		claimed bool
	)
	err := f.tx.WithTx(ctx, func(ctx context.Context) error {
		ref, err := f.attempts.GetByID(ctx, attemptID)
		if err != nil {
			return err
		}
		l, err := f.leads.GetForUpdate(ctx, ref.LeadID)
		if err != nil {
			return err
		}
		a, err := f.attempts.GetForUpdate(ctx, attemptID)
		if err != nil {
			return err
		}

		if a.Status == domain.AttemptCompleted && l.IsClaimedBy(a.ClaimantID) {
			lead, attempt = l, a
			return nil
		}
		if a.Status != domain.AttemptPending {
			return domain.ErrAttemptTerminal
		}
		if !l.IsReservedBy(a.ClaimantID) {
			return domain.ErrLeadUnavailable
		}
		now := f.clock.Now()
		if reservation.IsExpired(l, now, f.ttl) {
			return domain.ErrReservationExpired
		}

		l.Claim(a.ClaimantID, now)
		if err := f.leads.CompareAndSwap(ctx, l, domain.LeadReserved, now); err != nil {
			if errors.Is(err, domain.ErrStaleWrite) {
				return domain.ErrLeadUnavailable
			}
			return err
		}
		if err := f.attempts.Transition(ctx, a.ID, domain.AttemptPending, repository.AttemptChange{
			Status:      domain.AttemptCompleted,
			CompletedAt: &now,
		}, now); err != nil {
			return err
		}
		a.Status = domain.AttemptCompleted
		a.CompletedAt = &now
		a.UpdatedAt = now

		if err := f.history.Append(ctx, domain.StatusEntry(l.ID, a.ClaimantID, domain.LeadReserved, domain.LeadClaimed, domain.ChangeClaim, now)); err != nil {
			return err
		}
		lead, attempt, claimed = l, a, true
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if claimed {
		f.loggerf("level=info msg=lead claimed lead_id=%s claimant_id=%s attempt_id=%s", lead.ID, attempt.ClaimantID, attempt.ID)
		f.publisher.Publish(notification.Event{
			Type:            notification.EventLeadClaimed,
			LeadID:          lead.ID.String(),
			ClaimantID:      attempt.ClaimantID,
			Title:           lead.Title,
			ServiceCategory: lead.ServiceCategory,
			City:            lead.City,
			State:           lead.State,
			OccurredAt:      *lead.ClaimedAt,
		})
	}
	return lead, attempt, nil
}
