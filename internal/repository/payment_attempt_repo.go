package repository

import (
	"context"
	"errors"
	"time"

	"plumberleads/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AttemptChange is applied together with a status compare-and-set.
type AttemptChange struct {
	Status         domain.AttemptStatus
	FailureReason  *string
	RefundRequired *bool
	RefundReason   *string
	RefundedAt     *time.Time
	CompletedAt    *time.Time
}

type PaymentAttemptRepository struct {
	db *gorm.DB
}

func NewPaymentAttemptRepository(db *gorm.DB) *PaymentAttemptRepository {
	return &PaymentAttemptRepository{db: db}
}

// Create inserts a pending attempt. A second pending attempt for the same
// lead and claimant violates the partial unique index and returns ErrPendingExists.
func (r *PaymentAttemptRepository) Create(ctx context.Context, a *domain.PaymentAttempt) error {
	if err := conn(ctx, r.db).Create(a).Error; err != nil {
		if IsUniqueViolation(err) {
			return domain.ErrPendingExists
		}
		return err
	}
	return nil
}

func (r *PaymentAttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentAttempt, error) {
	var a domain.PaymentAttempt
	if err := conn(ctx, r.db).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, notFoundAttempt(err)
	}
	return &a, nil
}

func (r *PaymentAttemptRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.PaymentAttempt, error) {
	var a domain.PaymentAttempt
	if err := conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, notFoundAttempt(err)
	}
	return &a, nil
}

func (r *PaymentAttemptRepository) GetByExternalRef(ctx context.Context, ref string) (*domain.PaymentAttempt, error) {
	var a domain.PaymentAttempt
	if err := conn(ctx, r.db).Where("external_ref = ?", ref).First(&a).Error; err != nil {
		return nil, notFoundAttempt(err)
	}
	return &a, nil
}

// FindPending returns the pending attempt for the pair, or ErrAttemptNotFound.
func (r *PaymentAttemptRepository) FindPending(ctx context.Context, leadID uuid.UUID, claimantID string) (*domain.PaymentAttempt, error) {
	var a domain.PaymentAttempt
	err := conn(ctx, r.db).
		Where("lead_id = ? AND claimant_id = ? AND status = ?", leadID, claimantID, domain.AttemptPending).
		First(&a).Error
	if err != nil {
		return nil, notFoundAttempt(err)
	}
	return &a, nil
}

func (r *PaymentAttemptRepository) ListByLead(ctx context.Context, leadID uuid.UUID) ([]domain.PaymentAttempt, error) {
	var out []domain.PaymentAttempt
	if err := conn(ctx, r.db).Where("lead_id = ?", leadID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PaymentAttemptRepository) ListRefundRequired(ctx context.Context, limit int) ([]domain.PaymentAttempt, error) {
	var out []domain.PaymentAttempt
	err := conn(ctx, r.db).
		Where("status = ? AND refund_required = ? AND refunded_at IS NULL", domain.AttemptFailed, true).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Transition moves an attempt out of status from. It returns ErrAttemptTerminal
// when another writer already moved it.
func (r *PaymentAttemptRepository) Transition(ctx context.Context, id uuid.UUID, from domain.AttemptStatus, ch AttemptChange, now time.Time) error {
	updates := map[string]interface{}{
		"status":     ch.Status,
		"updated_at": now,
	}
	if ch.FailureReason != nil {
		updates["failure_reason"] = *ch.FailureReason
	}
	if ch.RefundRequired != nil {
		updates["refund_required"] = *ch.RefundRequired
	}
	if ch.RefundReason != nil {
		updates["refund_reason"] = *ch.RefundReason
	}
	if ch.RefundedAt != nil {
		updates["refunded_at"] = *ch.RefundedAt
	}
	if ch.CompletedAt != nil {
		updates["completed_at"] = *ch.CompletedAt
	}

	res := conn(ctx, r.db).Model(&domain.PaymentAttempt{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAttemptTerminal
	}
	return nil
}

// FailPendingForLead fails every pending attempt of a lead and returns how many changed.
func (r *PaymentAttemptRepository) FailPendingForLead(ctx context.Context, leadID uuid.UUID, reason string, now time.Time) (int64, error) {
	res := conn(ctx, r.db).Model(&domain.PaymentAttempt{}).
		Where("lead_id = ? AND status = ?", leadID, domain.AttemptPending).
		Updates(map[string]interface{}{
			"status":         domain.AttemptFailed,
			"failure_reason": reason,
			"updated_at":     now,
		})
	return res.RowsAffected, res.Error
}

func notFoundAttempt(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrAttemptNotFound
	}
	return err
}
