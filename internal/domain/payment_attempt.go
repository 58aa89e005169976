package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptCompleted AttemptStatus = "completed"
	AttemptFailed    AttemptStatus = "failed"
	AttemptRefunded  AttemptStatus = "refunded"
)

// PaymentAttempt is one external authorization tied to one reservation.
// AmountCents is fixed at creation and never updated.
type PaymentAttempt struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	LeadID         uuid.UUID     `gorm:"type:uuid;not null;index;uniqueIndex:idx_attempt_pending_pair,where:status = 'pending'" json:"lead_id"`
	ClaimantID     string        `gorm:"type:varchar(64);not null;index;uniqueIndex:idx_attempt_pending_pair,where:status = 'pending'" json:"claimant_id"`
	AmountCents    int64         `gorm:"not null;<-:create" json:"amount_cents"`
	Currency       string        `gorm:"type:varchar(3);not null;<-:create" json:"currency"`
	ExternalRef    string        `gorm:"type:varchar(128);not null;uniqueIndex" json:"external_ref"`
	ClientSecret   string        `gorm:"type:varchar(255)" json:"-"`
	Status         AttemptStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	FailureReason  string        `gorm:"type:text" json:"failure_reason,omitempty"`
	RefundRequired bool          `gorm:"not null;default:false;index" json:"refund_required"`
	RefundReason   string        `gorm:"type:text" json:"refund_reason,omitempty"`
	RefundedAt     *time.Time    `json:"refunded_at,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`

	Lead *Lead `gorm:"foreignKey:LeadID;references:ID" json:"-"`
}

func (PaymentAttempt) TableName() string { return "payment_attempts" }

func (a *PaymentAttempt) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (a *PaymentAttempt) IsTerminal() bool {
	return a.Status != AttemptPending
}

// Unsettled reports a failed attempt with no refund on record. The gateway
// may still have captured it.
func (a *PaymentAttempt) Unsettled() bool {
	return a.Status == AttemptFailed && !a.RefundRequired && a.RefundedAt == nil
}

// NeedsCompensation reports a captured payment with no claim behind it.
func (a *PaymentAttempt) NeedsCompensation() bool {
	return a.Status == AttemptFailed && a.RefundRequired && a.RefundedAt == nil
}
