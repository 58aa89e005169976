package payment

import (
	"time"

	"plumberleads/internal/domain"

	"github.com/google/uuid"
)

// Webhook result statuses.
const (
	WebhookProcessed   = "processed"
	WebhookCompensated = "compensated"
	WebhookNoop        = "noop"
	WebhookIgnored     = "ignored"
	WebhookUnknown     = "unknown_reference"
	WebhookDuplicate   = "duplicate"
)

type WebhookResult struct {
	EventID       string `json:"event_id"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	AttemptID     string `json:"attempt_id,omitempty"`
	AttemptStatus string `json:"attempt_status,omitempty"`
}

type RefundRequest struct {
	Reason string `json:"reason" binding:"max=500" example:"customer cancelled job"`
}

type AttemptResponse struct {
	ID             uuid.UUID  `json:"id"`
	LeadID         uuid.UUID  `json:"lead_id"`
	ClaimantID     string     `json:"claimant_id"`
	AmountCents    int64      `json:"amount_cents" example:"5000"`
	Currency       string     `json:"currency" example:"usd"`
	Status         string     `json:"status" example:"pending"`
	ExternalRef    string     `json:"external_ref"`
	ClientSecret   string     `json:"client_secret,omitempty"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	RefundRequired bool       `json:"refund_required"`
	RefundReason   string     `json:"refund_reason,omitempty"`
	RefundedAt     *time.Time `json:"refunded_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// toResponse includes the client secret only for the pending attempt's payer.
func toResponse(a *domain.PaymentAttempt, withSecret bool) AttemptResponse {
	r := AttemptResponse{
		ID:             a.ID,
		LeadID:         a.LeadID,
		ClaimantID:     a.ClaimantID,
		AmountCents:    a.AmountCents,
		Currency:       a.Currency,
		Status:         string(a.Status),
		ExternalRef:    a.ExternalRef,
		FailureReason:  a.FailureReason,
		RefundRequired: a.RefundRequired,
		RefundReason:   a.RefundReason,
		RefundedAt:     a.RefundedAt,
		CompletedAt:    a.CompletedAt,
		CreatedAt:      a.CreatedAt,
	}
	if withSecret && a.Status == domain.AttemptPending {
		r.ClientSecret = a.ClientSecret
	}
	return r
}
