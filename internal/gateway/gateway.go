// Package gateway defines the payment provider boundary. The core only talks
// to providers through Gateway; concrete providers live in subpackages.
package gateway

import (
	"context"
	"errors"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusPending   Status = "pending"
)

// Metadata keys attached to every authorization.
const (
	MetaLeadID     = "lead_id"
	MetaClaimantID = "claimant_id"
	MetaAttemptID  = "attempt_id"
)

type AuthorizationRequest struct {
	IdempotencyKey string
	AmountCents    int64
	Currency       string
	Description    string
	Metadata       map[string]string
}

type Authorization struct {
	Reference    string
	ClientSecret string
	Status       Status
}

// Outcome is the provider's view of one authorization.
type Outcome struct {
	Reference      string
	Status         Status
	AmountCents    int64
	Currency       string
	FailureMessage string
	Metadata       map[string]string
}

type RefundRequest struct {
	Reference      string
	IdempotencyKey string
	AmountCents    int64
	Reason         string
}

type Refund struct {
	ID     string
	Status string
}

// WebhookEvent is a verified delivery. Outcome is nil for event types that
// carry no payment result.
type WebhookEvent struct {
	ID      string
	Type    string
	Outcome *Outcome
}

type Gateway interface {
	OpenAuthorization(ctx context.Context, req AuthorizationRequest) (*Authorization, error)
	Confirm(ctx context.Context, reference string) (*Outcome, error)
	Refund(ctx context.Context, req RefundRequest) (*Refund, error)
	VerifySignature(payload []byte, signature string) (*WebhookEvent, error)
	SignatureHeader() string
}

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrUnknownReference = errors.New("unknown authorization reference")
)

// ProviderError is a rejection reported by the provider. Message is the
// provider text, unmodified.
type ProviderError struct {
	Message string
	Err     error
}

func (e *ProviderError) Error() string { return e.Message }

func (e *ProviderError) Unwrap() error { return e.Err }
