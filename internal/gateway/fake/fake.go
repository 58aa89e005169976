// Package fake is an in-memory payment gateway for development and tests.
// Webhooks are signed with HMAC-SHA256 over the raw body, hex encoded.
package fake

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"plumberleads/internal/gateway"
)

const (
	EventSucceeded = "payment.succeeded"
	EventFailed    = "payment.failed"
)

type intent struct {
	outcome      gateway.Outcome
	clientSecret string
	refunded     bool
}

type Gateway struct {
	secret []byte

	mu      sync.Mutex
	seq     int
	intents map[string]*intent
	byKey   map[string]string
	refunds map[string]*gateway.Refund
	nextErr error
	delay   time.Duration
	calls   map[string]int
}

func New(secret string) *Gateway {
	return &Gateway{
		secret:  []byte(secret),
		intents: make(map[string]*intent),
		byKey:   make(map[string]string),
		refunds: make(map[string]*gateway.Refund),
		calls:   make(map[string]int),
	}
}

func (g *Gateway) SignatureHeader() string { return "X-Fake-Signature" }

func (g *Gateway) OpenAuthorization(ctx context.Context, req gateway.AuthorizationRequest) (*gateway.Authorization, error) {
	if err := g.enter(ctx, "open"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if ref, ok := g.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		in := g.intents[ref]
		return &gateway.Authorization{Reference: ref, ClientSecret: in.clientSecret, Status: in.outcome.Status}, nil
	}
	if req.AmountCents <= 0 {
		return nil, &gateway.ProviderError{Message: "Amount must be at least 50 cents"}
	}

	g.seq++
	ref := fmt.Sprintf("fake_pi_%d", g.seq)
	meta := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		meta[k] = v
	}
	in := &intent{
		outcome: gateway.Outcome{
			Reference:   ref,
			Status:      gateway.StatusPending,
			AmountCents: req.AmountCents,
			Currency:    req.Currency,
			Metadata:    meta,
		},
		clientSecret: ref + "_secret",
	}
	g.intents[ref] = in
	if req.IdempotencyKey != "" {
		g.byKey[req.IdempotencyKey] = ref
	}
	return &gateway.Authorization{Reference: ref, ClientSecret: in.clientSecret, Status: gateway.StatusPending}, nil
}

func (g *Gateway) Confirm(ctx context.Context, reference string) (*gateway.Outcome, error) {
	if err := g.enter(ctx, "confirm"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	in, ok := g.intents[reference]
	if !ok {
		return nil, gateway.ErrUnknownReference
	}
	out := in.outcome
	return &out, nil
}

func (g *Gateway) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.Refund, error) {
	if err := g.enter(ctx, "refund"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if r, ok := g.refunds[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return r, nil
	}
	in, ok := g.intents[req.Reference]
	if !ok {
		return nil, gateway.ErrUnknownReference
	}
	if in.outcome.Status != gateway.StatusSucceeded {
		return nil, &gateway.ProviderError{Message: "This PaymentIntent does not have a successful charge to refund."}
	}
	if in.refunded {
		return nil, &gateway.ProviderError{Message: "Charge has already been refunded."}
	}
	in.refunded = true
	r := &gateway.Refund{ID: "fake_re_" + req.Reference, Status: "succeeded"}
	g.refunds[req.IdempotencyKey] = r
	return r, nil
}

type event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Reference      string            `json:"reference"`
		AmountCents    int64             `json:"amount_cents"`
		Currency       string            `json:"currency"`
		FailureMessage string            `json:"failure_message,omitempty"`
		Metadata       map[string]string `json:"metadata,omitempty"`
	} `json:"data"`
}

func (g *Gateway) VerifySignature(payload []byte, signature string) (*gateway.WebhookEvent, error) {
	if signature == "" || !hmac.Equal([]byte(signature), []byte(g.Sign(payload))) {
		return nil, gateway.ErrInvalidSignature
	}
	var ev event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrMalformedPayload, err)
	}
	if ev.ID == "" || ev.Type == "" {
		return nil, gateway.ErrMalformedPayload
	}

	out := &gateway.WebhookEvent{ID: ev.ID, Type: ev.Type}
	var status gateway.Status
	switch ev.Type {
	case EventSucceeded:
		status = gateway.StatusSucceeded
	case EventFailed:
		status = gateway.StatusFailed
	default:
		return out, nil
	}
	if ev.Data.Reference == "" {
		return nil, gateway.ErrMalformedPayload
	}
	out.Outcome = &gateway.Outcome{
		Reference:      ev.Data.Reference,
		Status:         status,
		AmountCents:    ev.Data.AmountCents,
		Currency:       ev.Data.Currency,
		FailureMessage: ev.Data.FailureMessage,
		Metadata:       ev.Data.Metadata,
	}
	return out, nil
}

// Sign returns the signature header value for payload.
func (g *Gateway) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// WebhookPayload builds a delivery body for the stored authorization ref.
func (g *Gateway) WebhookPayload(eventID, eventType, ref string) []byte {
	g.mu.Lock()
	var ev event
	ev.ID = eventID
	ev.Type = eventType
	ev.Data.Reference = ref
	if in, ok := g.intents[ref]; ok {
		ev.Data.AmountCents = in.outcome.AmountCents
		ev.Data.Currency = in.outcome.Currency
		ev.Data.FailureMessage = in.outcome.FailureMessage
		ev.Data.Metadata = in.outcome.Metadata
	}
	g.mu.Unlock()

	b, _ := json.Marshal(ev)
	return b
}

// Succeed marks the authorization as paid, as if the claimant completed checkout.
func (g *Gateway) Succeed(ref string) {
	g.setStatus(ref, gateway.StatusSucceeded, "")
}

func (g *Gateway) Fail(ref, message string) {
	g.setStatus(ref, gateway.StatusFailed, message)
}

// FailNext makes the next call of any kind return err.
func (g *Gateway) FailNext(err error) {
	g.mu.Lock()
	g.nextErr = err
	g.mu.Unlock()
}

// SetDelay makes every call block for d or until its context ends.
func (g *Gateway) SetDelay(d time.Duration) {
	g.mu.Lock()
	g.delay = d
	g.mu.Unlock()
}

func (g *Gateway) Calls(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[method]
}

func (g *Gateway) Refunded(ref string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.intents[ref]
	return ok && in.refunded
}

func (g *Gateway) setStatus(ref string, status gateway.Status, message string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if in, ok := g.intents[ref]; ok {
		in.outcome.Status = status
		in.outcome.FailureMessage = message
	}
}

func (g *Gateway) enter(ctx context.Context, method string) error {
	g.mu.Lock()
	g.calls[method]++
	delay := g.delay
	err := g.nextErr
	g.nextErr = nil
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
