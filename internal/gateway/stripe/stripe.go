// Package stripe adapts Stripe PaymentIntents to gateway.Gateway.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"plumberleads/internal/gateway"

	stripelib "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	eventSucceeded = "payment_intent.succeeded"
	eventFailed    = "payment_intent.payment_failed"
)

type Gateway struct {
	api           *client.API
	webhookSecret string
}

// New builds a gateway for the given secret key. backends may be nil to use
// the live Stripe endpoints.
func New(secretKey, webhookSecret string, backends *stripelib.Backends) *Gateway {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &Gateway{api: api, webhookSecret: webhookSecret}
}

func (g *Gateway) SignatureHeader() string { return "Stripe-Signature" }

func (g *Gateway) OpenAuthorization(ctx context.Context, req gateway.AuthorizationRequest) (*gateway.Authorization, error) {
	params := &stripelib.PaymentIntentParams{
		Amount:   stripelib.Int64(req.AmountCents),
		Currency: stripelib.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripelib.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripelib.Bool(true),
		},
	}
	if req.Description != "" {
		params.Description = stripelib.String(req.Description)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, providerError(err)
	}
	return &gateway.Authorization{
		Reference:    pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       mapStatus(pi),
	}, nil
}

func (g *Gateway) Confirm(ctx context.Context, reference string) (*gateway.Outcome, error) {
	params := &stripelib.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(reference, params)
	if err != nil {
		var serr *stripelib.Error
		if errors.As(err, &serr) && serr.HTTPStatusCode == 404 {
			return nil, gateway.ErrUnknownReference
		}
		return nil, providerError(err)
	}
	return outcomeOf(pi), nil
}

func (g *Gateway) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.Refund, error) {
	params := &stripelib.RefundParams{
		PaymentIntent: stripelib.String(req.Reference),
	}
	if req.AmountCents > 0 {
		params.Amount = stripelib.Int64(req.AmountCents)
	}
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.Context = ctx

	r, err := g.api.Refunds.New(params)
	if err != nil {
		return nil, providerError(err)
	}
	return &gateway.Refund{ID: r.ID, Status: string(r.Status)}, nil
}

func (g *Gateway) VerifySignature(payload []byte, signature string) (*gateway.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) || errors.Is(err, webhook.ErrNoValidSignature) ||
			errors.Is(err, webhook.ErrInvalidHeader) || errors.Is(err, webhook.ErrTooOld) {
			return nil, gateway.ErrInvalidSignature
		}
		return nil, fmt.Errorf("%w: %v", gateway.ErrMalformedPayload, err)
	}

	out := &gateway.WebhookEvent{ID: event.ID, Type: string(event.Type)}
	switch out.Type {
	case eventSucceeded, eventFailed:
	default:
		return out, nil
	}
	if event.Data == nil {
		return nil, gateway.ErrMalformedPayload
	}
	var pi stripelib.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrMalformedPayload, err)
	}
	if pi.ID == "" {
		return nil, gateway.ErrMalformedPayload
	}

	o := outcomeOf(&pi)
	// the event type is authoritative even if the embedded object lags behind
	if out.Type == eventSucceeded {
		o.Status = gateway.StatusSucceeded
	} else {
		o.Status = gateway.StatusFailed
	}
	out.Outcome = o
	return out, nil
}

func outcomeOf(pi *stripelib.PaymentIntent) *gateway.Outcome {
	o := &gateway.Outcome{
		Reference:   pi.ID,
		Status:      mapStatus(pi),
		AmountCents: pi.Amount,
		Currency:    string(pi.Currency),
		Metadata:    pi.Metadata,
	}
	if pi.LastPaymentError != nil {
		o.FailureMessage = pi.LastPaymentError.Msg
	}
	return o
}

func mapStatus(pi *stripelib.PaymentIntent) gateway.Status {
	switch pi.Status {
	case stripelib.PaymentIntentStatusSucceeded:
		return gateway.StatusSucceeded
	case stripelib.PaymentIntentStatusCanceled:
		return gateway.StatusFailed
	case stripelib.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			return gateway.StatusFailed
		}
	}
	return gateway.StatusPending
}

func providerError(err error) error {
	var serr *stripelib.Error
	if errors.As(err, &serr) {
		return &gateway.ProviderError{Message: serr.Msg, Err: err}
	}
	return err
}
