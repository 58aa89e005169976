package fake

import (
	"context"
	"errors"
	"testing"
	"time"

	"plumberleads/internal/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T, g *Gateway, key string) *gateway.Authorization {
	t.Helper()
	auth, err := g.OpenAuthorization(context.Background(), gateway.AuthorizationRequest{
		IdempotencyKey: key,
		AmountCents:    5000,
		Currency:       "usd",
		Metadata:       map[string]string{gateway.MetaAttemptID: "a-1"},
	})
	require.NoError(t, err)
	return auth
}

func TestOpenAuthorizationIsIdempotent(t *testing.T) {
	g := New("whsec")
	a := open(t, g, "k1")
	b := open(t, g, "k1")
	c := open(t, g, "k2")

	assert.Equal(t, a.Reference, b.Reference)
	assert.NotEqual(t, a.Reference, c.Reference)
	assert.Equal(t, gateway.StatusPending, a.Status)
	assert.NotEmpty(t, a.ClientSecret)
}

func TestConfirmReflectsOutcome(t *testing.T) {
	g := New("whsec")
	ctx := context.Background()
	a := open(t, g, "k1")

	out, err := g.Confirm(ctx, a.Reference)
	require.NoError(t, err)
	assert.Equal(t, gateway.StatusPending, out.Status)

	g.Fail(a.Reference, "Your card was declined.")
	out, err = g.Confirm(ctx, a.Reference)
	require.NoError(t, err)
	assert.Equal(t, gateway.StatusFailed, out.Status)
	assert.Equal(t, "Your card was declined.", out.FailureMessage)

	_, err = g.Confirm(ctx, "missing")
	assert.ErrorIs(t, err, gateway.ErrUnknownReference)
}

func TestRefundRequiresSuccessAndIsIdempotent(t *testing.T) {
	g := New("whsec")
	ctx := context.Background()
	a := open(t, g, "k1")

	_, err := g.Refund(ctx, gateway.RefundRequest{Reference: a.Reference, IdempotencyKey: "r1"})
	var perr *gateway.ProviderError
	require.ErrorAs(t, err, &perr)

	g.Succeed(a.Reference)
	r1, err := g.Refund(ctx, gateway.RefundRequest{Reference: a.Reference, IdempotencyKey: "r1"})
	require.NoError(t, err)
	r2, err := g.Refund(ctx, gateway.RefundRequest{Reference: a.Reference, IdempotencyKey: "r1"})
	require.NoError(t, err)
	assert.Equal(t, r1.ID, r2.ID)
	assert.True(t, g.Refunded(a.Reference))

	_, err = g.Refund(ctx, gateway.RefundRequest{Reference: a.Reference, IdempotencyKey: "r2"})
	assert.ErrorAs(t, err, &perr)
}

func TestVerifySignature(t *testing.T) {
	g := New("whsec")
	a := open(t, g, "k1")
	payload := g.WebhookPayload("evt_1", EventSucceeded, a.Reference)

	ev, err := g.VerifySignature(payload, g.Sign(payload))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	require.NotNil(t, ev.Outcome)
	assert.Equal(t, gateway.StatusSucceeded, ev.Outcome.Status)
	assert.Equal(t, int64(5000), ev.Outcome.AmountCents)
	assert.Equal(t, "a-1", ev.Outcome.Metadata[gateway.MetaAttemptID])

	_, err = g.VerifySignature(payload, "deadbeef")
	assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
	_, err = g.VerifySignature(payload, "")
	assert.ErrorIs(t, err, gateway.ErrInvalidSignature)

	other := New("different")
	_, err = other.VerifySignature(payload, g.Sign(payload))
	assert.ErrorIs(t, err, gateway.ErrInvalidSignature)
}

func TestVerifySignatureIgnoredAndMalformed(t *testing.T) {
	g := New("whsec")

	payload := g.WebhookPayload("evt_2", "payment.created", "fake_pi_9")
	ev, err := g.VerifySignature(payload, g.Sign(payload))
	require.NoError(t, err)
	assert.Nil(t, ev.Outcome)

	bad := []byte(`{"id":`)
	_, err = g.VerifySignature(bad, g.Sign(bad))
	assert.ErrorIs(t, err, gateway.ErrMalformedPayload)
}

func TestFailNextAndDelay(t *testing.T) {
	g := New("whsec")
	boom := errors.New("boom")
	g.FailNext(boom)

	_, err := g.Confirm(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
	_, err = g.Confirm(context.Background(), "x")
	assert.ErrorIs(t, err, gateway.ErrUnknownReference)

	g.SetDelay(time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = g.Confirm(ctx, "x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 3, g.Calls("confirm"))
}
