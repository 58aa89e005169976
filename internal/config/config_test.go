package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "file:test.db")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, 60*time.Minute, cfg.ReservationTTL)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, int64(1500), cfg.LeadPriceCents)
	assert.Equal(t, 0.15, cfg.LeadClaimPercentage)
	assert.Equal(t, int64(3000), cfg.MinimumLeadPriceCents)
	assert.Equal(t, "usd", cfg.Currency)
	assert.Equal(t, "fake", cfg.PaymentGateway)
	assert.True(t, cfg.SweeperEnabled)
	assert.False(t, cfg.IsProduction())
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"missing database":   {"DATABASE_URL": ""},
		"bad ttl":            {"RESERVATION_TTL": "soon"},
		"zero interval":      {"SWEEP_INTERVAL": "0s"},
		"bad price":          {"DEFAULT_LEAD_PRICE_CENTS": "15.00"},
		"percentage over 1":  {"LEAD_CLAIM_PERCENTAGE": "15"},
		"bad percentage":     {"LEAD_CLAIM_PERCENTAGE": "lots"},
		"zero minimum":       {"MINIMUM_LEAD_PRICE_CENTS": "0"},
		"unknown gateway":    {"PAYMENT_GATEWAY": "paypal"},
		"stripe without key": {"PAYMENT_GATEWAY": "stripe"},
		"unknown geocoder":   {"GEOCODER": "google"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "file:test.db")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestProductionRejectsDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/leads")
	t.Setenv("APP_ENV", "production")
	t.Setenv("PAYMENT_GATEWAY", "stripe")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("WEBHOOK_SECRET", "whsec_123")

	_, err := FromEnv()
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "real-secret")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.AppEnv)

	t.Setenv("PAYMENT_GATEWAY", "fake")
	_, err = FromEnv()
	assert.ErrorContains(t, err, "PAYMENT_GATEWAY")
}
