package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"plumberleads/internal/clock"
	"plumberleads/internal/config"
	"plumberleads/internal/gateway/fake"
	"plumberleads/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

type testServer struct {
	app    *App
	gw     *fake.Gateway
	clock  *clock.Manual
	tokens map[string]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := &config.Config{
		JWTSecret:      "test-secret",
		ReservationTTL: time.Hour,
		SweepInterval:  time.Minute,
		GatewayTimeout: time.Second,
		Currency:       "usd",
		LeadPriceCents: 5000,
	}
	s := &testServer{
		gw:     fake.New("whsec_test"),
		clock:  clock.NewManual(time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)),
		tokens: map[string]string{},
	}
	s.app = NewApp(cfg, Deps{DB: db, Gateway: s.gw, Clock: s.clock})

	testutil.SeedClaimant(t, db, "plumber-1")
	testutil.SeedClaimant(t, db, "plumber-2")
	for _, who := range []struct {
		id    string
		admin bool
	}{{"plumber-1", false}, {"plumber-2", false}, {"admin-1", true}} {
		tok, err := s.app.JWT.GenerateToken(who.id, who.admin)
		require.NoError(t, err)
		s.tokens[who.id] = tok
	}
	return s
}

func (s *testServer) do(t *testing.T, method, path, actor string, body interface{}, headers ...string) (int, envelope) {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		raw = b
	default:
		var err error
		raw, err = json.Marshal(b)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[actor])
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.app.Router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w.Code, env
}

type leadBody struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	PriceCents    int64   `json:"price_cents"`
	ReservedBy    *string `json:"reserved_by"`
	ClaimedBy     *string `json:"claimed_by"`
	CustomerEmail string  `json:"customer_email"`
	Address       string  `json:"address"`
}

type attemptBody struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ExternalRef  string `json:"external_ref"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount_cents"`
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v))
}

func (s *testServer) submit(t *testing.T) leadBody {
	t.Helper()
	code, env := s.do(t, http.MethodPost, "/api/v1/leads", "", map[string]interface{}{
		"title":            "Burst pipe",
		"description":      "Water under the kitchen sink",
		"service_category": "plumbing",
		"urgency":          "emergency",
		"address":          "100 Congress Ave",
		"city":             "Austin",
		"state":            "TX",
		"zip_code":         "78701",
		"latitude":         testutil.AustinLat,
		"longitude":        testutil.AustinLng,
		"customer_name":    "Jordan Customer",
		"customer_email":   "jordan@example.com",
		"customer_phone":   "512-555-0100",
	})
	require.Equal(t, http.StatusCreated, code, env.Error.Message)
	var l leadBody
	decode(t, env.Data, &l)
	return l
}

func (s *testServer) reserveAndOpen(t *testing.T, leadID string) attemptBody {
	t.Helper()
	code, env := s.do(t, http.MethodPost, "/api/v1/leads/"+leadID+"/reserve", "plumber-1", nil)
	require.Equal(t, http.StatusOK, code, env.Error.Message)

	code, env = s.do(t, http.MethodPost, "/api/v1/leads/"+leadID+"/payments", "plumber-1", nil)
	require.Equal(t, http.StatusCreated, code, env.Error.Message)
	var a attemptBody
	decode(t, env.Data, &a)
	return a
}

func (s *testServer) lead(t *testing.T, id, actor string) leadBody {
	t.Helper()
	code, env := s.do(t, http.MethodGet, "/api/v1/leads/"+id, actor, nil)
	require.Equal(t, http.StatusOK, code, env.Error.Message)
	var l leadBody
	decode(t, env.Data, &l)
	return l
}

func TestRoundTrip_WebhookClaimsLead(t *testing.T) {
	s := newTestServer(t)
	l := s.submit(t)
	assert.Equal(t, "available", l.Status)
	assert.Equal(t, int64(5000), l.PriceCents)

	a := s.reserveAndOpen(t, l.ID)
	assert.Equal(t, "pending", a.Status)
	assert.Equal(t, int64(5000), a.AmountCents)
	assert.NotEmpty(t, a.ClientSecret)

	// contact stays hidden while only reserved
	held := s.lead(t, l.ID, "plumber-1")
	assert.Equal(t, "reserved", held.Status)
	assert.Empty(t, held.CustomerEmail)

	s.gw.Succeed(a.ExternalRef)
	payload := s.gw.WebhookPayload("evt_1", fake.EventSucceeded, a.ExternalRef)
	code, env := s.do(t, http.MethodPost, "/api/v1/payments/webhook", "", payload, "X-Fake-Signature", s.gw.Sign(payload))
	require.Equal(t, http.StatusOK, code, env.Error.Message)
	var res struct {
		Status        string `json:"status"`
		AttemptStatus string `json:"attempt_status"`
	}
	decode(t, env.Data, &res)
	assert.Equal(t, "processed", res.Status)
	assert.Equal(t, "completed", res.AttemptStatus)

	claimed := s.lead(t, l.ID, "plumber-1")
	assert.Equal(t, "claimed", claimed.Status)
	require.NotNil(t, claimed.ClaimedBy)
	assert.Equal(t, "plumber-1", *claimed.ClaimedBy)
	assert.Equal(t, "jordan@example.com", claimed.CustomerEmail)
	assert.Equal(t, "100 Congress Ave", claimed.Address)

	other := s.lead(t, l.ID, "plumber-2")
	assert.Empty(t, other.CustomerEmail)
	assert.Empty(t, other.Address)

	// replayed delivery changes nothing
	code, env = s.do(t, http.MethodPost, "/api/v1/payments/webhook", "", payload, "X-Fake-Signature", s.gw.Sign(payload))
	require.Equal(t, http.StatusOK, code)
	decode(t, env.Data, &res)
	assert.Equal(t, "noop", res.Status)
}

func TestRoundTrip_FailedPaymentReleasesLead(t *testing.T) {
	s := newTestServer(t)
	l := s.submit(t)
	a := s.reserveAndOpen(t, l.ID)

	s.gw.Fail(a.ExternalRef, "Your card was declined.")

	code, env := s.do(t, http.MethodPost, "/api/v1/payments/"+a.ID+"/confirm", "plumber-2", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	code, env = s.do(t, http.MethodPost, "/api/v1/payments/"+a.ID+"/confirm", "plumber-1", nil)
	require.Equal(t, http.StatusOK, code, env.Error.Message)
	var out struct {
		Status        string `json:"status"`
		FailureReason string `json:"failure_reason"`
	}
	decode(t, env.Data, &out)
	assert.Equal(t, "failed", out.Status)
	assert.Equal(t, "Your card was declined.", out.FailureReason)

	released := s.lead(t, l.ID, "plumber-2")
	assert.Equal(t, "available", released.Status)
	assert.Nil(t, released.ReservedBy)

	// the lead can be reserved again by someone else
	code, env = s.do(t, http.MethodPost, "/api/v1/leads/"+l.ID+"/reserve", "plumber-2", nil)
	assert.Equal(t, http.StatusOK, code, env.Error.Message)
}

func TestRoundTrip_AdminRefundReopensLead(t *testing.T) {
	s := newTestServer(t)
	l := s.submit(t)
	a := s.reserveAndOpen(t, l.ID)
	s.gw.Succeed(a.ExternalRef)

	code, env := s.do(t, http.MethodPost, "/api/v1/payments/"+a.ID+"/confirm", "plumber-1", nil)
	require.Equal(t, http.StatusOK, code, env.Error.Message)

	code, _ = s.do(t, http.MethodPost, "/api/v1/payments/"+a.ID+"/refund", "plumber-1", map[string]string{"reason": "mine"})
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.do(t, http.MethodPost, "/api/v1/payments/"+a.ID+"/refund", "admin-1", map[string]string{"reason": "customer cancelled"})
	require.Equal(t, http.StatusOK, code, env.Error.Message)
	var out attemptBody
	decode(t, env.Data, &out)
	assert.Equal(t, "refunded", out.Status)
	assert.True(t, s.gw.Refunded(a.ExternalRef))

	reopened := s.lead(t, l.ID, "admin-1")
	assert.Equal(t, "available", reopened.Status)
	assert.Nil(t, reopened.ClaimedBy)

	code, env = s.do(t, http.MethodPost, "/api/v1/payments/"+a.ID+"/refund", "admin-1", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ALREADY_REFUNDED", env.Error.Code)

	code, env = s.do(t, http.MethodGet, "/api/v1/leads/"+l.ID+"/history", "admin-1", nil)
	require.Equal(t, http.StatusOK, code)
	var hist struct {
		History []json.RawMessage `json:"history"`
	}
	decode(t, env.Data, &hist)
	// submit, reserve, claim, refund
	assert.Len(t, hist.History, 4)
}

func TestRouter_WebhookRejectsBadSignature(t *testing.T) {
	s := newTestServer(t)
	l := s.submit(t)
	a := s.reserveAndOpen(t, l.ID)
	s.gw.Succeed(a.ExternalRef)

	payload := s.gw.WebhookPayload("evt_1", fake.EventSucceeded, a.ExternalRef)
	code, env := s.do(t, http.MethodPost, "/api/v1/payments/webhook", "", payload, "X-Fake-Signature", "forged")
	assert.Equal(t, http.StatusForbidden, code)
	assert.False(t, env.Success)

	assert.Equal(t, "reserved", s.lead(t, l.ID, "plumber-1").Status)
}

func TestRouter_AccessControl(t *testing.T) {
	s := newTestServer(t)
	l := s.submit(t)

	code, env := s.do(t, http.MethodGet, "/api/v1/leads", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "AUTH_HEADER_MISSING", env.Error.Code)

	code, _ = s.do(t, http.MethodGet, "/api/v1/leads/"+l.ID+"/history", "plumber-1", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, http.MethodGet, "/api/v1/leads/"+l.ID+"/payments", "plumber-1", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.do(t, http.MethodGet, "/api/v1/leads", "plumber-1", nil)
	require.Equal(t, http.StatusOK, code)
	var page struct {
		Total int64 `json:"total"`
	}
	decode(t, env.Data, &page)
	assert.Equal(t, int64(1), page.Total)

	code, env = s.do(t, http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestRouter_ClaimantProfile(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPut, "/api/v1/claimants/me", "plumber-1", map[string]interface{}{
		"business_name":        "Lone Star Plumbing",
		"address":              "500 E 7th St",
		"city":                 "Austin",
		"state":                "TX",
		"zip_code":             "78701",
		"service_radius_miles": 40,
	})
	require.Equal(t, http.StatusOK, code, env.Error.Message)

	code, env = s.do(t, http.MethodGet, "/api/v1/claimants/me", "plumber-1", nil)
	require.Equal(t, http.StatusOK, code)
	var profile struct {
		BusinessName string  `json:"business_name"`
		Verified     bool    `json:"verified"`
		Radius       float64 `json:"service_radius_miles"`
	}
	decode(t, env.Data, &profile)
	assert.Equal(t, "Lone Star Plumbing", profile.BusinessName)
	assert.True(t, profile.Verified)
	assert.Equal(t, 40.0, profile.Radius)

	code, _ = s.do(t, http.MethodPatch, "/api/v1/claimants/plumber-2/verification", "plumber-1", map[string]bool{"verified": false})
	assert.Equal(t, http.StatusForbidden, code)
	code, env = s.do(t, http.MethodPatch, "/api/v1/claimants/plumber-2/verification", "admin-1", map[string]bool{"verified": false})
	require.Equal(t, http.StatusOK, code, env.Error.Message)
}

func TestHealthzAndMetrics(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.app.Router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "leads_submitted_total")
}
