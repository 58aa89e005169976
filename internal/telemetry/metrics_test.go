package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerExposesCounters(t *testing.T) {
	LeadsSubmitted.Inc()
	Reservations.WithLabelValues("won").Inc()

	h := Handler()
	// second call must not re-register
	h = Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "leads_submitted_total")
	assert.Contains(t, w.Body.String(), `lead_reservations_total{result="won"}`)
}
