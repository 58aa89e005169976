package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	LeadsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{Name: "leads_submitted_total", Help: "Leads accepted from customers"})
	Reservations   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "lead_reservations_total", Help: "Reserve attempts by result"}, []string{"result"})
	Authorizations = prometheus.NewCounter(prometheus.CounterOpts{Name: "payment_authorizations_total", Help: "Gateway authorizations opened"})
	Confirmations  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "payment_confirmations_total", Help: "Payment outcomes applied by outcome"}, []string{"outcome"})
	Webhooks       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "payment_webhooks_total", Help: "Webhook deliveries by result"}, []string{"result"})
	Refunds        = prometheus.NewCounter(prometheus.CounterOpts{Name: "payment_refunds_total", Help: "Refunds that reopened a lead"})
	Compensations  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "payment_compensations_total", Help: "Compensating refunds by result"}, []string{"result"})
	Expirations    = prometheus.NewCounter(prometheus.CounterOpts{Name: "reservations_expired_total", Help: "Reservations released by the sweeper"})
	SweepErrors    = prometheus.NewCounter(prometheus.CounterOpts{Name: "sweeper_errors_total", Help: "Per-lead sweep failures"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			LeadsSubmitted,
			Reservations,
			Authorizations,
			Confirmations,
			Webhooks,
			Refunds,
			Compensations,
			Expirations,
			SweepErrors,
		)
	})
	return promhttp.Handler()
}
