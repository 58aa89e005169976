// Package server assembles the HTTP surface.
package server

import (
	"context"
	"net/http"
	"time"

	"plumberleads/internal/middleware"
	"plumberleads/internal/modules/claimant"
	"plumberleads/internal/modules/lead"
	"plumberleads/internal/modules/payment"
	"plumberleads/internal/modules/reservation"
	"plumberleads/internal/notification"
	"plumberleads/internal/pkg/jwt"
	"plumberleads/internal/pkg/response"
	"plumberleads/internal/telemetry"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handlers struct {
	Leads        *lead.Handler
	Reservations *reservation.Handler
	Payments     *payment.Handler
	Claimants    *claimant.Handler
	Stream       *notification.WSHandler
}

type Options struct {
	JWT                *jwt.Service
	DB                 Pinger
	CORSAllowedOrigins string
	AccessLog          bool
}

func NewRouter(h Handlers, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(middleware.ErrorLogger())
	if opts.AccessLog {
		r.Use(gin.Logger())
	}
	r.Use(middleware.CORS(opts.CORSAllowedOrigins))

	r.GET("/healthz", healthz(opts.DB))
	r.GET("/metrics", gin.WrapH(telemetry.Handler()))
	if h.Stream != nil {
		r.GET("/ws/leads", h.Stream.HandleWebSocket)
	}

	v1 := r.Group("/api/v1")
	{
		// public
		h.Leads.RegisterPublicRoutes(v1)
		h.Payments.RegisterPublicRoutes(v1)

		// bearer token
		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(opts.JWT))
		{
			h.Leads.RegisterProtectedRoutes(protected)
			h.Reservations.RegisterRoutes(protected)
			h.Payments.RegisterProtectedRoutes(protected)
			h.Claimants.RegisterProtectedRoutes(protected)
		}

		admin := v1.Group("")
		admin.Use(middleware.JWTAuth(opts.JWT), middleware.AdminOnly())
		{
			h.Leads.RegisterAdminRoutes(admin)
			h.Payments.RegisterAdminRoutes(admin)
			h.Claimants.RegisterAdminRoutes(admin)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	return r
}

func healthz(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				response.Error(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "database unreachable")
				return
			}
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	}
}
