package server

import (
	"time"

	"plumberleads/internal/clock"
	"plumberleads/internal/config"
	"plumberleads/internal/dedup"
	"plumberleads/internal/gateway"
	"plumberleads/internal/geocode"
	"plumberleads/internal/modules/claim"
	"plumberleads/internal/modules/claimant"
	"plumberleads/internal/modules/lead"
	"plumberleads/internal/modules/payment"
	"plumberleads/internal/modules/reservation"
	"plumberleads/internal/modules/sweeper"
	"plumberleads/internal/notification"
	"plumberleads/internal/pkg/jwt"
	"plumberleads/internal/repository"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const tokenTTL = 24 * time.Hour

// Deps are the collaborators chosen by the binary. Only DB and Gateway are required.
type Deps struct {
	DB        *gorm.DB
	Gateway   gateway.Gateway
	Geocoder  geocode.Geocoder
	Publisher notification.Publisher
	Hub       *notification.Hub
	Dedup     *dedup.Store
	Clock     clock.Clock
	Logf      func(format string, args ...interface{})
}

// App holds the wired services and the router built on them.
type App struct {
	Leads        *lead.Service
	Reservations *reservation.Service
	Payments     *payment.Service
	Claimants    *claimant.Service
	Sweeper      *sweeper.Sweeper
	JWT          *jwt.Service
	Router       *gin.Engine
}

func NewApp(cfg *config.Config, d Deps) *App {
	if d.Clock == nil {
		d.Clock = clock.NewSystem()
	}
	if d.Geocoder == nil {
		d.Geocoder = geocode.None{}
	}
	if d.Publisher == nil {
		d.Publisher = notification.Discard
	}

	leadRepo := repository.NewLeadRepository(d.DB)
	historyRepo := repository.NewLeadHistoryRepository(d.DB)
	attemptRepo := repository.NewPaymentAttemptRepository(d.DB)
	claimantRepo := repository.NewClaimantRepository(d.DB)
	tx := repository.NewTransactor(d.DB)

	leadService := lead.NewService(leadRepo, historyRepo, attemptRepo, tx,
		lead.WithGeocoder(d.Geocoder),
		lead.WithPublisher(d.Publisher),
		lead.WithClock(d.Clock),
		lead.WithLogger(d.Logf),
		lead.WithDefaultPrice(cfg.LeadPriceCents, cfg.Currency),
		lead.WithJobPricing(cfg.LeadClaimPercentage, cfg.MinimumLeadPriceCents),
	)

	reservationService := reservation.NewService(leadRepo, historyRepo, claimantRepo, attemptRepo, tx,
		reservation.WithTTL(cfg.ReservationTTL),
		reservation.WithClock(d.Clock),
		reservation.WithGeocoder(d.Geocoder),
		reservation.WithLogger(d.Logf),
	)

	finalizer := claim.NewFinalizer(leadRepo, attemptRepo, historyRepo, tx, d.Clock, reservationService.TTL(), d.Publisher, d.Logf)

	paymentOpts := []payment.Option{
		payment.WithClock(d.Clock),
		payment.WithLogger(d.Logf),
		payment.WithPublisher(d.Publisher),
		payment.WithTimeout(cfg.GatewayTimeout),
		payment.WithCurrency(cfg.Currency),
	}
	if d.Dedup != nil {
		paymentOpts = append(paymentOpts, payment.WithDedup(d.Dedup))
	}
	paymentService := payment.NewService(leadRepo, attemptRepo, historyRepo, tx, reservationService, finalizer, d.Gateway, paymentOpts...)

	claimantService := claimant.NewService(claimantRepo, d.Geocoder, d.Clock, d.Logf)

	sw := sweeper.New(leadRepo, reservationService, paymentService, d.Clock, cfg.SweepInterval, d.Logf)

	j := jwt.New(cfg.JWTSecret, tokenTTL)

	handlers := Handlers{
		Leads:        lead.NewHandler(leadService),
		Reservations: reservation.NewHandler(reservationService),
		Payments:     payment.NewHandler(paymentService, d.Logf),
		Claimants:    claimant.NewHandler(claimantService),
	}
	if d.Hub != nil {
		handlers.Stream = notification.NewWSHandler(d.Hub, j)
	}

	opts := Options{
		JWT:                j,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AccessLog:          gin.Mode() != gin.TestMode,
	}
	if sqlDB, err := d.DB.DB(); err == nil {
		opts.DB = sqlDB
	}

	return &App{
		Leads:        leadService,
		Reservations: reservationService,
		Payments:     paymentService,
		Claimants:    claimantService,
		Sweeper:      sw,
		JWT:          j,
		Router:       NewRouter(handlers, opts),
	}
}
