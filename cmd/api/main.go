package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"plumberleads/internal/config"
	"plumberleads/internal/database"
	"plumberleads/internal/dedup"
	"plumberleads/internal/notification"
	"plumberleads/internal/server"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate failed: %v", err)
	}

	gw, err := server.NewGateway(cfg)
	if err != nil {
		log.Fatalf("payment gateway: %v", err)
	}

	hub := notification.NewHub()
	defer hub.Close()
	dispatcher := notification.NewDispatcher(cfg.NotifyTimeout, log.Printf,
		notification.LogNotifier{Printf: log.Printf},
		hub,
	)

	deps := server.Deps{
		DB:        db,
		Gateway:   gw,
		Geocoder:  server.NewGeocoder(cfg),
		Publisher: dispatcher,
		Hub:       hub,
		Logf:      log.Printf,
	}
	if cfg.RedisAddr != "" {
		store := dedup.NewFromAddr(cfg.RedisAddr, cfg.WebhookDedupTTL)
		defer store.Close()
		deps.Dedup = store
		log.Printf("webhook dedup enabled redis=%s ttl=%s", cfg.RedisAddr, cfg.WebhookDedupTTL)
	}

	app := server.NewApp(cfg, deps)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.SweeperEnabled {
		app.Sweeper.Start(ctx)
		defer app.Sweeper.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Printf("api listening on %s", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server error: %v", err)
		}
	case <-ctx.Done():
		log.Printf("shutdown signal received, stopping server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("server shutdown error: %v", err)
	}
	dispatcher.Wait()
	log.Printf("server stopped")
}
