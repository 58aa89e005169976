package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"plumberleads/internal/config"
	"plumberleads/internal/database"
	"plumberleads/internal/server"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
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
	app := server.NewApp(cfg, server.Deps{DB: db, Gateway: gw, Logf: log.Printf})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		n, err := app.Sweeper.Sweep(ctx)
		if err != nil {
			log.Fatalf("sweep failed: %v", err)
		}
		log.Printf("sweep completed: released=%d", n)
		return
	}

	app.Sweeper.Start(ctx)
	<-ctx.Done()
	app.Sweeper.Stop()
}
