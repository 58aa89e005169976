package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"plumberleads/internal/config"
	"plumberleads/internal/database"
	"plumberleads/internal/domain"
	"plumberleads/internal/gateway/fake"
	"plumberleads/internal/modules/lead"
	"plumberleads/internal/server"

	"gorm.io/gorm/clause"
)

type city struct {
	name, state, zip string
	lat, lng         float64
}

var cities = []city{
	{"Austin", "TX", "78701", 30.2711, -97.7437},
	{"Round Rock", "TX", "78664", 30.5083, -97.6789},
	{"San Marcos", "TX", "78666", 29.8833, -97.9414},
}

var jobs = []struct{ title, description, category string }{
	{"Burst pipe under sink", "Water pooling in the kitchen cabinet, main valve closed", "plumbing"},
	{"Water heater replacement", "40 gallon gas heater leaking at the base", "water_heater"},
	{"Slow drain in shower", "Standing water after 5 minutes, tried a plunger", "drain"},
	{"Toilet keeps running", "Flapper replaced last month, still running", "plumbing"},
	{"Sewer smell in basement", "Smell near the floor drain since the storm", "sewer"},
	{"Outdoor spigot frozen", "Cracked hose bib on the north wall", "plumbing"},
}

var urgencies = []domain.Urgency{domain.UrgencyLow, domain.UrgencyNormal, domain.UrgencyHigh, domain.UrgencyEmergency}

func main() {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "plumberleads.db"
	}
	os.Setenv("DATABASE_URL", dsn)
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config failed:", err)
	}

	db, err := database.ConnectWithConfig(cfg.DatabaseURL, database.Silent())
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}
	log.Println("Running AutoMigrate...")
	if err := database.Migrate(db); err != nil {
		log.Fatal("AutoMigrate failed:", err)
	}

	// Cleanup old data (children first)
	log.Println("Cleaning old data...")
	db.Exec("DELETE FROM lead_history")
	db.Exec("DELETE FROM payment_attempts")
	db.Exec("DELETE FROM leads")
	db.Exec("DELETE FROM claimants")

	// ================== CLAIMANTS ==================
	log.Println("Creating claimants...")
	claimants := []domain.Claimant{
		{ID: "plumber-1", BusinessName: "Lone Star Plumbing", Verified: true, City: "Austin", State: "TX", ZipCode: "78701"},
		{ID: "plumber-2", BusinessName: "Hill Country Drains", Verified: true, City: "Round Rock", State: "TX", ZipCode: "78664"},
		{ID: "plumber-3", BusinessName: "New Pipes LLC", Verified: false, City: "San Marcos", State: "TX", ZipCode: "78666"},
	}
	for i := range claimants {
		c := &claimants[i]
		home := cities[i%len(cities)]
		c.Address = fmt.Sprintf("%d Main St", 100+i*10)
		c.Latitude, c.Longitude = &home.lat, &home.lng
		c.ServiceRadiusMiles = domain.DefaultServiceRadiusMiles + float64(i*10)
		if err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(c).Error; err != nil {
			log.Fatalf("create claimant %s: %v", c.ID, err)
		}
	}

	// ================== LEADS ==================
	log.Println("Creating leads...")
	app := server.NewApp(cfg, server.Deps{DB: db, Gateway: fake.New(cfg.WebhookSecret)})
	ctx := context.Background()
	created := 0
	for i, job := range jobs {
		c := cities[rng.Intn(len(cities))]
		lat := c.lat + (rng.Float64()-0.5)*0.05
		lng := c.lng + (rng.Float64()-0.5)*0.05
		price := int64(1500 + rng.Intn(8)*500)
		_, err := app.Leads.Submit(ctx, lead.SubmitLeadRequest{
			Title:           job.title,
			Description:     job.description,
			ServiceCategory: job.category,
			Urgency:         urgencies[rng.Intn(len(urgencies))],
			Address:         fmt.Sprintf("%d Elm St", 200+i),
			City:            c.name,
			State:           c.state,
			ZipCode:         c.zip,
			Latitude:        &lat,
			Longitude:       &lng,
			PriceCents:      &price,
			CustomerName:    fmt.Sprintf("Customer %d", i+1),
			CustomerEmail:   fmt.Sprintf("customer%d@example.com", i+1),
			CustomerPhone:   fmt.Sprintf("512-555-%04d", 100+i),
		})
		if err != nil {
			log.Fatalf("submit lead %q: %v", job.title, err)
		}
		created++
	}

	log.Println("Seed completed!")
	log.Printf("Claimants: %d, leads: %d", len(claimants), created)
	log.Println("Dev tokens (Authorization: Bearer <token>):")
	for _, c := range claimants {
		tok, err := app.JWT.GenerateToken(c.ID, false)
		if err != nil {
			log.Fatalf("token for %s: %v", c.ID, err)
		}
		log.Printf("  %s: %s", c.ID, tok)
	}
	adminTok, err := app.JWT.GenerateToken("admin-1", true)
	if err != nil {
		log.Fatalf("admin token: %v", err)
	}
	log.Printf("  admin-1 (admin): %s", adminTok)
}
