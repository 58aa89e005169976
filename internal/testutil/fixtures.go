package testutil

import (
	"context"
	"testing"
	"time"

	"plumberleads/internal/domain"

	"gorm.io/gorm"
)

// Austin coordinates used by the fixtures. Leads and claimants created here
// sit a few miles apart.
const (
	AustinLat = 30.2672
	AustinLng = -97.7431
)

func Float(v float64) *float64 { return &v }

// SeedLead inserts an available lead priced at 5000 cents. mutate runs
// before the insert.
func SeedLead(t *testing.T, db *gorm.DB, created time.Time, mutate ...func(*domain.Lead)) *domain.Lead {
	t.Helper()
	l := &domain.Lead{
		Title:           "Burst pipe under sink",
		Description:     "Water everywhere in the kitchen",
		ServiceCategory: "emergency_repair",
		Urgency:         domain.UrgencyHigh,
		Address:         "100 Congress Ave",
		City:            "Austin",
		State:           "TX",
		ZipCode:         "78701",
		Latitude:        Float(AustinLat),
		Longitude:       Float(AustinLng),
		PriceCents:      5000,
		Currency:        "usd",
		Status:          domain.LeadAvailable,
		CustomerName:    "Jordan Customer",
		CustomerEmail:   "jordan@example.com",
		CustomerPhone:   "512-555-0100",
		Version:         1,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
	for _, m := range mutate {
		m(l)
	}
	if err := db.WithContext(context.Background()).Create(l).Error; err != nil {
		t.Fatalf("seed lead: %v", err)
	}
	return l
}

// SeedClaimant inserts a verified claimant near the fixture leads.
func SeedClaimant(t *testing.T, db *gorm.DB, id string, mutate ...func(*domain.Claimant)) *domain.Claimant {
	t.Helper()
	c := &domain.Claimant{
		ID:                 id,
		BusinessName:       "Plumber " + id,
		Verified:           true,
		Address:            "500 E 7th St",
		City:               "Austin",
		State:              "TX",
		ZipCode:            "78701",
		Latitude:           Float(AustinLat + 0.02),
		Longitude:          Float(AustinLng - 0.02),
		ServiceRadiusMiles: domain.DefaultServiceRadiusMiles,
	}
	for _, m := range mutate {
		m(c)
	}
	if err := db.WithContext(context.Background()).Create(c).Error; err != nil {
		t.Fatalf("seed claimant: %v", err)
	}
	return c
}
