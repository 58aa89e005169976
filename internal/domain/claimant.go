package domain

import (
	"math"
	"time"
)

const DefaultServiceRadiusMiles = 25.0

// Claimant is a service provider profile keyed by the identity provider subject.
type Claimant struct {
	ID                 string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	BusinessName       string    `gorm:"type:varchar(200)" json:"business_name"`
	Verified           bool      `gorm:"not null;default:false" json:"verified"`
	Address            string    `gorm:"type:varchar(255)" json:"address"`
	City               string    `gorm:"type:varchar(100)" json:"city"`
	State              string    `gorm:"type:varchar(50)" json:"state"`
	ZipCode            string    `gorm:"type:varchar(20)" json:"zip_code"`
	Latitude           *float64  `json:"latitude,omitempty"`
	Longitude          *float64  `json:"longitude,omitempty"`
	ServiceRadiusMiles float64   `gorm:"not null;default:25" json:"service_radius_miles"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (Claimant) TableName() string { return "claimants" }

func (c *Claimant) HasLocation() bool {
	return c.Latitude != nil && c.Longitude != nil
}

func (c *Claimant) Radius() float64 {
	if c.ServiceRadiusMiles <= 0 {
		return DefaultServiceRadiusMiles
	}
	return c.ServiceRadiusMiles
}

// Actor is the authenticated caller as supplied by the identity provider.
type Actor struct {
	ID    string
	Admin bool
}

// System is used for sweeper-driven transitions.
var System = Actor{}

const earthRadiusMiles = 3958.8

// DistanceMiles is the haversine great-circle distance.
func DistanceMiles(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMiles * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
