package claimant

import "strings"

// UpsertProfileRequest represents the claimant's own profile form
type UpsertProfileRequest struct {
	BusinessName       string   `json:"business_name" validate:"required,max=200"`
	Address            string   `json:"address" validate:"required,max=255"`
	City               string   `json:"city" validate:"required,max=100"`
	State              string   `json:"state" validate:"required,max=50"`
	ZipCode            string   `json:"zip_code" validate:"required,max=20"`
	Latitude           *float64 `json:"latitude" validate:"omitempty,min=-90,max=90"`
	Longitude          *float64 `json:"longitude" validate:"omitempty,min=-180,max=180"`
	ServiceRadiusMiles float64  `json:"service_radius_miles" validate:"omitempty,min=1,max=500"`
}

func (r *UpsertProfileRequest) normalize() {
	for _, f := range []*string{&r.BusinessName, &r.Address, &r.City, &r.State, &r.ZipCode} {
		*f = strings.TrimSpace(*f)
	}
}

// SetVerifiedRequest represents an admin verification decision
type SetVerifiedRequest struct {
	Verified *bool `json:"verified" binding:"required"`
}
