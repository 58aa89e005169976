package lead

import (
	"strings"
	"time"

	"plumberleads/internal/domain"

	"github.com/google/uuid"
)

// SubmitLeadRequest is the public service request form.
type SubmitLeadRequest struct {
	Title           string         `json:"title" validate:"required,max=200"`
	Description     string         `json:"description" validate:"required"`
	ServiceCategory string         `json:"service_category" validate:"required,max=64"`
	Urgency         domain.Urgency `json:"urgency" validate:"omitempty,oneof=low normal high emergency"`

	Address   string   `json:"address" validate:"required,max=255"`
	City      string   `json:"city" validate:"required,max=100"`
	State     string   `json:"state" validate:"required,max=50"`
	ZipCode   string   `json:"zip_code" validate:"required,max=20"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,min=-90,max=90"`
	Longitude *float64 `json:"longitude" validate:"omitempty,min=-180,max=180"`

	// PriceCents wins when set. Otherwise JobPriceCents is priced by the
	// configured percentage with a floor, and without either the default
	// price applies.
	PriceCents    *int64 `json:"price_cents" validate:"omitempty,min=0"`
	JobPriceCents *int64 `json:"job_price_cents" validate:"omitempty,gt=0"`

	CustomerName  string `json:"customer_name" validate:"required,max=120"`
	CustomerEmail string `json:"customer_email" validate:"required,email"`
	CustomerPhone string `json:"customer_phone" validate:"required,max=32"`
}

// normalize trims the text fields so blank input fails required.
func (r *SubmitLeadRequest) normalize() {
	for _, f := range []*string{
		&r.Title, &r.Description, &r.ServiceCategory,
		&r.Address, &r.City, &r.State, &r.ZipCode,
		&r.CustomerName, &r.CustomerEmail, &r.CustomerPhone,
	} {
		*f = strings.TrimSpace(*f)
	}
}

type SetStatusRequest struct {
	Status domain.LeadStatus `json:"status" validate:"required"`
}

type UpdatePriceRequest struct {
	PriceCents int64 `json:"price_cents" validate:"required,gt=0"`
}

// ListQuery is bound from the query string.
type ListQuery struct {
	Status          string `form:"status"`
	ServiceCategory string `form:"service_category"`
	City            string `form:"city"`
	State           string `form:"state"`
	ZipCode         string `form:"zip_code"`
	Page            int    `form:"page"`
	PageSize        int    `form:"page_size"`
}

type Page struct {
	Items    []domain.Lead
	Total    int64
	Page     int
	PageSize int
}

// LeadResponse hides contact details and the street address unless the
// caller may see them.
type LeadResponse struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	ServiceCategory string     `json:"service_category"`
	Urgency         string     `json:"urgency"`
	City            string     `json:"city"`
	State           string     `json:"state"`
	ZipCode         string     `json:"zip_code"`
	PriceCents      int64      `json:"price_cents"`
	Currency        string     `json:"currency"`
	Status          string     `json:"status"`
	ReservedBy      *string    `json:"reserved_by,omitempty"`
	ReservedAt      *time.Time `json:"reserved_at,omitempty"`
	ClaimedBy       *string    `json:"claimed_by,omitempty"`
	ClaimedAt       *time.Time `json:"claimed_at,omitempty"`
	Version         int64      `json:"version"`
	CreatedAt       time.Time  `json:"created_at"`

	Address       string   `json:"address,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	CustomerName  string   `json:"customer_name,omitempty"`
	CustomerEmail string   `json:"customer_email,omitempty"`
	CustomerPhone string   `json:"customer_phone,omitempty"`
}

type ListResponse struct {
	Leads    []LeadResponse `json:"leads"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

// CanSeeContact reports whether actor may read the customer contact fields.
func CanSeeContact(l *domain.Lead, actor domain.Actor) bool {
	return actor.Admin || (actor.ID != "" && l.IsClaimedBy(actor.ID))
}

func toResponse(l *domain.Lead, disclose bool) LeadResponse {
	r := LeadResponse{
		ID:              l.ID,
		Title:           l.Title,
		Description:     l.Description,
		ServiceCategory: l.ServiceCategory,
		Urgency:         string(l.Urgency),
		City:            l.City,
		State:           l.State,
		ZipCode:         l.ZipCode,
		PriceCents:      l.PriceCents,
		Currency:        l.Currency,
		Status:          string(l.Status),
		ReservedBy:      l.ReservedBy,
		ReservedAt:      l.ReservedAt,
		ClaimedBy:       l.ClaimedBy,
		ClaimedAt:       l.ClaimedAt,
		Version:         l.Version,
		CreatedAt:       l.CreatedAt,
	}
	if disclose {
		r.Address = l.Address
		r.Latitude = l.Latitude
		r.Longitude = l.Longitude
		r.CustomerName = l.CustomerName
		r.CustomerEmail = l.CustomerEmail
		r.CustomerPhone = l.CustomerPhone
	}
	return r
}
