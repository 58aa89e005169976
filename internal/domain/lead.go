package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LeadStatus string

const (
	LeadAvailable LeadStatus = "available"
	LeadReserved  LeadStatus = "reserved"
	LeadClaimed   LeadStatus = "claimed"
	LeadCompleted LeadStatus = "completed"
	LeadClosed    LeadStatus = "closed"
)

type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyNormal    Urgency = "normal"
	UrgencyHigh      Urgency = "high"
	UrgencyEmergency Urgency = "emergency"
)

// Lead is the root aggregate. Reservation state lives on the lead itself.
type Lead struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Title           string     `gorm:"type:varchar(200);not null" json:"title"`
	Description     string     `gorm:"type:text;not null" json:"description"`
	ServiceCategory string     `gorm:"type:varchar(64);not null;index" json:"service_category"`
	Urgency         Urgency    `gorm:"type:varchar(16);not null;default:'normal'" json:"urgency"`
	Address         string     `gorm:"type:varchar(255);not null" json:"address"`
	City            string     `gorm:"type:varchar(100);not null;index" json:"city"`
	State           string     `gorm:"type:varchar(50);not null" json:"state"`
	ZipCode         string     `gorm:"type:varchar(20);not null;index" json:"zip_code"`
	Latitude        *float64   `json:"latitude,omitempty"`
	Longitude       *float64   `json:"longitude,omitempty"`
	PriceCents      int64      `gorm:"not null" json:"price_cents"`
	Currency        string     `gorm:"type:varchar(3);not null" json:"currency"`
	Status          LeadStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	ReservedBy      *string    `gorm:"type:varchar(64);index" json:"reserved_by,omitempty"`
	ReservedAt      *time.Time `json:"reserved_at,omitempty"`
	ClaimedBy       *string    `gorm:"type:varchar(64);index" json:"claimed_by,omitempty"`
	ClaimedAt       *time.Time `json:"claimed_at,omitempty"`
	CustomerName    string     `gorm:"type:varchar(120);not null" json:"customer_name"`
	CustomerEmail   string     `gorm:"type:varchar(255);not null" json:"customer_email"`
	CustomerPhone   string     `gorm:"type:varchar(32);not null" json:"customer_phone"`
	Version         int64      `gorm:"not null;default:1" json:"version"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (Lead) TableName() string { return "leads" }

func (l *Lead) BeforeCreate(_ *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

var leadTransitions = map[LeadStatus][]LeadStatus{
	LeadAvailable: {LeadReserved, LeadClosed},
	LeadReserved:  {LeadClaimed, LeadAvailable, LeadClosed},
	LeadClaimed:   {LeadAvailable, LeadCompleted, LeadClosed},
}

// CanTransition reports whether from -> to is an edge of the lead state machine.
func CanTransition(from, to LeadStatus) bool {
	for _, next := range leadTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ValidLeadStatus(s LeadStatus) bool {
	switch s {
	case LeadAvailable, LeadReserved, LeadClaimed, LeadCompleted, LeadClosed:
		return true
	}
	return false
}

func (l *Lead) HasLocation() bool {
	return l.Latitude != nil && l.Longitude != nil
}

func (l *Lead) IsReservedBy(claimantID string) bool {
	return l.Status == LeadReserved && l.ReservedBy != nil && *l.ReservedBy == claimantID
}

func (l *Lead) IsClaimedBy(claimantID string) bool {
	if l.Status != LeadClaimed && l.Status != LeadCompleted {
		return false
	}
	return l.ClaimedBy != nil && *l.ClaimedBy == claimantID
}

// HolderID returns the reservation holder or the claimer, whichever is set.
func (l *Lead) HolderID() string {
	if l.ReservedBy != nil {
		return *l.ReservedBy
	}
	if l.ClaimedBy != nil {
		return *l.ClaimedBy
	}
	return ""
}

// CheckInvariants validates the reservation and claim holder fields against status.
func (l *Lead) CheckInvariants() error {
	reserved := l.ReservedBy != nil
	claimed := l.ClaimedBy != nil
	switch {
	case reserved != (l.Status == LeadReserved):
		return &Error{Kind: KindConflict, Code: "LEAD_INVARIANT", Message: "reserved_by must be set iff status is reserved"}
	case reserved && l.ReservedAt == nil:
		return &Error{Kind: KindConflict, Code: "LEAD_INVARIANT", Message: "reserved_at missing on reserved lead"}
	case claimed != (l.Status == LeadClaimed || l.Status == LeadCompleted):
		return &Error{Kind: KindConflict, Code: "LEAD_INVARIANT", Message: "claimed_by must be set iff status is claimed or completed"}
	}
	return nil
}

// Reserve, Release, Claim and Unclaim mutate in memory only; callers persist
// with a version compare-and-set.

func (l *Lead) Reserve(claimantID string, now time.Time) {
	l.Status = LeadReserved
	l.ReservedBy = &claimantID
	l.ReservedAt = &now
}

func (l *Lead) Release() {
	l.Status = LeadAvailable
	l.ReservedBy = nil
	l.ReservedAt = nil
}

func (l *Lead) Claim(claimantID string, now time.Time) {
	l.Status = LeadClaimed
	l.ReservedBy = nil
	l.ReservedAt = nil
	l.ClaimedBy = &claimantID
	l.ClaimedAt = &now
}

func (l *Lead) Unclaim() {
	l.Status = LeadAvailable
	l.ClaimedBy = nil
	l.ClaimedAt = nil
}
