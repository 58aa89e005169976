package domain

import (
	"time"

	"github.com/google/uuid"
)

type ChangeType string

const (
	ChangeStatus      ChangeType = "status_change"
	ChangeReservation ChangeType = "reservation"
	ChangeRelease     ChangeType = "release"
	ChangeExpiry      ChangeType = "expiry"
	ChangeClaim       ChangeType = "claim"
	ChangeRefund      ChangeType = "refund"
	ChangeComplete    ChangeType = "complete"
	ChangeClose       ChangeType = "close"
	ChangePrice       ChangeType = "price_update"
)

// LeadHistory is append-only. Rows are never updated or deleted.
type LeadHistory struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	LeadID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"lead_id"`
	ActorID    *string    `gorm:"type:varchar(64)" json:"actor_id,omitempty"`
	FieldName  string     `gorm:"type:varchar(50);not null" json:"field_name"`
	OldValue   string     `gorm:"type:text" json:"old_value"`
	NewValue   string     `gorm:"type:text" json:"new_value"`
	ChangeType ChangeType `gorm:"type:varchar(32);not null;index" json:"change_type"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`

	Lead *Lead `gorm:"foreignKey:LeadID;references:ID" json:"-"`
}

func (LeadHistory) TableName() string { return "lead_history" }

// StatusEntry builds the history row for a status transition.
func StatusEntry(leadID uuid.UUID, actorID string, from, to LeadStatus, change ChangeType, at time.Time) *LeadHistory {
	return &LeadHistory{
		LeadID:     leadID,
		ActorID:    optionalActor(actorID),
		FieldName:  "status",
		OldValue:   string(from),
		NewValue:   string(to),
		ChangeType: change,
		CreatedAt:  at,
	}
}

func optionalActor(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
