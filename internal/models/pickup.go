package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/scrapsail/scrapsail-backend/internal/lifecycle"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Pickup is a user's request to have recyclable waste collected.
type Pickup struct {
	ID                  uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID              uuid.UUID          `gorm:"type:uuid;not null;index" json:"user_id"`
	WasteCategory       lifecycle.Category `gorm:"size:20;not null" json:"waste_category"`
	Weight              decimal.Decimal    `gorm:"type:decimal(10,2);not null" json:"weight"`
	PickupAddress       string             `gorm:"size:500;not null" json:"pickup_address"`
	Latitude            *float64           `gorm:"type:decimal(10,8)" json:"latitude,omitempty"`
	Longitude           *float64           `gorm:"type:decimal(11,8)" json:"longitude,omitempty"`
	ScheduledDate       time.Time          `gorm:"not null;index" json:"scheduled_date"`
	Status              lifecycle.Status   `gorm:"size:30;not null;default:'pending';index" json:"status"`
	AssignedCollectorID *uuid.UUID         `gorm:"type:uuid;index" json:"assigned_collector_id,omitempty"`
	CarbonCreditsEarned int64              `gorm:"not null;default:0" json:"carbon_credits_earned"`
	AdminNotes          string             `gorm:"type:text" json:"admin_notes,omitempty"`
	CollectorNotes      string             `gorm:"type:text" json:"collector_notes,omitempty"`
	CompletionDate      *time.Time         `json:"completion_date,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`

	User              *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	AssignedCollector *User `gorm:"foreignKey:AssignedCollectorID" json:"assigned_collector,omitempty"`
}

func (p *Pickup) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (Pickup) TableName() string {
	return "pickups"
}

// AssignedTo reports whether collectorID is this pickup's assignee.
func (p *Pickup) AssignedTo(collectorID uuid.UUID) bool {
	return p.AssignedCollectorID != nil && *p.AssignedCollectorID == collectorID
}
