package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EmailWhitelist grants an email address the right to register with a privileged role.
type EmailWhitelist struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string     `gorm:"size:255;not null;uniqueIndex:idx_whitelist_email_role,priority:1" json:"email"`
	Role      Role       `gorm:"size:20;not null;uniqueIndex:idx_whitelist_email_role,priority:2" json:"role"`
	IsActive  bool       `gorm:"not null;default:true;index" json:"is_active"`
	AddedBy   *uuid.UUID `gorm:"type:uuid" json:"added_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (w *EmailWhitelist) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

func (EmailWhitelist) TableName() string {
	return "email_whitelist"
}
