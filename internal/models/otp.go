package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OTP is the single active one-time code for an (email, purpose) pair.
type OTP struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"size:255;not null;uniqueIndex:idx_otps_email_type,priority:1" json:"email"`
	Type      string    `gorm:"size:50;not null;uniqueIndex:idx_otps_email_type,priority:2" json:"type"`
	Code      string    `gorm:"column:otp;size:6;not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (o *OTP) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

func (OTP) TableName() string {
	return "otps"
}
