package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleCollector Role = "collector"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleCollector || r == RoleAdmin
}

type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountInactive  AccountStatus = "inactive"
	AccountSuspended AccountStatus = "suspended"
)

func (s AccountStatus) Valid() bool {
	return s == AccountActive || s == AccountInactive || s == AccountSuspended
}

// User is a platform account. Accounts are never hard-deleted; deactivation
// flips AccountStatus.
type User struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name             string          `gorm:"size:100;not null" json:"name"`
	Email            string          `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Password         string          `gorm:"not null" json:"-"`
	Phone            string          `gorm:"size:20" json:"phone,omitempty"`
	Address          string          `gorm:"size:500" json:"address,omitempty"`
	Role             Role            `gorm:"size:20;not null;default:'user';index" json:"role"`
	AccountStatus    AccountStatus   `gorm:"size:20;not null;default:'active';index" json:"account_status"`
	CarbonCredits    int64           `gorm:"not null;default:0;check:carbon_credits >= 0" json:"carbon_credits"`
	TotalRecycled    decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"total_recycled"`
	PayoutCustomerID *string         `gorm:"size:255" json:"-"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (u *User) IsActive() bool {
	return u.AccountStatus == AccountActive
}
