package dto

import (
	"time"

	"github.com/scrapsail/scrapsail-backend/internal/models"
	"github.com/shopspring/decimal"
)

type UpdateUserStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive suspended"`
}

type WhitelistRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,oneof=admin collector"`
}

type SettingRequest struct {
	Value string `json:"value" validate:"required"`
}

type UserListResponse struct {
	Success    bool           `json:"success"`
	Users      []UserResponse `json:"users"`
	Pagination Pagination     `json:"pagination"`
}

type UserCounts struct {
	Total      int64 `json:"total"`
	Users      int64 `json:"users"`
	Collectors int64 `json:"collectors"`
	Admins     int64 `json:"admins"`
}

type PickupCounts struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	InProgress int64 `json:"in_progress"`
	Completed  int64 `json:"completed"`
}

type AdminDashboard struct {
	Success             bool            `json:"success"`
	Users               UserCounts      `json:"users"`
	Pickups             PickupCounts    `json:"pickups"`
	TotalRecycled       decimal.Decimal `json:"total_recycled"`
	CarbonCreditsIssued int64           `json:"carbon_credits_issued"`
	CashValueIssued     decimal.Decimal `json:"cash_value_issued"`
	RecentPickups       []models.Pickup `json:"recent_pickups"`
	RecentUsers         []UserResponse  `json:"recent_users"`
}

type SettingEntry struct {
	Key        string     `json:"key"`
	Value      string     `json:"value"`
	Type       string     `json:"type"`
	Overridden bool       `json:"overridden"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// UpdateUserRequest changes only the fields that are present.
type UpdateUserRequest struct {
	Name          *string `json:"name" validate:"omitempty,min=2,max=100"`
	Email         *string `json:"email" validate:"omitempty,email"`
	Role          *string `json:"role" validate:"omitempty,oneof=user collector admin"`
	AccountStatus *string `json:"account_status" validate:"omitempty,oneof=active inactive suspended"`
}

type PeriodActivity struct {
	Days             int             `json:"days"`
	Since            time.Time       `json:"since"`
	NewUsers         int64           `json:"new_users"`
	PickupsRequested int64           `json:"pickups_requested"`
	PickupsCompleted int64           `json:"pickups_completed"`
	WeightRecycled   decimal.Decimal `json:"weight_recycled"`
	CreditsIssued    int64           `json:"credits_issued"`
	CreditsRedeemed  int64           `json:"credits_redeemed"`
}

type AnalyticsResponse struct {
	Success bool           `json:"success"`
	Wallet  *WalletStats   `json:"wallet"`
	Period  PeriodActivity `json:"period"`
}
