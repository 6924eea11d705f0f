package dto

import (
	"github.com/scrapsail/scrapsail-backend/internal/models"
	"github.com/shopspring/decimal"
)

type CreatePickupRequest struct {
	WasteCategory string          `json:"waste_category" validate:"required,waste_category"`
	Weight        decimal.Decimal `json:"weight" validate:"required,gt=0"`
	PickupAddress string          `json:"pickup_address" validate:"required,max=500"`
	Latitude      *float64        `json:"latitude" validate:"omitempty,latitude"`
	Longitude     *float64        `json:"longitude" validate:"omitempty,longitude"`
	ScheduledDate string          `json:"scheduled_date" validate:"required"`
}

type NotesRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

type AssignCollectorRequest struct {
	CollectorID string `json:"collector_id" validate:"required,uuid"`
}

type CancelPickupRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type PickupResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Pickup  *models.Pickup `json:"pickup"`
}

type PickupListResponse struct {
	Success    bool            `json:"success"`
	Pickups    []models.Pickup `json:"pickups"`
	Pagination *Pagination     `json:"pagination,omitempty"`
}

type CollectorStats struct {
	TotalPickups      int64           `json:"total_pickups"`
	CompletedPickups  int64           `json:"completed_pickups"`
	PendingPickups    int64           `json:"pending_pickups"`
	InProgressPickups int64           `json:"in_progress_pickups"`
	TotalWeight       decimal.Decimal `json:"total_weight"`
	CreditsIssued     int64           `json:"credits_issued"`
}

type CollectorDashboardResponse struct {
	Success bool            `json:"success"`
	Stats   CollectorStats  `json:"stats"`
	Pickups []models.Pickup `json:"pickups"`
}

type RouteStop struct {
	Order  int            `json:"order"`
	Pickup *models.Pickup `json:"pickup"`
}

type CollectorRouteResponse struct {
	Success          bool        `json:"success"`
	Date             string      `json:"date"`
	Route            []RouteStop `json:"route"`
	TotalPickups     int         `json:"total_pickups"`
	EstimatedMinutes int         `json:"estimated_minutes"`
}
