package services

import (
	"github.com/google/uuid"
	"github.com/scrapsail/scrapsail-backend/internal/models"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID    uuid.UUID
	Role  models.Role
	Email string
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}
