package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/scrapsail/scrapsail-backend/internal/apperrors"
	"github.com/scrapsail/scrapsail-backend/internal/dto"
	"github.com/scrapsail/scrapsail-backend/internal/models"
	"github.com/scrapsail/scrapsail-backend/internal/services"
	"github.com/scrapsail/scrapsail-backend/internal/validator"
)

type PickupHandler struct {
	pickups  *services.PickupService
	validate *validator.Validator
}

func NewPickupHandler(pickups *services.PickupService, validate *validator.Validator) *PickupHandler {
	return &PickupHandler{pickups: pickups, validate: validate}
}

func (h *PickupHandler) Create(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return respondError(c, err)
	}

	var req dto.CreatePickupRequest
	if err := bind(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}

	pickup, err := h.pickups.Create(actor.ID, &req)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.PickupResponse{
		Success: true,
		Message: "Pickup request created successfully",
		Pickup:  pickup,
	})
}

// List returns the caller's own pickups, newest first.
func (h *PickupHandler) List(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return respondError(c, err)
	}

	resp, err := h.pickups.ListForUser(actor.ID, c.Query("status"), c.QueryInt("page", 1), c.QueryInt("limit", 20))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *PickupHandler) Get(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	pickup, err := h.pickups.GetFor(actor, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.PickupResponse{Success: true, Pickup: pickup})
}

func (h *PickupHandler) Pending(c *fiber.Ctx) error {
	pickups, err := h.pickups.ListPending()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.PickupListResponse{Success: true, Pickups: pickups})
}

func (h *PickupHandler) Assigned(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return respondError(c, err)
	}

	pickups, err := h.pickups.ListAssigned(actor.ID, c.Query("status"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.PickupListResponse{Success: true, Pickups: pickups})
}

func (h *PickupHandler) CollectorPickups(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return respondError(c, err)
	}

	resp, err := h.pickups.ListAssignedPaged(actor.ID, c.Query("status"), c.QueryInt("page", 1), c.QueryInt("limit", 10))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

// Route plans today's stops, or those of ?date=YYYY-MM-DD.
func (h *PickupHandler) Route(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return respondError(c, err)
	}

	day := time.Now()
	if raw := c.Query("date"); raw != "" {
		day, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return respondError(c, apperrors.Validation("date must be YYYY-MM-DD"))
		}
	}

	resp, err := h.pickups.Route(actor.ID, day)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *PickupHandler) Approve(c *fiber.Ctx) error {
	return h.withNotes(c, func(id uuid.UUID, _ services.Actor, notes string) (*models.Pickup, error) {
		return h.pickups.Approve(id, notes)
	}, "Pickup request approved")
}

func (h *PickupHandler) Reject(c *fiber.Ctx) error {
	return h.withNotes(c, func(id uuid.UUID, _ services.Actor, notes string) (*models.Pickup, error) {
		return h.pickups.Reject(id, notes)
	}, "Pickup request rejected")
}

func (h *PickupHandler) Accept(c *fiber.Ctx) error {
	return h.withNotes(c, func(id uuid.UUID, actor services.Actor, notes string) (*models.Pickup, error) {
		return h.pickups.Accept(id, actor.ID, notes)
	}, "Pickup accepted")
}

func (h *PickupHandler) Start(c *fiber.Ctx) error {
	return h.withNotes(c, func(id uuid.UUID, actor services.Actor, _ string) (*models.Pickup, error) {
		return h.pickups.Start(id, actor.ID)
	}, "Pickup started")
}

func (h *PickupHandler) Complete(c *fiber.Ctx) error {
	return h.withNotes(c, func(id uuid.UUID, actor services.Actor, notes string) (*models.Pickup, error) {
		return h.pickups.Complete(id, actor.ID, notes)
	}, "Pickup completed successfully")
}

func (h *PickupHandler) Assign(c *fiber.Ctx) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var req dto.AssignCollectorRequest
	if err := bind(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}
	collectorID, err := uuid.Parse(req.CollectorID)
	if err != nil {
		return badRequest(c, "Invalid collector_id")
	}

	pickup, err := h.pickups.AssignCollector(id, collectorID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.PickupResponse{Success: true, Message: "Collector assigned", Pickup: pickup})
}

func (h *PickupHandler) AutoAssign(c *fiber.Ctx) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	pickup, assigned, err := h.pickups.RetryAssignment(id)
	if err != nil {
		return respondError(c, err)
	}

	message := "Collector assigned"
	if !assigned {
		message = "No active collector available, pickup remains approved"
	}
	return c.JSON(dto.PickupResponse{Success: true, Message: message, Pickup: pickup})
}

func (h *PickupHandler) Cancel(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var req dto.CancelPickupRequest
	if err := bindOptional(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}

	pickup, err := h.pickups.Cancel(id, actor, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.PickupResponse{Success: true, Message: "Pickup request cancelled", Pickup: pickup})
}

func (h *PickupHandler) CollectorDashboard(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return respondError(c, err)
	}

	stats, err := h.pickups.CollectorStats(actor.ID)
	if err != nil {
		return respondError(c, err)
	}
	pickups, err := h.pickups.ListAssigned(actor.ID, "")
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(dto.CollectorDashboardResponse{Success: true, Stats: stats, Pickups: pickups})
}

func (h *PickupHandler) withNotes(c *fiber.Ctx, fn func(uuid.UUID, services.Actor, string) (*models.Pickup, error), message string) error {
	actor, err := actorFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	id, err := uuidParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var req dto.NotesRequest
	if err := bindOptional(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}

	pickup, err := fn(id, actor, req.Notes)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.PickupResponse{Success: true, Message: message, Pickup: pickup})
}
