package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/scrapsail/scrapsail-backend/internal/dto"
	"github.com/scrapsail/scrapsail-backend/internal/models"
	"github.com/scrapsail/scrapsail-backend/internal/services"
	"github.com/scrapsail/scrapsail-backend/internal/validator"
)

type AdminHandler struct {
	users     *services.UserService
	whitelist *services.WhitelistService
	ledger    *services.LedgerService
	validate  *validator.Validator
}

func NewAdminHandler(users *services.UserService, whitelist *services.WhitelistService, ledger *services.LedgerService, validate *validator.Validator) *AdminHandler {
	return &AdminHandler{users: users, whitelist: whitelist, ledger: ledger, validate: validate}
}

func (h *AdminHandler) Dashboard(c *fiber.Ctx) error {
	d, err := h.users.Dashboard()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(d)
}

func (h *AdminHandler) Users(c *fiber.Ctx) error {
	resp, err := h.users.List(services.UserFilter{
		Role:   c.Query("role"),
		Status: c.Query("status"),
		Search: c.Query("search"),
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", 20),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *AdminHandler) SetUserStatus(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	userID, err := uuidParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var req dto.UpdateUserStatusRequest
	if err := bind(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}

	user, err := h.users.SetStatus(actor, userID, models.AccountStatus(req.Status))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "User status updated",
		"user":    dto.NewUserResponse(user),
	})
}

func (h *AdminHandler) UpdateUser(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	userID, err := uuidParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var req dto.UpdateUserRequest
	if err := bind(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}

	user, err := h.users.Update(actor, userID, &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "User updated",
		"user":    dto.NewUserResponse(user),
	})
}

// Analytics reports ledger totals plus activity over ?period= days.
func (h *AdminHandler) Analytics(c *fiber.Ctx) error {
	period, err := h.users.Activity(c.QueryInt("period", 30), time.Now())
	if err != nil {
		return respondError(c, err)
	}
	wallet, err := h.ledger.Stats()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.AnalyticsResponse{Success: true, Wallet: wallet, Period: period})
}

func (h *AdminHandler) Collectors(c *fiber.Ctx) error {
	collectors, err := h.users.ListCollectors()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "collectors": collectors})
}

func (h *AdminHandler) Whitelist(c *fiber.Ctx) error {
	entries, err := h.whitelist.List()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "whitelist": entries})
}

func (h *AdminHandler) AddToWhitelist(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return respondError(c, err)
	}

	var req dto.WhitelistRequest
	if err := bind(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}

	entry, err := h.whitelist.Add(req.Email, models.Role(req.Role), actor.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "entry": entry})
}

func (h *AdminHandler) RemoveFromWhitelist(c *fiber.Ctx) error {
	var req dto.WhitelistRequest
	if err := bind(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}

	if err := h.whitelist.Remove(req.Email, models.Role(req.Role)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.MessageResponse{Success: true, Message: "Email removed from whitelist"})
}
