package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/scrapsail/scrapsail-backend/internal/dto"
	"github.com/scrapsail/scrapsail-backend/internal/services"
	"github.com/scrapsail/scrapsail-backend/internal/validator"
)

// SettingsHandler exposes the runtime overrides for credit rates, redemption
// rate and minimum withdrawal.
type SettingsHandler struct {
	settings *services.SettingsService
	validate *validator.Validator
}

func NewSettingsHandler(settings *services.SettingsService, validate *validator.Validator) *SettingsHandler {
	return &SettingsHandler{settings: settings, validate: validate}
}

func (h *SettingsHandler) List(c *fiber.Ctx) error {
	entries, err := h.settings.List()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "settings": entries})
}

func (h *SettingsHandler) Get(c *fiber.Ctx) error {
	entries, err := h.settings.List()
	if err != nil {
		return respondError(c, err)
	}

	key := c.Params("key")
	for _, entry := range entries {
		if entry.Key == key {
			return c.JSON(fiber.Map{"success": true, "setting": entry})
		}
	}
	return respondError(c, services.ErrUnknownSetting)
}

func (h *SettingsHandler) Set(c *fiber.Ctx) error {
	var req dto.SettingRequest
	if err := bind(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}

	setting, err := h.settings.Set(c.Params("key"), req.Value)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Setting updated successfully",
		"setting": dto.SettingEntry{
			Key:        setting.Key,
			Value:      setting.Value,
			Type:       setting.Type,
			Overridden: true,
			UpdatedAt:  &setting.UpdatedAt,
		},
	})
}

// Reset drops the override so the configured default applies again.
func (h *SettingsHandler) Reset(c *fiber.Ctx) error {
	if err := h.settings.Reset(c.Params("key")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.MessageResponse{Success: true, Message: "Setting reset to default"})
}
