package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/scrapsail/scrapsail-backend/internal/dto"
	"github.com/scrapsail/scrapsail-backend/internal/payout"
	"github.com/scrapsail/scrapsail-backend/internal/services"
)

type WebhookHandler struct {
	ledger *services.LedgerService
	secret string
}

func NewWebhookHandler(ledger *services.LedgerService, secret string) *WebhookHandler {
	return &WebhookHandler{ledger: ledger, secret: secret}
}

// HandleStripe settles withdrawals from Stripe payout events. Events for
// payouts we did not create are acknowledged and ignored.
func (h *WebhookHandler) HandleStripe(c *fiber.Ctx) error {
	if h.secret == "" {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Success: false, Message: "Webhooks not configured",
		})
	}

	p, eventType, err := payout.ParseWebhook(c.Body(), c.Get("Stripe-Signature"), h.secret)
	if err != nil {
		slog.Warn("rejected stripe webhook", "request_id", requestID(c), "error", err)
		return badRequest(c, "Invalid webhook payload")
	}
	if p == nil {
		return c.JSON(fiber.Map{"received": true})
	}

	txn, err := h.ledger.ApplyPayoutByReference(p.ID, p.Status)
	if err != nil {
		if errors.Is(err, services.ErrTransactionNotFound) {
			slog.Warn("webhook for unknown payout", "payout_id", p.ID, "event_type", eventType)
			return c.JSON(fiber.Map{"received": true})
		}
		slog.Error("webhook processing failed", "payout_id", p.ID, "event_type", eventType, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Success: false, Message: "Failed to process webhook event",
		})
	}

	slog.Info("payout webhook applied", "payout_id", p.ID, "event_type", eventType, "status", string(txn.Status))
	return c.JSON(fiber.Map{"received": true})
}
