package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/scrapsail/scrapsail-backend/internal/apperrors"
	"github.com/scrapsail/scrapsail-backend/internal/dto"
	"github.com/scrapsail/scrapsail-backend/internal/services"
	"github.com/scrapsail/scrapsail-backend/internal/validator"
)

// OTPHeader carries the one-time code on requests guarded by Require.
const OTPHeader = "X-OTP-Code"

var errOTPRequired = apperrors.Validation("OTP verification required")

type OTPHandler struct {
	otp      *services.OTPService
	validate *validator.Validator
	// gated purposes are consumed by Require, so /verify only checks them
	gated map[string]bool
}

func NewOTPHandler(otp *services.OTPService, validate *validator.Validator) *OTPHandler {
	return &OTPHandler{otp: otp, validate: validate, gated: map[string]bool{}}
}

func (h *OTPHandler) Send(c *fiber.Ctx) error {
	var req dto.SendOTPRequest
	if err := bind(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}

	issued, err := h.otp.Issue(c.UserContext(), req.Email, req.Type, req.UserName)
	if err != nil {
		return respondError(c, err)
	}

	message := "OTP sent successfully"
	if issued.Code != "" {
		message = "OTP generated, email delivery unavailable (debug mode)"
	}
	return c.JSON(dto.SendOTPResponse{
		Success:   true,
		Message:   message,
		ExpiresAt: issued.ExpiresAt,
		OTP:       issued.Code,
	})
}

func (h *OTPHandler) Verify(c *fiber.Ctx) error {
	var req dto.VerifyOTPRequest
	if err := bind(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}

	if h.gated[req.Type] {
		ok, err := h.otp.Check(c.UserContext(), req.Email, req.OTP, req.Type)
		if err != nil {
			return respondError(c, err)
		}
		if !ok {
			return badRequest(c, "Invalid or expired OTP")
		}
		return c.JSON(dto.MessageResponse{Success: true, Message: "OTP verified, send it in " + OTPHeader + " to complete the action"})
	}

	ok, err := h.otp.Verify(c.UserContext(), req.Email, req.OTP, req.Type)
	if err != nil {
		return respondError(c, err)
	}
	if !ok {
		return badRequest(c, "Invalid or expired OTP")
	}
	return c.JSON(dto.MessageResponse{Success: true, Message: "OTP verified successfully"})
}

// Require guards an action behind a code issued to the caller's email for
// purpose. It runs after RequireRoles and consumes the code. Call it while
// building routes; it also makes /verify non-consuming for purpose.
func (h *OTPHandler) Require(purpose string) fiber.Handler {
	h.gated[purpose] = true
	return func(c *fiber.Ctx) error {
		actor, err := actorFrom(c)
		if err != nil {
			return respondError(c, err)
		}
		code := c.Get(OTPHeader)
		if code == "" {
			return respondError(c, errOTPRequired)
		}

		ok, err := h.otp.Verify(c.UserContext(), actor.Email, code, purpose)
		if err != nil {
			return respondError(c, err)
		}
		if !ok {
			return badRequest(c, "Invalid or expired OTP")
		}
		return c.Next()
	}
}
