package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/scrapsail/scrapsail-backend/internal/apperrors"
	"github.com/scrapsail/scrapsail-backend/internal/dto"
	"github.com/scrapsail/scrapsail-backend/internal/models"
	"github.com/scrapsail/scrapsail-backend/internal/services"
	"github.com/scrapsail/scrapsail-backend/internal/validator"
)

var errWalletAccess = apperrors.Forbidden("Access denied")

type WalletHandler struct {
	ledger   *services.LedgerService
	validate *validator.Validator
}

func NewWalletHandler(ledger *services.LedgerService, validate *validator.Validator) *WalletHandler {
	return &WalletHandler{ledger: ledger, validate: validate}
}

func (h *WalletHandler) Get(c *fiber.Ctx) error {
	userID, _, err := h.wallet(c, true)
	if err != nil {
		return respondError(c, err)
	}

	resp, err := h.ledger.Wallet(userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *WalletHandler) Transactions(c *fiber.Ctx) error {
	userID, _, err := h.wallet(c, true)
	if err != nil {
		return respondError(c, err)
	}

	resp, err := h.ledger.UserTransactions(userID, c.Query("type"), c.QueryInt("page", 1), c.QueryInt("limit", 20))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *WalletHandler) Withdrawals(c *fiber.Ctx) error {
	userID, _, err := h.wallet(c, true)
	if err != nil {
		return respondError(c, err)
	}

	resp, err := h.ledger.UserTransactions(userID, string(models.TxWithdrawal), c.QueryInt("page", 1), c.QueryInt("limit", 20))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(resp)
}

func (h *WalletHandler) Redeem(c *fiber.Ctx) error {
	userID, _, err := h.wallet(c, false)
	if err != nil {
		return respondError(c, err)
	}

	var req dto.RedeemRequest
	if err := bind(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}

	txn, err := h.ledger.Redeem(userID, req.Amount, req.RedemptionItem)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(dto.TransactionResponse{
		Success:     true,
		Message:     "Credits redeemed successfully",
		Transaction: txn,
		NewBalance:  txn.BalanceAfter,
	})
}

func (h *WalletHandler) Withdraw(c *fiber.Ctx) error {
	userID, _, err := h.wallet(c, false)
	if err != nil {
		return respondError(c, err)
	}

	var req dto.WithdrawRequest
	if err := bind(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}

	result, err := h.ledger.Withdraw(c.UserContext(), userID, &req)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(dto.WithdrawResponse{
		Success:      true,
		Message:      "Withdrawal initiated successfully",
		Transaction:  result.Transaction,
		PayoutID:     result.Payout.ID,
		PayoutStatus: string(result.Payout.Status),
		CashValue:    result.Payout.Amount,
	})
}

func (h *WalletHandler) WithdrawalStatus(c *fiber.Ctx) error {
	userID, _, err := h.wallet(c, true)
	if err != nil {
		return respondError(c, err)
	}
	txID, err := uintParam(c, "transactionId")
	if err != nil {
		return respondError(c, err)
	}

	txn, p, err := h.ledger.RefreshWithdrawal(c.UserContext(), userID, txID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(dto.WithdrawalStatusResponse{
		Success:      true,
		Transaction:  txn,
		PayoutStatus: string(p.Status),
	})
}

func (h *WalletHandler) AddCredits(c *fiber.Ctx) error {
	userID, actor, err := h.wallet(c, true)
	if err != nil {
		return respondError(c, err)
	}

	var req dto.AddCreditsRequest
	if err := bind(c, h.validate, &req); err != nil {
		return respondError(c, err)
	}

	txn, err := h.ledger.AddBonus(userID, req.Amount, req.Reason, actor.ID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(dto.TransactionResponse{
		Success:     true,
		Message:     "Credits added successfully",
		Transaction: txn,
		NewBalance:  txn.BalanceAfter,
	})
}

func (h *WalletHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.ledger.Stats()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "stats": stats})
}

// wallet resolves :userId and checks the caller may act on it. Admins pass
// only when adminAllowed is set.
func (h *WalletHandler) wallet(c *fiber.Ctx, adminAllowed bool) (uuid.UUID, services.Actor, error) {
	actor, err := actorFrom(c)
	if err != nil {
		return uuid.Nil, actor, err
	}
	userID, err := uuidParam(c, "userId")
	if err != nil {
		return uuid.Nil, actor, err
	}
	if actor.ID == userID || (adminAllowed && actor.IsAdmin()) {
		return userID, actor, nil
	}
	return uuid.Nil, actor, errWalletAccess
}
