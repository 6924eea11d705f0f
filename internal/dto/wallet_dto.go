package dto

import (
	"time"

	"github.com/scrapsail/scrapsail-backend/internal/models"
	"github.com/shopspring/decimal"
)

type RedeemRequest struct {
	Amount         int64  `json:"amount" validate:"required,gt=0"`
	RedemptionItem string `json:"redemption_item" validate:"max=200"`
}

type WithdrawRequest struct {
	Amount            int64  `json:"amount" validate:"required,gt=0"`
	AccountHolderName string `json:"account_holder_name" validate:"required,max=100"`
	AccountNumber     string `json:"account_number" validate:"required,numeric,min=6,max=20"`
	IFSCCode          string `json:"ifsc_code" validate:"required,ifsc"`
	BankName          string `json:"bank_name" validate:"max=100"`
	Contact           string `json:"contact" validate:"max=20"`
}

type AddCreditsRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"max=500"`
}

type WalletSummary struct {
	TotalCredits    int64           `json:"total_credits"`
	CashBalance     decimal.Decimal `json:"cash_balance"`
	TotalRecycled   decimal.Decimal `json:"total_recycled"`
	LastRedeem      *time.Time      `json:"last_redeem,omitempty"`
	RemainingPoints int64           `json:"remaining_points"`
	RedemptionRate  decimal.Decimal `json:"redemption_rate"`
	Rate            string          `json:"rate"`
}

type WalletResponse struct {
	Success            bool                 `json:"success"`
	Wallet             WalletSummary        `json:"wallet"`
	RecentTransactions []models.Transaction `json:"recent_transactions"`
}

type TransactionListResponse struct {
	Success      bool                 `json:"success"`
	Transactions []models.Transaction `json:"transactions"`
	Pagination   Pagination           `json:"pagination"`
}

type TransactionResponse struct {
	Success     bool                `json:"success"`
	Message     string              `json:"message,omitempty"`
	Transaction *models.Transaction `json:"transaction"`
	NewBalance  int64               `json:"new_balance"`
}

type WithdrawResponse struct {
	Success      bool                `json:"success"`
	Message      string              `json:"message"`
	Transaction  *models.Transaction `json:"transaction"`
	PayoutID     string              `json:"payout_id"`
	PayoutStatus string              `json:"payout_status"`
	CashValue    decimal.Decimal     `json:"cash_value"`
}

type WithdrawalStatusResponse struct {
	Success      bool                `json:"success"`
	Transaction  *models.Transaction `json:"transaction"`
	PayoutStatus string              `json:"payout_status"`
}

type WalletStats struct {
	TotalUsers         int64                `json:"total_users"`
	TotalCredits       int64                `json:"total_credits"`
	TotalTransactions  int64                `json:"total_transactions"`
	TotalRedemptions   int64                `json:"total_redemptions"`
	RecentTransactions []models.Transaction `json:"recent_transactions"`
}
