package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/scrapsail/scrapsail-backend/internal/apperrors"
	"github.com/scrapsail/scrapsail-backend/internal/config"
	"github.com/scrapsail/scrapsail-backend/internal/dto"
	"github.com/scrapsail/scrapsail-backend/internal/models"
	"github.com/scrapsail/scrapsail-backend/internal/payout"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInsufficientCredits = apperrors.InsufficientBalance("Insufficient carbon credits")
	ErrInvalidAmount       = apperrors.Validation("Amount must be a positive number of credits")
	ErrUserNotFound        = apperrors.NotFound("User not found")
	ErrTransactionNotFound = apperrors.NotFound("Transaction not found")
	ErrMissingBankDetails  = apperrors.Validation("Missing required bank account details")
	ErrBalanceOverflow     = apperrors.Validation("Amount would exceed the maximum credit balance")
)

// Entry describes one ledger posting. Amount is the magnitude; the sign comes
// from Type.
type Entry struct {
	UserID          uuid.UUID
	Type            models.TransactionType
	Amount          int64
	Description     string
	PickupID        *uuid.UUID
	PayoutReference *string
	Status          models.TransactionStatus
	Metadata        map[string]interface{}
}

// LedgerService is the only writer of User.CarbonCredits. Every balance change
// appends a Transaction carrying the resulting balance.
type LedgerService struct {
	db       *gorm.DB
	settings *SettingsService
	gateway  payout.Gateway
	currency string
	timeout  time.Duration
}

func NewLedgerService(db *gorm.DB, settings *SettingsService, gateway payout.Gateway, cfg *config.Config) *LedgerService {
	return &LedgerService{
		db:       db,
		settings: settings,
		gateway:  gateway,
		currency: cfg.PayoutCurrency,
		timeout:  cfg.ExternalCallTimeout,
	}
}

func (s *LedgerService) Post(e Entry) (*models.Transaction, error) {
	var txn *models.Transaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		txn, err = s.PostTx(tx, e)
		return err
	})
	return txn, err
}

// PostTx applies e inside an open transaction. It locks the user row, so
// concurrent postings for one user are serialized.
func (s *LedgerService) PostTx(tx *gorm.DB, e Entry) (*models.Transaction, error) {
	if !e.Type.Valid() {
		return nil, apperrors.Validation("Invalid transaction type")
	}
	if e.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	user, err := lockUser(tx, e.UserID)
	if err != nil {
		return nil, err
	}

	signed := e.Type.Sign() * e.Amount
	if signed > 0 && user.CarbonCredits > math.MaxInt64-signed {
		return nil, ErrBalanceOverflow
	}
	balance := user.CarbonCredits + signed
	if balance < 0 {
		return nil, ErrInsufficientCredits
	}

	if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Update("carbon_credits", balance).Error; err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	status := e.Status
	if status == "" {
		status = models.TxCompleted
	}
	txn := &models.Transaction{
		UserID:          e.UserID,
		Type:            e.Type,
		Amount:          signed,
		BalanceAfter:    balance,
		Description:     e.Description,
		RelatedPickupID: e.PickupID,
		PayoutReference: e.PayoutReference,
		Status:          status,
		Metadata:        toJSON(e.Metadata),
	}
	if err := tx.Create(txn).Error; err != nil {
		return nil, fmt.Errorf("append transaction: %w", err)
	}
	return txn, nil
}

func (s *LedgerService) Redeem(userID uuid.UUID, amount int64, item string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, apperrors.Validation("Invalid redemption amount")
	}

	econ := s.settings.Current()
	description := "Cash redemption"
	if item != "" {
		description = "Redeemed for " + item
	}

	txn, err := s.Post(Entry{
		UserID:      userID,
		Type:        models.TxRedemption,
		Amount:      amount,
		Description: description,
		Metadata: map[string]interface{}{
			"redemption_item": item,
			"cash_value":      econ.CashValue(amount).StringFixed(2),
		},
	})
	if err != nil {
		return nil, err
	}

	slog.Info("credits redeemed", "user_id", userID, "amount", amount, "transaction_id", txn.ID)
	return txn, nil
}

// AddBonus credits a user on an admin's behalf.
func (s *LedgerService) AddBonus(userID uuid.UUID, amount int64, reason string, adminID uuid.UUID) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if reason == "" {
		reason = "Bonus credits"
	}

	return s.Post(Entry{
		UserID:      userID,
		Type:        models.TxBonus,
		Amount:      amount,
		Description: reason,
		Metadata:    map[string]interface{}{"added_by": adminID.String()},
	})
}

type WithdrawResult struct {
	Transaction *models.Transaction
	Payout      *payout.Payout
}

// Withdraw converts credits to cash and sends it to a bank account. The
// debit is committed as a pending withdrawal before the gateway is called, so
// the user row is never locked across the external call and a payout always
// has a ledger row. A gateway failure settles the withdrawal as failed and
// refunds the credits.
func (s *LedgerService) Withdraw(ctx context.Context, userID uuid.UUID, req *dto.WithdrawRequest) (*WithdrawResult, error) {
	if req.Amount <= 0 {
		return nil, apperrors.Validation("Invalid withdrawal amount")
	}
	if req.AccountHolderName == "" || req.AccountNumber == "" || req.IFSCCode == "" {
		return nil, ErrMissingBankDetails
	}

	econ := s.settings.Current()
	cash := econ.CashValue(req.Amount)
	account := payout.BankAccount{
		HolderName:    req.AccountHolderName,
		AccountNumber: req.AccountNumber,
		IFSC:          req.IFSCCode,
		BankName:      req.BankName,
		Contact:       req.Contact,
	}
	bank := account.BankName
	if bank == "" {
		bank = "bank account"
	}

	var (
		txn  *models.Transaction
		user *models.User
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = lockUser(tx, userID)
		if err != nil {
			return err
		}
		if user.CarbonCredits < req.Amount {
			return ErrInsufficientCredits
		}
		if cash.LessThan(econ.MinWithdrawal) {
			return apperrors.BelowMinimum("Minimum withdrawal amount is ₹" + econ.MinWithdrawal.String())
		}

		txn, err = s.PostTx(tx, Entry{
			UserID:      userID,
			Type:        models.TxWithdrawal,
			Amount:      req.Amount,
			Description: fmt.Sprintf("Withdrawal to %s - %s", bank, account.Last4()),
			Status:      models.TxPending,
			Metadata: map[string]interface{}{
				"payout_status":       string(payout.StatusPending),
				"account_holder_name": account.HolderName,
				"account_last4":       account.Last4(),
				"ifsc_code":           account.IFSC,
				"bank_name":           account.BankName,
				"cash_value":          cash.StringFixed(2),
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	// the row id keeps the idempotency key stable for this withdrawal
	reference := withdrawalReference(txn.ID)
	destination := ""
	if user.PayoutCustomerID != nil {
		destination = *user.PayoutCustomerID
	}

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	p, err := s.gateway.CreatePayout(gctx, payout.Request{
		Reference:   reference,
		Amount:      cash,
		Currency:    s.currency,
		Account:     account,
		Email:       user.Email,
		Narration:   fmt.Sprintf("ScrapSail credit withdrawal (%d credits)", req.Amount),
		Destination: destination,
	})
	cancel()
	if err != nil {
		s.abandonWithdrawal(txn.ID, reference, err.Error())
		return nil, apperrors.Gateway("Withdrawal failed: payout could not be initiated", err)
	}
	if p.Status == payout.StatusFailed || p.Status == payout.StatusCancelled {
		s.abandonWithdrawal(txn.ID, reference, p.FailureText)
		return nil, apperrors.Gateway("Withdrawal failed: payout was rejected", errors.New(p.FailureText))
	}

	txn, err = s.attachPayout(txn.ID, userID, destination, reference, p)
	if err != nil {
		// the pending row still carries the reference for reconciliation
		slog.Error("payout created but not linked to withdrawal", "user_id", userID, "transaction_id", txn.ID, "payout_id", p.ID, "error", err)
		return nil, err
	}
	if p.Status == payout.StatusCompleted {
		if txn, err = s.ApplyPayoutStatus(txn.ID, p.Status); err != nil {
			return nil, err
		}
	}

	slog.Info("withdrawal initiated", "user_id", userID, "amount", req.Amount, "payout_id", p.ID, "transaction_id", txn.ID)
	return &WithdrawResult{Transaction: txn, Payout: p}, nil
}

func withdrawalReference(txID uint) string {
	return fmt.Sprintf("wd_%d", txID)
}

// attachPayout links the gateway payout to its withdrawal and remembers the
// payee account for the user's next withdrawal.
func (s *LedgerService) attachPayout(txID uint, userID uuid.UUID, knownDest, reference string, p *payout.Payout) (*models.Transaction, error) {
	var txn models.Transaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&txn, "id = ?", txID).Error; err != nil {
			return err
		}
		metadata := mergeJSON(txn.Metadata, map[string]interface{}{
			"payout_id":     p.ID,
			"payout_status": string(p.Status),
			"reference":     reference,
		})
		if err := tx.Model(&txn).Updates(map[string]interface{}{
			"payout_reference": p.ID,
			"metadata":         metadata,
		}).Error; err != nil {
			return err
		}
		txn.PayoutReference = &p.ID
		txn.Metadata = metadata

		if p.Destination != "" && p.Destination != knownDest {
			return tx.Model(&models.User{}).Where("id = ?", userID).Update("payout_customer_id", p.Destination).Error
		}
		return nil
	})
	return &txn, err
}

// abandonWithdrawal settles a withdrawal whose payout never started and
// refunds its credits. Errors are logged; the withdrawal stays pending and
// visible to operators.
func (s *LedgerService) abandonWithdrawal(txID uint, reference, reason string) {
	if err := s.settle(txID, payout.StatusFailed, map[string]interface{}{
		"reference":      reference,
		"failure_reason": reason,
	}); err != nil {
		slog.Error("failed to refund abandoned withdrawal", "transaction_id", txID, "error", err)
	}
}

// RefreshWithdrawal asks the gateway for the payout's current state and
// mirrors it onto the withdrawal.
func (s *LedgerService) RefreshWithdrawal(ctx context.Context, userID uuid.UUID, txID uint) (*models.Transaction, *payout.Payout, error) {
	var txn models.Transaction
	if err := s.db.First(&txn, "id = ? AND user_id = ?", txID, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrTransactionNotFound
		}
		return nil, nil, err
	}
	if txn.Type != models.TxWithdrawal {
		return nil, nil, apperrors.Validation("Transaction is not a withdrawal")
	}
	if txn.PayoutReference == nil {
		return nil, nil, apperrors.Validation("Withdrawal has no payout reference")
	}

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	p, err := s.gateway.GetPayout(gctx, *txn.PayoutReference)
	if err != nil {
		return nil, nil, apperrors.Gateway("Failed to fetch payout status", err)
	}

	updated, err := s.ApplyPayoutStatus(txn.ID, p.Status)
	if err != nil {
		return nil, nil, err
	}
	return updated, p, nil
}

// ApplyPayoutByReference resolves a gateway payout id to its withdrawal.
func (s *LedgerService) ApplyPayoutByReference(payoutID string, status payout.Status) (*models.Transaction, error) {
	var txn models.Transaction
	if err := s.db.Select("id").First(&txn, "payout_reference = ?", payoutID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return s.ApplyPayoutStatus(txn.ID, status)
}

// ApplyPayoutStatus settles a pending withdrawal once its payout reaches a
// final state. Failed or cancelled payouts post a compensating credit. Calls
// for already settled withdrawals are no-ops.
func (s *LedgerService) ApplyPayoutStatus(txID uint, status payout.Status) (*models.Transaction, error) {
	var txn models.Transaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		txn, err = s.settleTx(tx, txID, status, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (s *LedgerService) settle(txID uint, status payout.Status, extra map[string]interface{}) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		_, err := s.settleTx(tx, txID, status, extra)
		return err
	})
}

func (s *LedgerService) settleTx(tx *gorm.DB, txID uint, status payout.Status, extra map[string]interface{}) (models.Transaction, error) {
	var txn models.Transaction
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&txn, "id = ?", txID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return txn, ErrTransactionNotFound
		}
		return txn, err
	}
	if txn.Status != models.TxPending || !status.Final() {
		return txn, nil
	}

	next := models.TxCompleted
	switch status {
	case payout.StatusFailed:
		next = models.TxFailed
	case payout.StatusCancelled:
		next = models.TxCancelled
	}

	fields := map[string]interface{}{"payout_status": string(status)}
	for k, v := range extra {
		fields[k] = v
	}
	metadata := mergeJSON(txn.Metadata, fields)
	if err := tx.Model(&txn).Updates(map[string]interface{}{
		"status":   next,
		"metadata": metadata,
	}).Error; err != nil {
		return txn, err
	}
	txn.Status = next
	txn.Metadata = metadata

	if next == models.TxCompleted {
		return txn, nil
	}
	_, err := s.PostTx(tx, Entry{
		UserID:      txn.UserID,
		Type:        models.TxCredit,
		Amount:      -txn.Amount,
		Description: fmt.Sprintf("Refund for %s withdrawal #%d", status, txn.ID),
		Metadata:    map[string]interface{}{"withdrawal_id": txn.ID},
	})
	return txn, err
}

// PendingWithdrawals returns withdrawals still pending that were created before cutoff.
func (s *LedgerService) PendingWithdrawals(cutoff time.Time, limit int) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := s.db.
		Where("type = ? AND status = ? AND payout_reference IS NOT NULL AND created_at < ?", models.TxWithdrawal, models.TxPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

// Recent returns the newest transactions for a user, ties broken by insertion order.
func (s *LedgerService) Recent(userID uuid.UUID, limit int) ([]models.Transaction, error) {
	txns := []models.Transaction{}
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

func (s *LedgerService) UserTransactions(userID uuid.UUID, txType string, page, limit int) (*dto.TransactionListResponse, error) {
	page, limit, offset := normalizePage(page, limit)

	query := s.db.Model(&models.Transaction{}).Where("user_id = ?", userID)
	if txType != "" {
		if !models.TransactionType(txType).Valid() {
			return nil, apperrors.Validation("Invalid transaction type")
		}
		query = query.Where("type = ?", txType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	txns := []models.Transaction{}
	if err := query.Preload("RelatedPickup").
		Order("created_at DESC").Order("id DESC").
		Limit(limit).Offset(offset).
		Find(&txns).Error; err != nil {
		return nil, err
	}

	return &dto.TransactionListResponse{
		Success:      true,
		Transactions: txns,
		Pagination:   newPagination(page, limit, total),
	}, nil
}

func (s *LedgerService) Wallet(userID uuid.UUID) (*dto.WalletResponse, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	econ := s.settings.Current()
	summary := dto.WalletSummary{
		TotalCredits:    user.CarbonCredits,
		CashBalance:     econ.CashValue(user.CarbonCredits),
		TotalRecycled:   user.TotalRecycled,
		RemainingPoints: user.CarbonCredits,
		RedemptionRate:  econ.RedemptionRate,
		Rate:            "1 credit = ₹" + econ.RedemptionRate.String(),
	}

	var last models.Transaction
	err := s.db.Where("user_id = ? AND type = ?", userID, models.TxRedemption).
		Order("created_at DESC").Order("id DESC").
		First(&last).Error
	if err == nil {
		summary.LastRedeem = &last.CreatedAt
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	recent, err := s.Recent(userID, 10)
	if err != nil {
		return nil, err
	}

	return &dto.WalletResponse{Success: true, Wallet: summary, RecentTransactions: recent}, nil
}

// Stats aggregates the ledger across all users.
func (s *LedgerService) Stats() (*dto.WalletStats, error) {
	stats := &dto.WalletStats{}

	if err := s.db.Model(&models.User{}).Where("role = ?", models.RoleUser).Count(&stats.TotalUsers).Error; err != nil {
		return nil, err
	}

	var credits struct{ Total int64 }
	if err := s.db.Model(&models.User{}).Select("COALESCE(SUM(carbon_credits), 0) AS total").Scan(&credits).Error; err != nil {
		return nil, err
	}
	stats.TotalCredits = credits.Total

	if err := s.db.Model(&models.Transaction{}).Count(&stats.TotalTransactions).Error; err != nil {
		return nil, err
	}

	var redeemed struct{ Total int64 }
	if err := s.db.Model(&models.Transaction{}).
		Select("COALESCE(SUM(ABS(amount)), 0) AS total").
		Where("type = ?", models.TxRedemption).
		Scan(&redeemed).Error; err != nil {
		return nil, err
	}
	stats.TotalRedemptions = redeemed.Total

	stats.RecentTransactions = []models.Transaction{}
	if err := s.db.Preload("User").
		Order("created_at DESC").Order("id DESC").
		Limit(10).
		Find(&stats.RecentTransactions).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

func lockUser(tx *gorm.DB, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lock user: %w", err)
	}
	return &user, nil
}

func toJSON(m map[string]interface{}) datatypes.JSON {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func mergeJSON(existing datatypes.JSON, extra map[string]interface{}) datatypes.JSON {
	merged := map[string]interface{}{}
	if len(existing) > 0 {
		_ = json.Unmarshal(existing, &merged)
	}
	for k, v := range extra {
		merged[k] = v
	}
	return toJSON(merged)
}
