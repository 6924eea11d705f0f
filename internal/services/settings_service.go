package services

import (
	"errors"
	"log/slog"
	"sort"

	"github.com/scrapsail/scrapsail-backend/internal/apperrors"
	"github.com/scrapsail/scrapsail-backend/internal/config"
	"github.com/scrapsail/scrapsail-backend/internal/dto"
	"github.com/scrapsail/scrapsail-backend/internal/lifecycle"
	"github.com/scrapsail/scrapsail-backend/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	SettingCreditRates    = "credit_rates"
	SettingRedemptionRate = "redemption_rate"
	SettingMinWithdrawal  = "min_withdrawal"
)

var settingTypes = map[string]string{
	SettingCreditRates:    "rates",
	SettingRedemptionRate: "decimal",
	SettingMinWithdrawal:  "decimal",
}

var ErrUnknownSetting = apperrors.NotFound("Unknown setting")

// Economics are the constants that turn weight into credits and credits into cash.
type Economics struct {
	CreditRates    lifecycle.RateTable
	RedemptionRate decimal.Decimal
	MinWithdrawal  decimal.Decimal
}

// CashValue converts credits to cash at the redemption rate.
func (e Economics) CashValue(credits int64) decimal.Decimal {
	return decimal.NewFromInt(credits).Mul(e.RedemptionRate)
}

// SettingsService layers operator overrides from the settings table over the
// configured defaults.
type SettingsService struct {
	db       *gorm.DB
	defaults Economics
}

func NewSettingsService(db *gorm.DB, cfg *config.Config) *SettingsService {
	return &SettingsService{
		db: db,
		defaults: Economics{
			CreditRates:    cfg.CreditRates,
			RedemptionRate: cfg.RedemptionRate,
			MinWithdrawal:  cfg.MinWithdrawal,
		},
	}
}

// Current returns the effective economics. Unreadable overrides are logged and
// ignored.
func (s *SettingsService) Current() Economics {
	econ := Economics{
		CreditRates:    s.defaults.CreditRates.Merge(nil),
		RedemptionRate: s.defaults.RedemptionRate,
		MinWithdrawal:  s.defaults.MinWithdrawal,
	}

	var rows []models.Setting
	if err := s.db.Where("key IN ?", []string{SettingCreditRates, SettingRedemptionRate, SettingMinWithdrawal}).Find(&rows).Error; err != nil {
		slog.Error("failed to load settings, using defaults", "error", err)
		return econ
	}

	for _, row := range rows {
		switch row.Key {
		case SettingCreditRates:
			rates, err := lifecycle.ParseRates(row.Value)
			if err != nil {
				slog.Warn("ignoring invalid credit_rates setting", "error", err)
				continue
			}
			econ.CreditRates = econ.CreditRates.Merge(rates)
		case SettingRedemptionRate:
			if d, err := positiveDecimal(row.Value); err == nil {
				econ.RedemptionRate = d
			} else {
				slog.Warn("ignoring invalid redemption_rate setting", "error", err)
			}
		case SettingMinWithdrawal:
			if d, err := positiveDecimal(row.Value); err == nil {
				econ.MinWithdrawal = d
			} else {
				slog.Warn("ignoring invalid min_withdrawal setting", "error", err)
			}
		}
	}
	return econ
}

func (s *SettingsService) List() ([]dto.SettingEntry, error) {
	var rows []models.Setting
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	overridden := make(map[string]models.Setting, len(rows))
	for _, row := range rows {
		overridden[row.Key] = row
	}

	current := s.Current()
	effective := map[string]string{
		SettingCreditRates:    current.CreditRates.String(),
		SettingRedemptionRate: current.RedemptionRate.String(),
		SettingMinWithdrawal:  current.MinWithdrawal.String(),
	}

	entries := make([]dto.SettingEntry, 0, len(effective))
	for key, value := range effective {
		row, ok := overridden[key]
		entry := dto.SettingEntry{Key: key, Value: value, Type: settingTypes[key], Overridden: ok}
		if ok {
			entry.UpdatedAt = &row.UpdatedAt
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Set validates and upserts an override.
func (s *SettingsService) Set(key, value string) (*models.Setting, error) {
	typ, ok := settingTypes[key]
	if !ok {
		return nil, ErrUnknownSetting
	}

	switch typ {
	case "rates":
		if _, err := lifecycle.ParseRates(value); err != nil {
			return nil, apperrors.Validation("Invalid credit rates: " + err.Error())
		}
	case "decimal":
		if _, err := positiveDecimal(value); err != nil {
			return nil, apperrors.Validation("Value must be a positive number")
		}
	}

	setting := models.Setting{Key: key, Value: value, Type: typ}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "type", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		return nil, err
	}

	slog.Info("setting updated", "key", key, "value", value)
	return &setting, nil
}

// Reset removes an override so the configured default applies again.
func (s *SettingsService) Reset(key string) error {
	if _, ok := settingTypes[key]; !ok {
		return ErrUnknownSetting
	}
	result := s.db.Where("key = ?", key).Delete(&models.Setting{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("Setting is not overridden")
	}
	return nil
}

func positiveDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, errors.New("must be positive")
	}
	return d, nil
}
