package services

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/scrapsail/scrapsail-backend/internal/apperrors"
	"github.com/scrapsail/scrapsail-backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotWhitelisted = apperrors.NotFound("Email is not whitelisted for this role")

// WhitelistService decides who may register as an admin or collector.
type WhitelistService struct {
	db *gorm.DB
}

func NewWhitelistService(db *gorm.DB) *WhitelistService {
	return &WhitelistService{db: db}
}

// IsWhitelisted reports whether email holds an active entry for role.
func (s *WhitelistService) IsWhitelisted(email string, role models.Role) (bool, error) {
	var count int64
	err := s.db.Model(&models.EmailWhitelist{}).
		Where("email = ? AND role = ? AND is_active = ?", normalizeEmail(email), role, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Add creates an entry, or reactivates a removed one.
func (s *WhitelistService) Add(email string, role models.Role, addedBy uuid.UUID) (*models.EmailWhitelist, error) {
	if role != models.RoleAdmin && role != models.RoleCollector {
		return nil, apperrors.Validation("Only admin and collector roles can be whitelisted")
	}
	email = normalizeEmail(email)

	entry := models.EmailWhitelist{Email: email, Role: role, IsActive: true, AddedBy: &addedBy}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}, {Name: "role"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_active", "added_by", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return nil, err
	}

	var stored models.EmailWhitelist
	if err := s.db.Where("email = ? AND role = ?", email, role).First(&stored).Error; err != nil {
		return nil, err
	}

	slog.Info("email whitelisted", "role", role, "user_id", addedBy)
	return &stored, nil
}

// Remove deactivates an entry. Accounts already registered keep their role.
func (s *WhitelistService) Remove(email string, role models.Role) error {
	result := s.db.Model(&models.EmailWhitelist{}).
		Where("email = ? AND role = ? AND is_active = ?", normalizeEmail(email), role, true).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotWhitelisted
	}
	return nil
}

func (s *WhitelistService) List() ([]models.EmailWhitelist, error) {
	entries := []models.EmailWhitelist{}
	err := s.db.Where("is_active = ?", true).Order("created_at DESC").Find(&entries).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return entries, nil
}
