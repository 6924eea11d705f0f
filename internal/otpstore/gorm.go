package otpstore

import (
	"context"
	"time"

	"github.com/scrapsail/scrapsail-backend/internal/models"
	"gorm.io/gorm"
)

// GormStore keeps codes in the otps table.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Save(ctx context.Context, email, purpose, code string, expiresAt time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email = ? AND type = ?", email, purpose).Delete(&models.OTP{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.OTP{
			Email:     email,
			Type:      purpose,
			Code:      code,
			ExpiresAt: expiresAt,
		}).Error
	})
}

// Consume is a single conditional DELETE, so two concurrent verifications of
// the same code cannot both succeed.
func (s *GormStore) Consume(ctx context.Context, email, purpose, code string, now time.Time) (bool, error) {
	result := s.db.WithContext(ctx).
		Where("email = ? AND type = ? AND otp = ? AND expires_at > ?", email, purpose, code, now).
		Delete(&models.OTP{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) Check(ctx context.Context, email, purpose, code string, now time.Time) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.OTP{}).
		Where("email = ? AND type = ? AND otp = ? AND expires_at > ?", email, purpose, code, now).
		Count(&n).Error
	return n > 0, err
}

func (s *GormStore) Delete(ctx context.Context, email, purpose string) error {
	return s.db.WithContext(ctx).Where("email = ? AND type = ?", email, purpose).Delete(&models.OTP{}).Error
}

func (s *GormStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.OTP{})
	return result.RowsAffected, result.Error
}
