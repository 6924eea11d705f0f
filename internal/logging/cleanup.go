package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/scrapsail/scrapsail-backend/internal/models"
	"gorm.io/gorm"
)

// Retention returns a periodic job that purges system_logs older than
// retentionDays along with refresh tokens that are revoked or past expiry.
// A non-positive retentionDays falls back to 30.
func Retention(db *gorm.DB, retentionDays int) func(context.Context) error {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return func(ctx context.Context) error {
		now := time.Now()
		conn := db.WithContext(ctx)

		logs := conn.Where("timestamp < ?", now.AddDate(0, 0, -retentionDays)).Delete(&models.SystemLog{})
		if logs.Error != nil {
			return logs.Error
		}
		tokens := conn.Where("revoked = ? OR expires_at < ?", true, now).Delete(&models.RefreshToken{})
		if tokens.Error != nil {
			return tokens.Error
		}

		if logs.RowsAffected > 0 || tokens.RowsAffected > 0 {
			slog.Info("retention sweep completed", "system_logs", logs.RowsAffected, "refresh_tokens", tokens.RowsAffected)
		}
		return nil
	}
}
