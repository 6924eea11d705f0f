// Package testutil opens throwaway databases and seeds fixtures for package tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/scrapsail/scrapsail-backend/internal/database"
	"github.com/scrapsail/scrapsail-backend/internal/models"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns a migrated in-memory SQLite database private to t.
// It holds a single connection, so code running inside a transaction must
// only use the transaction handle.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", strings.ReplaceAll(uuid.NewString(), "-", ""))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// Password is the plain-text password of every user created by CreateUser.
const Password = "password123"

var passwordHash = func() string {
	h, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}()

// CreateUser inserts an active user with the given role and starting credits.
func CreateUser(t *testing.T, db *gorm.DB, role models.Role, credits int64) *models.User {
	t.Helper()

	id := uuid.New()
	user := &models.User{
		ID:            id,
		Name:          string(role) + " " + id.String()[:8],
		Email:         fmt.Sprintf("%s-%s@example.com", role, id.String()[:8]),
		Password:      passwordHash,
		Role:          role,
		AccountStatus: models.AccountActive,
		CarbonCredits: credits,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// Reload refreshes a user's stored balance and counters.
func Reload(t *testing.T, db *gorm.DB, user *models.User) *models.User {
	t.Helper()

	var fresh models.User
	require.NoError(t, db.First(&fresh, "id = ?", user.ID).Error)
	return &fresh
}
