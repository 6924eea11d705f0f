package services_test

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/scrapsail/scrapsail-backend/internal/apperrors"
	"github.com/scrapsail/scrapsail-backend/internal/dto"
	"github.com/scrapsail/scrapsail-backend/internal/models"
	"github.com/scrapsail/scrapsail-backend/internal/services"
	"github.com/scrapsail/scrapsail-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuth(t *testing.T) (*env, *services.AuthService, *services.WhitelistService) {
	t.Helper()
	e := newEnv(t)
	whitelist := services.NewWhitelistService(e.db)
	return e, services.NewAuthService(e.db, e.cfg, whitelist), whitelist
}

func TestRegisterAndLogin(t *testing.T) {
	e, auth, _ := newAuth(t)

	resp, err := auth.Register(&dto.RegisterRequest{
		Name:     "Asha Rao",
		Email:    "Asha@Example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, resp.User.Role)
	assert.Equal(t, "asha@example.com", resp.User.Email)
	assert.NotEmpty(t, resp.RefreshToken)

	token, err := jwt.Parse(resp.AccessToken, func(*jwt.Token) (interface{}, error) {
		return []byte(e.cfg.JWTSecret), nil
	})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, resp.User.ID.String(), claims["sub"])
	assert.Equal(t, "user", claims["role"])

	_, err = auth.Register(&dto.RegisterRequest{Name: "Again", Email: "asha@example.com", Password: "another-pass"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = auth.Login(&dto.LoginRequest{Email: "asha@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)

	_, err = auth.Login(&dto.LoginRequest{Email: "nobody@example.com", Password: "whatever"})
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)

	login, err := auth.Login(&dto.LoginRequest{Email: "ASHA@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, login.User.ID)
}

func TestPrivilegedRegistrationRequiresWhitelist(t *testing.T) {
	e, auth, whitelist := newAuth(t)
	admin := testutil.CreateUser(t, e.db, models.RoleAdmin, 0)

	_, err := auth.Register(&dto.RegisterRequest{Name: "C", Email: "collector@example.com", Password: "password123", Role: "collector"})
	assert.ErrorIs(t, err, services.ErrRoleNotPermitted)

	_, err = whitelist.Add("Collector@example.com", models.RoleCollector, admin.ID)
	require.NoError(t, err)

	// a collector entry does not grant admin
	_, err = auth.Register(&dto.RegisterRequest{Name: "C", Email: "collector@example.com", Password: "password123", Role: "admin"})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	resp, err := auth.Register(&dto.RegisterRequest{Name: "C", Email: "collector@example.com", Password: "password123", Role: "collector"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleCollector, resp.User.Role)

	_, err = auth.Register(&dto.RegisterRequest{Name: "X", Email: "x@example.com", Password: "password123", Role: "superuser"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestInactiveAccountCannotLogin(t *testing.T) {
	e, auth, _ := newAuth(t)
	user := testutil.CreateUser(t, e.db, models.RoleUser, 0)
	require.NoError(t, e.db.Model(user).Update("account_status", models.AccountSuspended).Error)

	_, err := auth.Login(&dto.LoginRequest{Email: user.Email, Password: testutil.Password})
	assert.ErrorIs(t, err, services.ErrAccountInactive)
}

func TestRefreshRotatesTokens(t *testing.T) {
	e, auth, _ := newAuth(t)
	user := testutil.CreateUser(t, e.db, models.RoleUser, 0)

	login, err := auth.Login(&dto.LoginRequest{Email: user.Email, Password: testutil.Password})
	require.NoError(t, err)

	rotated, err := auth.Refresh(&dto.RefreshRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)

	_, err = auth.Refresh(&dto.RefreshRequest{RefreshToken: login.RefreshToken})
	assert.ErrorIs(t, err, services.ErrInvalidToken)

	require.NoError(t, auth.Logout(&dto.LogoutRequest{RefreshToken: rotated.RefreshToken}))
	_, err = auth.Refresh(&dto.RefreshRequest{RefreshToken: rotated.RefreshToken})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	assert.NoError(t, auth.Logout(&dto.LogoutRequest{}))
}

func TestRefreshRejectsSuspendedAccount(t *testing.T) {
	e, auth, _ := newAuth(t)
	user := testutil.CreateUser(t, e.db, models.RoleUser, 0)

	login, err := auth.Login(&dto.LoginRequest{Email: user.Email, Password: testutil.Password})
	require.NoError(t, err)
	require.NoError(t, e.db.Model(user).Update("account_status", models.AccountInactive).Error)

	_, err = auth.Refresh(&dto.RefreshRequest{RefreshToken: login.RefreshToken})
	assert.ErrorIs(t, err, services.ErrAccountInactive)
}

func TestWhitelistLifecycle(t *testing.T) {
	e, _, whitelist := newAuth(t)
	admin := testutil.CreateUser(t, e.db, models.RoleAdmin, 0)

	_, err := whitelist.Add("someone@example.com", models.RoleUser, admin.ID)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	entry, err := whitelist.Add("Ops@Example.com", models.RoleAdmin, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", entry.Email)
	assert.True(t, entry.IsActive)

	ok, err := whitelist.IsWhitelisted("ops@example.com", models.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, whitelist.Remove("ops@example.com", models.RoleAdmin))
	ok, err = whitelist.IsWhitelisted("ops@example.com", models.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, whitelist.Remove("ops@example.com", models.RoleAdmin), services.ErrNotWhitelisted)

	again, err := whitelist.Add("ops@example.com", models.RoleAdmin, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, again.ID)
	assert.True(t, again.IsActive)

	entries, err := whitelist.List()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
