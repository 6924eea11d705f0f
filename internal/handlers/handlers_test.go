package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/scrapsail/scrapsail-backend/internal/config"
	"github.com/scrapsail/scrapsail-backend/internal/dto"
	"github.com/scrapsail/scrapsail-backend/internal/handlers"
	"github.com/scrapsail/scrapsail-backend/internal/lifecycle"
	"github.com/scrapsail/scrapsail-backend/internal/models"
	"github.com/scrapsail/scrapsail-backend/internal/notify"
	"github.com/scrapsail/scrapsail-backend/internal/otpstore"
	"github.com/scrapsail/scrapsail-backend/internal/payout"
	"github.com/scrapsail/scrapsail-backend/internal/routes"
	"github.com/scrapsail/scrapsail-backend/internal/services"
	"github.com/scrapsail/scrapsail-backend/internal/testutil"
	"github.com/scrapsail/scrapsail-backend/internal/validator"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type server struct {
	app *fiber.App
	db  *gorm.DB
	cfg *config.Config
}

func newServer(t *testing.T, opts ...func(*config.Config)) *server {
	t.Helper()

	db := testutil.NewDB(t)
	cfg := &config.Config{
		JWTSecret:           "handler-test-secret",
		JWTAccessExpiry:     15 * time.Minute,
		JWTRefreshExpiry:    time.Hour,
		OTPTTL:              10 * time.Minute,
		OTPDebugMode:        true,
		ExternalCallTimeout: 5 * time.Second,
		PayoutCurrency:      "inr",
		CreditRates:         lifecycle.DefaultRates(),
		RedemptionRate:      decimal.NewFromInt(1),
		MinWithdrawal:       decimal.NewFromInt(100),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	validate := validator.New()
	settings := services.NewSettingsService(db, cfg)
	ledger := services.NewLedgerService(db, settings, payout.NewSandbox(), cfg)
	pickups := services.NewPickupService(db, ledger, settings, nil, cfg.ExternalCallTimeout)
	whitelist := services.NewWhitelistService(db)
	auth := services.NewAuthService(db, cfg, whitelist)
	otp := services.NewOTPService(otpstore.NewGormStore(db), notify.Unconfigured{}, nil, cfg)
	users := services.NewUserService(db, settings)

	app := fiber.New()
	routes.Setup(app, cfg, db, routes.Handlers{
		Auth:     handlers.NewAuthHandler(auth, validate),
		Health:   handlers.NewHealthHandler(db, nil),
		Pickup:   handlers.NewPickupHandler(pickups, validate),
		Wallet:   handlers.NewWalletHandler(ledger, validate),
		OTP:      handlers.NewOTPHandler(otp, validate),
		Admin:    handlers.NewAdminHandler(users, whitelist, ledger, validate),
		Settings: handlers.NewSettingsHandler(settings, validate),
		Webhook:  handlers.NewWebhookHandler(ledger, ""),
	})

	return &server{app: app, db: db, cfg: cfg}
}

func (s *server) token(t *testing.T, user *models.User) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": string(user.Role),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	require.NoError(t, err)
	return signed
}

// do sends a request and decodes the JSON response into out when non-nil.
func (s *server) do(t *testing.T, method, path, token string, body interface{}, out interface{}) int {
	t.Helper()
	return s.doWithHeaders(t, method, path, token, nil, body, out)
}

func (s *server) doWithHeaders(t *testing.T, method, path, token string, headers map[string]string, body interface{}, out interface{}) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil && len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, out), string(raw))
	}
	return resp.StatusCode
}

func pickupBody(weight string) map[string]interface{} {
	return map[string]interface{}{
		"waste_category": "Plastic",
		"weight":         weight,
		"pickup_address": "12 Green Street",
		"scheduled_date": "2030-01-15",
	}
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	var resp dto.HealthResponse
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/health", "", nil, &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.DB)
}

func TestAccessGuard(t *testing.T) {
	s := newServer(t)
	user := testutil.CreateUser(t, s.db, models.RoleUser, 0)
	collector := testutil.CreateUser(t, s.db, models.RoleCollector, 0)

	var errResp dto.ErrorResponse
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/pickup", "", nil, &errResp))
	assert.False(t, errResp.Success)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/pickup", "not-a-jwt", nil, nil))

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/pickup/admin/pending", s.token(t, user), nil, nil))
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/api/pickup", s.token(t, collector), pickupBody("1"), nil))
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/admin/users", s.token(t, collector), nil, nil))

	// the stored role wins over the token claim
	forged := *user
	forged.Role = models.RoleAdmin
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/admin/users", s.token(t, &forged), nil, nil))

	require.NoError(t, s.db.Model(user).Update("account_status", models.AccountSuspended).Error)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/pickup", s.token(t, user), nil, nil))
}

func TestPickupFlowOverHTTP(t *testing.T) {
	s := newServer(t)
	user := testutil.CreateUser(t, s.db, models.RoleUser, 0)
	collector := testutil.CreateUser(t, s.db, models.RoleCollector, 0)
	admin := testutil.CreateUser(t, s.db, models.RoleAdmin, 0)

	var created dto.PickupResponse
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/pickup", s.token(t, user), pickupBody("5.5"), &created))
	require.NotNil(t, created.Pickup)
	assert.Equal(t, lifecycle.StatusPending, created.Pickup.Status)
	id := created.Pickup.ID.String()

	var pending dto.PickupListResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/pickup/admin/pending", s.token(t, admin), nil, &pending))
	assert.Len(t, pending.Pickups, 1)

	var approved dto.PickupResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/pickup/"+id+"/approve", s.token(t, admin), map[string]string{"notes": "ok"}, &approved))
	assert.Equal(t, lifecycle.StatusCollectorAssigned, approved.Pickup.Status)

	var errResp dto.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/api/pickup/"+id+"/approve", s.token(t, admin), nil, &errResp))
	assert.NotEmpty(t, errResp.Message)

	for _, step := range []string{"accept", "start", "complete"} {
		require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/pickup/"+id+"/"+step, s.token(t, collector), nil, nil), step)
	}

	var got dto.PickupResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/pickup/"+id, s.token(t, user), nil, &got))
	assert.Equal(t, lifecycle.StatusCompleted, got.Pickup.Status)
	assert.Equal(t, int64(55), got.Pickup.CarbonCreditsEarned)

	var wallet dto.WalletResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/wallet/"+user.ID.String(), s.token(t, user), nil, &wallet))
	assert.Equal(t, int64(55), wallet.Wallet.TotalCredits)
	require.Len(t, wallet.RecentTransactions, 1)
	assert.Equal(t, int64(55), wallet.RecentTransactions[0].BalanceAfter)
}

func TestValidationEnvelope(t *testing.T) {
	s := newServer(t)
	user := testutil.CreateUser(t, s.db, models.RoleUser, 0)

	body := pickupBody("0")
	body["waste_category"] = "Glass"

	var errResp dto.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/pickup", s.token(t, user), body, &errResp))
	assert.False(t, errResp.Success)
	assert.Contains(t, errResp.Errors, "waste_category")
	assert.Contains(t, errResp.Errors, "weight")

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/pickup/not-a-uuid", s.token(t, user), nil, nil))
}

func TestWalletOwnership(t *testing.T) {
	s := newServer(t)
	owner := testutil.CreateUser(t, s.db, models.RoleUser, 80)
	other := testutil.CreateUser(t, s.db, models.RoleUser, 0)
	admin := testutil.CreateUser(t, s.db, models.RoleAdmin, 0)
	walletPath := "/api/wallet/" + owner.ID.String()

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, walletPath, s.token(t, other), nil, nil))
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, walletPath, s.token(t, admin), nil, nil))

	var errResp dto.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, walletPath+"/redeem", s.token(t, owner), map[string]interface{}{"amount": 100}, &errResp))
	assert.Equal(t, services.ErrInsufficientCredits.Message, errResp.Message)

	var redeemed dto.TransactionResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, walletPath+"/redeem", s.token(t, owner), map[string]interface{}{"amount": 30}, &redeemed))
	assert.Equal(t, int64(50), redeemed.NewBalance)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, walletPath+"/redeem", s.token(t, other), map[string]interface{}{"amount": 1}, nil))

	var bonus dto.TransactionResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, walletPath+"/add-credits", s.token(t, admin), map[string]interface{}{"amount": 100, "reason": "welcome"}, &bonus))
	assert.Equal(t, int64(150), bonus.NewBalance)

	var withdrawn dto.WithdrawResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, walletPath+"/withdraw", s.token(t, owner), map[string]interface{}{
		"amount":              120,
		"account_holder_name": "Owner",
		"account_number":      "123456789",
		"ifsc_code":           "SBIN0004321",
	}, &withdrawn))
	assert.NotEmpty(t, withdrawn.PayoutID)
	assert.Equal(t, int64(30), withdrawn.Transaction.BalanceAfter)
}

func TestOTPDebugRoundTrip(t *testing.T) {
	s := newServer(t)

	var sent dto.SendOTPResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/otp/send", "", map[string]string{"email": "someone@example.com"}, &sent))
	require.Len(t, sent.OTP, 6)

	body := map[string]string{"email": "someone@example.com", "otp": sent.OTP}
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/otp/verify", "", body, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/otp/verify", "", body, nil))
}

func TestStripeWebhookDisabledWithoutSecret(t *testing.T) {
	s := newServer(t)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/webhooks/stripe", "", map[string]string{"type": "payout.paid"}, nil))
}

func TestOTPRequiredForPickupCreation(t *testing.T) {
	s := newServer(t, func(cfg *config.Config) { cfg.OTPRequired = true })
	user := testutil.CreateUser(t, s.db, models.RoleUser, 0)
	token := s.token(t, user)

	var errResp dto.ErrorResponse
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/pickup", token, pickupBody("2"), &errResp))
	assert.Equal(t, "OTP verification required", errResp.Message)

	bad := map[string]string{handlers.OTPHeader: "123456"}
	assert.Equal(t, http.StatusBadRequest, s.doWithHeaders(t, http.MethodPost, "/api/pickup", token, bad, pickupBody("2"), nil))

	var sent dto.SendOTPResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/otp/send", "", map[string]string{"email": user.Email, "type": "withdrawal"}, &sent))
	wrongPurpose := map[string]string{handlers.OTPHeader: sent.OTP}
	assert.Equal(t, http.StatusBadRequest, s.doWithHeaders(t, http.MethodPost, "/api/pickup", token, wrongPurpose, pickupBody("2"), nil))

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/otp/send", "", map[string]string{"email": user.Email, "type": "pickup"}, &sent))
	good := map[string]string{handlers.OTPHeader: sent.OTP}
	assert.Equal(t, http.StatusCreated, s.doWithHeaders(t, http.MethodPost, "/api/pickup", token, good, pickupBody("2"), nil))

	// consumed by the first use
	assert.Equal(t, http.StatusBadRequest, s.doWithHeaders(t, http.MethodPost, "/api/pickup", token, good, pickupBody("2"), nil))
}

func TestVerifyThenCreateWithGatedOTP(t *testing.T) {
	s := newServer(t, func(cfg *config.Config) { cfg.OTPRequired = true })
	user := testutil.CreateUser(t, s.db, models.RoleUser, 0)
	token := s.token(t, user)

	var sent dto.SendOTPResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/otp/send", "", map[string]string{"email": user.Email, "type": "pickup"}, &sent))

	// the frontend verifies first, then sends the same code with the action
	verify := map[string]string{"email": user.Email, "otp": sent.OTP, "type": "pickup"}
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/otp/verify", "", verify, nil))
	wrong := map[string]string{"email": user.Email, "otp": "000000", "type": "pickup"}
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/otp/verify", "", wrong, nil))

	headers := map[string]string{handlers.OTPHeader: sent.OTP}
	assert.Equal(t, http.StatusCreated, s.doWithHeaders(t, http.MethodPost, "/api/pickup", token, headers, pickupBody("2"), nil))

	// the gated action consumed it
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/otp/verify", "", verify, nil))
}

func TestAdminUserUpdateAndAnalytics(t *testing.T) {
	s := newServer(t)
	admin := testutil.CreateUser(t, s.db, models.RoleAdmin, 0)
	user := testutil.CreateUser(t, s.db, models.RoleUser, 25)
	other := testutil.CreateUser(t, s.db, models.RoleUser, 0)

	var updated struct {
		Success bool             `json:"success"`
		User    dto.UserResponse `json:"user"`
	}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/admin/users/"+user.ID.String(), s.token(t, admin),
		map[string]string{"name": "Ravi Kumar", "role": "collector"}, &updated))
	assert.True(t, updated.Success)
	assert.Equal(t, "Ravi Kumar", updated.User.Name)
	assert.Equal(t, models.RoleCollector, updated.User.Role)

	var errResp dto.ErrorResponse
	assert.Equal(t, http.StatusConflict, s.do(t, http.MethodPut, "/api/admin/users/"+user.ID.String(), s.token(t, admin),
		map[string]string{"email": other.Email}, &errResp))
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/api/admin/users/"+user.ID.String(), s.token(t, admin),
		map[string]string{"role": "owner"}, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/api/admin/users/"+admin.ID.String(), s.token(t, admin),
		map[string]string{"account_status": "suspended"}, nil))
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPut, "/api/admin/users/"+other.ID.String(), s.token(t, other),
		map[string]string{"name": "Me Admin"}, nil))

	var analytics dto.AnalyticsResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/admin/analytics?period=7", s.token(t, admin), nil, &analytics))
	assert.True(t, analytics.Success)
	assert.Equal(t, 7, analytics.Period.Days)
	assert.Equal(t, int64(3), analytics.Period.NewUsers)
	require.NotNil(t, analytics.Wallet)
	assert.Equal(t, int64(25), analytics.Wallet.TotalCredits)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/admin/analytics?period=0", s.token(t, admin), nil, nil))
}

func TestCollectorPickupsAndRoute(t *testing.T) {
	s := newServer(t)
	user := testutil.CreateUser(t, s.db, models.RoleUser, 0)
	collector := testutil.CreateUser(t, s.db, models.RoleCollector, 0)
	admin := testutil.CreateUser(t, s.db, models.RoleAdmin, 0)

	body := pickupBody("3")
	body["scheduled_date"] = "2030-03-04T10:00"
	var created dto.PickupResponse
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/pickup", s.token(t, user), body, &created))
	id := created.Pickup.ID.String()
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/pickup/"+id+"/approve", s.token(t, admin), nil, nil))

	var list dto.PickupListResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/collector/pickups?status=collector-assigned", s.token(t, collector), nil, &list))
	require.Len(t, list.Pickups, 1)
	assert.Equal(t, id, list.Pickups[0].ID.String())
	require.NotNil(t, list.Pagination)
	assert.Equal(t, int64(1), list.Pagination.Total)

	var route dto.CollectorRouteResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/collector/route?date=2030-03-04", s.token(t, collector), nil, &route))
	assert.Equal(t, "2030-03-04", route.Date)
	require.Len(t, route.Route, 1)
	assert.Equal(t, 1, route.Route[0].Order)
	assert.Equal(t, id, route.Route[0].Pickup.ID.String())
	assert.Equal(t, 30, route.EstimatedMinutes)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/collector/route?date=tomorrow", s.token(t, collector), nil, nil))
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/collector/route", s.token(t, user), nil, nil))
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/collector/pickups", s.token(t, admin), nil, nil))
}
