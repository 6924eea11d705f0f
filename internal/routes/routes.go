package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/scrapsail/scrapsail-backend/internal/config"
	"github.com/scrapsail/scrapsail-backend/internal/handlers"
	"github.com/scrapsail/scrapsail-backend/internal/middleware"
	"github.com/scrapsail/scrapsail-backend/internal/models"
	"gorm.io/gorm"
)

type Handlers struct {
	Auth     *handlers.AuthHandler
	Health   *handlers.HealthHandler
	Pickup   *handlers.PickupHandler
	Wallet   *handlers.WalletHandler
	OTP      *handlers.OTPHandler
	Admin    *handlers.AdminHandler
	Settings *handlers.SettingsHandler
	Webhook  *handlers.WebhookHandler
}

func Setup(app *fiber.App, cfg *config.Config, db *gorm.DB, h Handlers) {
	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(newLimiter(60))

	api.Get("/health", h.Health.Check)

	// Webhooks authenticate by signature, not JWT
	api.Post("/webhooks/stripe", h.Webhook.HandleStripe)

	// Auth and OTP: stricter 10 req/min per IP
	auth := api.Group("/auth", newLimiter(10))
	auth.Post("/register", h.Auth.Register)
	auth.Post("/login", h.Auth.Login)
	auth.Post("/refresh", h.Auth.Refresh)

	otp := api.Group("/otp", newLimiter(10))
	otp.Post("/send", h.OTP.Send)
	otp.Post("/verify", h.OTP.Verify)

	jwt := middleware.JWTProtected(cfg)
	anyRole := middleware.RequireRoles(db)
	userOnly := middleware.RequireRoles(db, models.RoleUser)
	collectorOnly := middleware.RequireRoles(db, models.RoleCollector)
	adminOnly := middleware.RequireRoles(db, models.RoleAdmin)
	userOrAdmin := middleware.RequireRoles(db, models.RoleUser, models.RoleAdmin)

	// Pickup creation and withdrawals optionally demand a fresh OTP
	pickupOTP, withdrawOTP := pass, pass
	if cfg.OTPRequired {
		pickupOTP = h.OTP.Require("pickup")
		withdrawOTP = h.OTP.Require("withdrawal")
	}

	api.Post("/auth/logout", jwt, anyRole, h.Auth.Logout)
	api.Get("/auth/me", jwt, anyRole, h.Auth.Me)

	// Pickups: fixed paths before /:id
	pickup := api.Group("/pickup", jwt)
	pickup.Get("/admin/pending", adminOnly, h.Pickup.Pending)
	pickup.Get("/collector/assigned", collectorOnly, h.Pickup.Assigned)
	pickup.Post("/", userOnly, pickupOTP, h.Pickup.Create)
	pickup.Get("/", userOnly, h.Pickup.List)
	pickup.Get("/:id", anyRole, h.Pickup.Get)
	pickup.Put("/:id/approve", adminOnly, h.Pickup.Approve)
	pickup.Put("/:id/reject", adminOnly, h.Pickup.Reject)
	pickup.Put("/:id/assign", adminOnly, h.Pickup.Assign)
	pickup.Put("/:id/auto-assign", adminOnly, h.Pickup.AutoAssign)
	pickup.Put("/:id/cancel", userOrAdmin, h.Pickup.Cancel)
	pickup.Put("/:id/accept", collectorOnly, h.Pickup.Accept)
	pickup.Put("/:id/start", collectorOnly, h.Pickup.Start)
	pickup.Put("/:id/complete", collectorOnly, h.Pickup.Complete)

	collector := api.Group("/collector", jwt, collectorOnly)
	collector.Get("/dashboard", h.Pickup.CollectorDashboard)
	collector.Get("/pickups", h.Pickup.CollectorPickups)
	collector.Get("/route", h.Pickup.Route)

	// Wallet: ownership of :userId is checked in the handler
	wallet := api.Group("/wallet", jwt)
	wallet.Get("/admin/stats", adminOnly, h.Wallet.Stats)
	wallet.Get("/:userId", anyRole, h.Wallet.Get)
	wallet.Get("/:userId/transactions", anyRole, h.Wallet.Transactions)
	wallet.Get("/:userId/withdrawals", anyRole, h.Wallet.Withdrawals)
	wallet.Get("/:userId/withdrawal/:transactionId/status", anyRole, h.Wallet.WithdrawalStatus)
	wallet.Post("/:userId/redeem", userOnly, h.Wallet.Redeem)
	wallet.Post("/:userId/withdraw", userOnly, withdrawOTP, h.Wallet.Withdraw)
	wallet.Post("/:userId/add-credits", adminOnly, h.Wallet.AddCredits)

	admin := api.Group("/admin", jwt, adminOnly)
	admin.Get("/dashboard", h.Admin.Dashboard)
	admin.Get("/analytics", h.Admin.Analytics)
	admin.Get("/users", h.Admin.Users)
	admin.Put("/users/:id", h.Admin.UpdateUser)
	admin.Put("/users/:id/status", h.Admin.SetUserStatus)
	admin.Get("/collectors", h.Admin.Collectors)
	admin.Get("/whitelist", h.Admin.Whitelist)
	admin.Post("/whitelist", h.Admin.AddToWhitelist)
	admin.Delete("/whitelist", h.Admin.RemoveFromWhitelist)
	admin.Get("/settings", h.Settings.List)
	admin.Get("/settings/:key", h.Settings.Get)
	admin.Put("/settings/:key", h.Settings.Set)
	admin.Delete("/settings/:key", h.Settings.Reset)
}

func pass(c *fiber.Ctx) error { return c.Next() }

func newLimiter(max int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:               max,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	})
}
