package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/scrapsail/scrapsail-backend/internal/config"
)

// CORS admits the browser clients listed in CORS_ORIGINS. Credentials stay
// disabled whenever the origin list is the wildcard.
func CORS(cfg *config.Config) fiber.Handler {
	origins := strings.TrimSpace(cfg.CORSOrigins)
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     strings.Join([]string{fiber.MethodGet, fiber.MethodPost, fiber.MethodPut, fiber.MethodDelete, fiber.MethodOptions}, ","),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-OTP-Code",
		ExposeHeaders:    "X-Request-ID",
		AllowCredentials: origins != "*" && origins != "",
		MaxAge:           600,
	})
}
