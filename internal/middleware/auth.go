package middleware

import (
	"errors"

	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/scrapsail/scrapsail-backend/internal/config"
)

// JWTProtected verifies the bearer access token and leaves it in
// c.Locals("user") for RequireRoles. Only HS256 tokens are accepted.
func JWTProtected(cfg *config.Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{JWTAlg: jwtware.HS256, Key: []byte(cfg.JWTSecret)},
		ContextKey: "user",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
				return deny(c, fiber.StatusUnauthorized, "Unauthorized: missing bearer token")
			}
			return deny(c, fiber.StatusUnauthorized, "Unauthorized: invalid or expired token")
		},
	})
}
