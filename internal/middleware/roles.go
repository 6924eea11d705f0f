package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/scrapsail/scrapsail-backend/internal/dto"
	"github.com/scrapsail/scrapsail-backend/internal/models"
	"github.com/scrapsail/scrapsail-backend/internal/services"
	"gorm.io/gorm"
)

const actorKey = "actor"

// RequireRoles runs after JWTProtected. It loads the token's user, rejects
// missing or non-active accounts with 401 and roles outside roles with 403,
// and stores the caller for CurrentActor. With no roles any active account
// passes.
func RequireRoles(db *gorm.DB, roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := c.Locals("user").(*jwt.Token)
		if !ok || token == nil {
			return deny(c, fiber.StatusUnauthorized, "Unauthorized")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return deny(c, fiber.StatusUnauthorized, "Invalid claims")
		}
		sub, _ := claims["sub"].(string)
		userID, err := uuid.Parse(sub)
		if err != nil {
			return deny(c, fiber.StatusUnauthorized, "Invalid token subject")
		}

		// role comes from the database, not the token, so a demotion applies immediately
		var user models.User
		if err := db.Select("id", "email", "role", "account_status").First(&user, "id = ?", userID).Error; err != nil {
			return deny(c, fiber.StatusUnauthorized, "User not found")
		}
		if !user.IsActive() {
			return deny(c, fiber.StatusUnauthorized, "Account is not active")
		}
		if len(roles) > 0 && !hasRole(roles, user.Role) {
			return deny(c, fiber.StatusForbidden, "Access denied: insufficient permissions")
		}

		c.Locals(actorKey, services.Actor{ID: user.ID, Role: user.Role, Email: user.Email})
		return c.Next()
	}
}

// CurrentActor returns the caller stored by RequireRoles.
func CurrentActor(c *fiber.Ctx) (services.Actor, bool) {
	actor, ok := c.Locals(actorKey).(services.Actor)
	return actor, ok
}

func hasRole(roles []models.Role, role models.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func deny(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(dto.ErrorResponse{Success: false, Message: message})
}
