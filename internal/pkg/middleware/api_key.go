package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/riderfin/riderfin/app/models"
	"github.com/riderfin/riderfin/app/repository"
	"github.com/riderfin/riderfin/internal/pkg/cache"
	"github.com/riderfin/riderfin/internal/pkg/database"
	"github.com/riderfin/riderfin/internal/pkg/usercontext"
)

// APIKeyAuthMiddleware authenticates requests carrying a user API key header.
func APIKeyAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}

		db := database.GetDB()
		if db == nil {
			log.Error("api key middleware: database unavailable")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Database unavailable"})
		}

		hash := models.HashAPIKey(apiKey)
		repos := repository.GetGlobalFactory().GetRepositories()
		user, err := repos.User.GetByAPIKeyHash(hash)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
			}
			log.Errorf("api key lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "API key verification failed"})
		}

		if user.Status != models.STATUS_ACTIVE {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "User inactive"})
		}

		userCtx := usercontext.UserContext{
			UserID:     user.ID,
			Username:   user.Name,
			IsLoggedIn: true,
			Plan:       resolveUserPlan(repos.Subscription, user.ID),
		}
		c.Locals("USER_CONTEXT", userCtx)

		return c.Next()
	}
}

// resolveUserPlan returns the user's active plan tier, cached briefly so
// every API call does not hit the subscriptions table. "none" marks users
// without an active subscription.
func resolveUserPlan(subs repository.SubscriptionRepository, userID uint) string {
	if plan, err := cache.GetUserPlan(userID); err == nil {
		return plan
	} else if !errors.Is(err, redis.Nil) {
		log.Warnf("plan cache read failed for user %d: %v", userID, err)
	}

	plan := "none"
	sub, err := subs.GetActiveByUserID(userID)
	if err == nil {
		plan = string(sub.PlanType)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warnf("active subscription lookup failed for user %d: %v", userID, err)
		return plan
	}

	if err := cache.SetUserPlan(userID, plan); err != nil {
		log.Warnf("plan cache write failed for user %d: %v", userID, err)
	}
	return plan
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
