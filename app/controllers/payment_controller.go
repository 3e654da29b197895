package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/riderfin/riderfin/app/models"
	"github.com/riderfin/riderfin/app/repository"
	"github.com/riderfin/riderfin/internal/pkg/billing"
	counter "github.com/riderfin/riderfin/internal/pkg/metrics/counter"
	"github.com/riderfin/riderfin/internal/pkg/usercontext"
)

var (
	paymentService *billing.Service
	paymentGateway billing.Gateway
	paymentUsers   repository.UserRepository

	validate = validator.New()
)

// InitializePaymentController injects the dependencies of the payment
// endpoints.
func InitializePaymentController(svc *billing.Service, gateway billing.Gateway, users repository.UserRepository) {
	paymentService = svc
	paymentGateway = gateway
	paymentUsers = users
}

// HandleGetPlans lists the plan catalog.
func HandleGetPlans(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"plans": billing.ListPlans()})
}

type createCustomerRequest struct {
	Name    string `json:"name" validate:"required,min=3,max=150"`
	CPFCNPJ string `json:"cpf_cnpj" validate:"required,min=11,max=18"`
}

// HandleCreateCustomer creates the provider customer for the authenticated
// user and stores the returned id.
func HandleCreateCustomer(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req createCustomerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_json"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "detail": err.Error()})
	}

	user, err := paymentUsers.GetByID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "user_lookup_failed"})
	}
	if user.AsaasCustomerID != "" {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"customer_id": user.AsaasCustomerID})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	customerID, err := paymentGateway.CreateCustomer(ctx, req.Name, user.Email, req.CPFCNPJ)
	if err != nil {
		log.Errorf("[Payments] customer creation failed for user %d: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "provider_error"})
	}
	if err := paymentUsers.SetAsaasCustomerID(userCtx.UserID, customerID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "customer_persist_failed"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"customer_id": customerID})
}

type createSubscriptionRequest struct {
	PlanType string `json:"plan_type" validate:"required,oneof=basic pro premium"`
}

// HandleCreateSubscription completes checkout: remote subscription first,
// then the local ACTIVE row.
func HandleCreateSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req createSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_json"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "detail": err.Error()})
	}

	user, err := paymentUsers.GetByID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "user_lookup_failed"})
	}
	if user.AsaasCustomerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no_customer", "message": "Create the billing customer first"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	sub, err := paymentService.CreateSubscription(ctx, userCtx.UserID, models.PlanType(req.PlanType), user.AsaasCustomerID)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrActiveSubscriptionExists):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "active_subscription_exists"})
		case errors.Is(err, billing.ErrUnknownPlan):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_plan"})
		default:
			log.Errorf("[Payments] subscription creation failed for user %d: %v", userCtx.UserID, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "subscription_creation_failed"})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(sub)
}

// HandleGetCurrentSubscription returns the user's active subscription.
func HandleGetCurrentSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	sub, err := paymentService.CurrentSubscription(c.Context(), userCtx.UserID)
	if err != nil {
		if errors.Is(err, billing.ErrSubscriptionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no_active_subscription"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "subscription_lookup_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(sub)
}

// HandleGetSubscriptionHistory returns all subscriptions of the user,
// newest first.
func HandleGetSubscriptionHistory(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	subs, err := paymentService.SubscriptionHistory(c.Context(), userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "subscription_lookup_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"subscriptions": subs})
}

// HandleCancelSubscription cancels the given subscription for its owner.
func HandleCancelSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	subscriptionID := c.Params("id")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sub, err := paymentService.CancelSubscription(ctx, subscriptionID, userCtx.UserID)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrSubscriptionNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "subscription_not_found"})
		case errors.Is(err, billing.ErrNotSubscriptionOwner):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not_subscription_owner"})
		default:
			log.Errorf("[Payments] cancellation failed for subscription %s: %v", subscriptionID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cancellation_failed"})
		}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "subscription cancelled", "subscription": sub})
}

// HandleGetSubscriptionStats reports subscription counts and webhook
// throughput counters for operators.
func HandleGetSubscriptionStats(c *fiber.Ctx) error {
	stats, err := paymentService.Stats(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stats_failed"})
	}

	resp := fiber.Map{"subscriptions": stats}
	if counters, err := counter.WebhookCounters(); err == nil {
		resp["webhooks"] = counters
	} else {
		log.Warnf("[Payments] webhook counters unavailable: %v", err)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// HandlePaymentHealth pings the payment provider.
func HandlePaymentHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := paymentGateway.Health(ctx); err != nil {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "unhealthy", "error": err.Error()})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
}
