package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/riderfin/riderfin/app/controllers"
	"github.com/riderfin/riderfin/app/repository"
	"github.com/riderfin/riderfin/internal/pkg/billing"
	"github.com/riderfin/riderfin/internal/pkg/middleware"
)

// ApiRouter installs the JSON API routes around the shared billing service.
type ApiRouter struct {
	svc     *billing.Service
	gateway billing.Gateway
}

func NewApiRouter(svc *billing.Service, gateway billing.Gateway) *ApiRouter {
	return &ApiRouter{svc: svc, gateway: gateway}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	controllers.InitializeWebhookController(h.svc)
	controllers.InitializePaymentController(h.svc, h.gateway, repository.GetGlobalFactory().GetUserRepository())

	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// The provider owns webhook retry cadence; no rate limiter here.
	webhooks := v1.Group("/webhooks")
	webhooks.Post("/asaas/payment", controllers.HandleAsaasPaymentWebhook)
	webhooks.Post("/asaas/subscription", controllers.HandleAsaasSubscriptionWebhook)

	payments := v1.Group("/payments", limiter.New())
	payments.Get("/plans", controllers.HandleGetPlans)
	payments.Get("/health", controllers.HandlePaymentHealth)

	authed := payments.Group("", middleware.APIKeyAuthMiddleware())
	authed.Post("/customer", controllers.HandleCreateCustomer)
	authed.Post("/subscription", controllers.HandleCreateSubscription)
	authed.Get("/subscription/current", controllers.HandleGetCurrentSubscription)
	authed.Get("/subscription/history", controllers.HandleGetSubscriptionHistory)
	authed.Post("/subscription/:id/cancel", controllers.HandleCancelSubscription)
	authed.Get("/stats", controllers.HandleGetSubscriptionStats)
}
