package main

import (
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/riderfin/riderfin/app/repository"
	"github.com/riderfin/riderfin/internal/pkg/asaas"
	"github.com/riderfin/riderfin/internal/pkg/billing"
	"github.com/riderfin/riderfin/internal/pkg/cache"
	"github.com/riderfin/riderfin/internal/pkg/database"
	"github.com/riderfin/riderfin/internal/pkg/env"
	"github.com/riderfin/riderfin/internal/pkg/router"
	"github.com/riderfin/riderfin/internal/pkg/sweeper"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "8000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitGlobalFactory(database.GetDB())

	// One gateway and one billing service shared by the HTTP handlers and the
	// expiration sweep.
	gateway := asaas.NewClientFromEnv()
	svc := billing.NewServiceFromDB(database.GetDB(), gateway, billing.Config{
		WebhookSecret: env.GetEnv("ASAAS_WEBHOOK_SECRET", ""),
	})
	svc.SetPlanChangeHook(cache.InvalidateUserPlan)

	app := fiber.New(fiber.Config{
		AppName: "RiderFinance",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", monitor.New())

	// ROUTER
	router.InstallRouter(app, svc, gateway)

	// EXPIRATION SWEEP
	interval := time.Duration(env.GetEnvInt("SWEEP_INTERVAL_MINUTES", 60)) * time.Minute
	sweepManager := sweeper.NewManager(svc, interval)
	sweepManager.Start()
	app.Hooks().OnShutdown(func() error {
		sweepManager.Stop()
		return nil
	})

	return app
}
