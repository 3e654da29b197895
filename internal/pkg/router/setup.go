package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/riderfin/riderfin/internal/pkg/billing"
)

// Router is implemented by every route group installer.
type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App, svc *billing.Service, gateway billing.Gateway) {
	setup(app, NewApiRouter(svc, gateway))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
