package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/studio-homework-api/internal/config"
	"github.com/noah-isme/studio-homework-api/internal/handler"
	"github.com/noah-isme/studio-homework-api/internal/middleware"
	"github.com/noah-isme/studio-homework-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	HomeworkHandler   *handler.HomeworkHandler
	FlowHandler       *handler.FlowHandler
	WebhookHandler    *handler.WebhookHandler
	EventStream       *handler.EventStreamHandler
	JWTMiddleware     fiber.Handler
	WebhookMiddleware fiber.Handler
	HealthProbes      map[string]handler.HealthProbe
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}

	teacher := api.Group("/teacher", jwtMiddleware, middleware.RequireRole(middleware.RoleTeacher, middleware.RoleAdmin))
	if deps.HomeworkHandler != nil {
		deps.HomeworkHandler.Register(teacher)
	}
	if deps.FlowHandler != nil {
		deps.FlowHandler.Register(teacher.Group("/flows"))
	}
	if deps.EventStream != nil {
		deps.EventStream.Register(teacher)
	}

	if deps.WebhookHandler != nil {
		webhookMiddleware := deps.WebhookMiddleware
		if webhookMiddleware == nil {
			webhookMiddleware = middleware.WebhookToken(cfg.WebhookSecret)
		}

		webhooks := api.Group("/webhooks",
			webhookMiddleware,
			middleware.RateLimit("webhooks", cfg.WebhookRateLimit, cfg.WebhookRateWindow),
		)
		deps.WebhookHandler.Register(webhooks)
	}
}
