package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/lk16/kibitz/internal/metrics"
)

// SetupRoutes exposes the Prometheus metrics.
func SetupRoutes(app *fiber.App) {
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
}
