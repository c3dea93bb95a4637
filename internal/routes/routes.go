package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/lk16/kibitz/internal/routes/api"
	"github.com/lk16/kibitz/internal/routes/metrics"
	"github.com/lk16/kibitz/internal/routes/version"
	"github.com/lk16/kibitz/internal/routes/ws"
)

func SetupRoutes(app *fiber.App) {
	// Serve API routes
	api.SetupRoutes(app)

	// Serve engine sessions
	ws.SetupRoutes(app)

	// Serve version info
	version.SetupRoutes(app)

	// Serve metrics
	metrics.SetupRoutes(app)
}
