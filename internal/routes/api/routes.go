package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/lk16/kibitz/internal/middleware"
)

// SetupRoutes sets up the API routes.
func SetupRoutes(app *fiber.App) {
	apiGroup := app.Group("/api", middleware.Token())

	// Position routes
	apiGroup.Post("/positions/lookup", LookupPositions)
	apiGroup.Get("/positions/stats", GetDepthStats)
}
