package ws

import (
	"context"
	"log/slog"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/lk16/kibitz/internal/config"
	"github.com/lk16/kibitz/internal/services"
	"github.com/lk16/kibitz/internal/ws"
)

func handleWs(c *websocket.Conn) {
	services := c.Locals("services").(*services.Services)         //nolint: errcheck
	engineCfg := c.Locals("engine_config").(*config.EngineConfig) //nolint: errcheck

	h := ws.NewHandler(c, services, ws.NewAnalyzerFactory(engineCfg))
	err := h.Handle(context.Background())
	if err != nil {
		slog.Debug("ws handle error", "error", err)
	}
}

func upgradeOnly(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// SetupRoutes sets up the routes for the websocket.
func SetupRoutes(app *fiber.App) {
	app.Get("/ws", upgradeOnly, websocket.New(handleWs))
}
