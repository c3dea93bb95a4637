package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/lk16/kibitz/internal/config"
)

// Token middleware that checks the x-token header against the configured token.
func Token() fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup: "header:x-token",
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			cfg := c.Locals("config").(*config.ServerConfig) //nolint: errcheck

			if subtle.ConstantTimeCompare([]byte(key), []byte(cfg.Token)) == 1 {
				return true, nil
			}

			return false, keyauth.ErrMissingOrMalformedAPIKey
		},
		ErrorHandler: func(c *fiber.Ctx, _ error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		},
	})
}
