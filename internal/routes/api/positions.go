package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/lk16/kibitz/internal/models"
	"github.com/lk16/kibitz/internal/repository"
)

const maxLookupPositions = 1000

func repositoryError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	if errors.Is(err, repository.ErrStorageDisabled) {
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// LookupPositions handles position lookup requests.
func LookupPositions(c *fiber.Ctx) error {
	var payload models.LookupPositionsPayload
	if err := c.BodyParser(&payload); err != nil || len(payload.Positions) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if len(payload.Positions) > maxLookupPositions {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Too many positions",
		})
	}

	repo := repository.NewAnalysisRepository(c)
	analyses, err := repo.LookupPositions(c.Context(), payload.Positions)
	if err != nil {
		return repositoryError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(analyses)
}

// GetDepthStats returns how many analyses are stored per depth.
func GetDepthStats(c *fiber.Ctx) error {
	repo := repository.NewAnalysisRepository(c)
	stats, err := repo.GetDepthStats(c.Context())
	if err != nil {
		return repositoryError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(stats)
}
