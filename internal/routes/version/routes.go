package version

import (
	"runtime"
	"runtime/debug"

	"github.com/gofiber/fiber/v2"
	"github.com/lk16/kibitz/internal/models"
)

var Version = readVersion()

// readVersion reads the commit from the build info that go build embeds.
func readVersion() models.VersionResponse {
	version := models.VersionResponse{
		Commit:    "unknown",
		GoVersion: runtime.Version(),
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}

	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			version.Commit = setting.Value
		}
	}

	return version
}

func SetupRoutes(app *fiber.App) {
	versionGroup := app.Group("/version")
	versionGroup.Get("/", versionHandler)
}

func versionHandler(c *fiber.Ctx) error {
	return c.JSON(Version)
}
