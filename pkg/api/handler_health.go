package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/matchable/matchstream/pkg/version"
)

// healthHandler handles GET /api/healthz.
// Returns a minimal response suitable for unauthenticated probes.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "healthy",
		"version":   version.Full(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
