package api

import (
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

// jobStreamHandler handles GET /ws/matching-jobs/:id/.
// Upgrades the connection to WebSocket and delegates to the feed hub, which
// blocks until the subscriber disconnects.
func (s *Server) jobStreamHandler(c *echo.Context) error {
	jobID := c.Param("id")
	if jobID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "job id is required")
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// Origin validation is left to the deployment's reverse proxy.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	s.hub.HandleConnection(c.Request().Context(), jobID, conn)
	return nil
}
