package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"
)

// maxFetchLimit caps the persisted update page size regardless of the query.
const maxFetchLimit = 500

// UpdateResponse is one persisted update row in the REST listing.
type UpdateResponse struct {
	ID        string          `json:"id"`
	CreatedAt string          `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// updatesHandler handles GET /api/matching-jobs/:id/updates/.
// Returns the job's persisted updates, newest first.
func (s *Server) updatesHandler(c *echo.Context) error {
	jobID := c.Param("id")
	if jobID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "job id is required")
	}

	limit := s.fetchLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(parsed, maxFetchLimit)
	}

	records, err := s.store.ListByJob(c.Request().Context(), jobID, limit)
	if err != nil {
		return mapStoreError(err)
	}

	response := make([]UpdateResponse, 0, len(records))
	for _, record := range records {
		response = append(response, UpdateResponse{
			ID:        record.ID,
			CreatedAt: record.CreatedAt.UTC().Format(time.RFC3339Nano),
			Payload:   json.RawMessage(record.Payload),
		})
	}
	return c.JSON(http.StatusOK, response)
}
