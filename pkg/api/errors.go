package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// mapStoreError maps update-store errors to HTTP error responses.
func mapStoreError(err error) *echo.HTTPError {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "request cancelled")
	}

	slog.Error("Unexpected update store error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
