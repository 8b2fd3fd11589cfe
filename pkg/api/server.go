// Package api exposes the matching-job update feed over HTTP: the persisted
// update log as REST and the live stream as WebSocket.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/matchable/matchstream/pkg/feed"
)

// Server is the HTTP server for the update feed.
type Server struct {
	echo       *echo.Echo
	store      feed.UpdateStore
	hub        *feed.Hub
	httpServer *http.Server
	fetchLimit int
}

// NewServer creates the API server and registers its routes.
// fetchLimit is the default page size for the persisted update listing.
func NewServer(store feed.UpdateStore, hub *feed.Hub, fetchLimit int) *Server {
	if fetchLimit <= 0 {
		fetchLimit = 50
	}

	s := &Server{
		echo:       echo.New(),
		store:      store,
		hub:        hub,
		fetchLimit: fetchLimit,
	}

	s.echo.Use(securityHeaders())

	s.echo.GET("/api/healthz", s.healthHandler)
	s.echo.GET("/api/matching-jobs/:id/updates/", s.updatesHandler)
	s.echo.GET("/ws/matching-jobs/:id/", s.jobStreamHandler)

	return s
}

// Start begins serving on addr. Blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server: WebSocket subscribers are closed
// first so the remaining HTTP requests can drain within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
