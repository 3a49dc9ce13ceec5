package server

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/NoahCxrest/wakatime-stats-proxy/internal/server/middleware"
	statshandler "github.com/NoahCxrest/wakatime-stats-proxy/internal/server/stats"
	systemhandler "github.com/NoahCxrest/wakatime-stats-proxy/internal/server/system"
	"github.com/NoahCxrest/wakatime-stats-proxy/internal/wakatime"
)

// SnapshotService is what the router needs from the stats service.
type SnapshotService interface {
	Snapshot(ctx context.Context) wakatime.Envelope
	Ready(ctx context.Context) error
}

// NewHandler builds the HTTP handler serving the snapshot and system routes.
func NewHandler(allowOrigins []string, logger *slog.Logger, svc SnapshotService) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(allowOrigins)))
	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics)
	r.Use(middleware.RequestLogger(logger))

	statshandler.New(svc, logger).RegisterRoutes(r)
	systemhandler.New(svc, logger).RegisterRoutes(r)

	return r
}

func corsConfig(allowOrigins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Accept", "Cache-Control", "Pragma", "Expires"},
		ExposeHeaders: []string{middleware.HeaderRequestID},
	}

	if len(allowOrigins) == 0 || slices.Contains(allowOrigins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowOrigins
	}

	return cfg
}
