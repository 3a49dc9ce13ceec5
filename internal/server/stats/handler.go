package stats

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NoahCxrest/wakatime-stats-proxy/internal/wakatime"
)

// Service is the snapshot source behind the route.
type Service interface {
	Snapshot(ctx context.Context) wakatime.Envelope
}

// Handler serves the WakaTime snapshot envelope.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

// New constructs the snapshot handler.
func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger.With(slog.String("component", "stats-handler")),
	}
}

// RegisterRoutes mounts GET /api/wakatime.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/api/wakatime", h.snapshot)
}

func (h *Handler) snapshot(c *gin.Context) {
	env := h.svc.Snapshot(c.Request.Context())

	status := http.StatusOK
	if env.Status == wakatime.StatusError {
		status = http.StatusInternalServerError
		h.logger.Debug("serving error envelope", slog.String("error", env.Error))
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(status, env)
}
