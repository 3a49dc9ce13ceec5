package system

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checker reports whether a dependency is ready to serve.
type Checker interface {
	Ready(ctx context.Context) error
}

// Handler serves liveness, readiness and metrics.
type Handler struct {
	checker Checker
	logger  *slog.Logger
}

// New constructs the system handler.
func New(checker Checker, logger *slog.Logger) *Handler {
	return &Handler{checker: checker, logger: logger}
}

// RegisterRoutes mounts /healthz, /readyz and /metrics.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/healthz", h.live)
	r.GET("/readyz", h.ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (h *Handler) live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (h *Handler) ready(c *gin.Context) {
	if err := h.checker.Ready(c.Request.Context()); err != nil {
		h.logger.Warn("readiness check failed", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
