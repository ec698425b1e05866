package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	version string
	pingDB  func(ctx context.Context) error
}

// NewHealthHandler creates a HealthHandler reporting the given version.
// pingDB is optional; when set, a failing ping marks the service unhealthy.
func NewHealthHandler(version string, pingDB func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{version: version, pingDB: pingDB}
}

// HealthCheck returns service health status.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK

	if h.pingDB != nil {
		if err := h.pingDB(c.Request.Context()); err != nil {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
			_ = c.Error(err)
		}
	}

	c.JSON(code, gin.H{
		"status":    status,
		"version":   h.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
