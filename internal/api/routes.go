package api

import (
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mgrafton/linktally/internal/config"
	"github.com/mgrafton/linktally/internal/handler"
	"github.com/mgrafton/linktally/internal/middleware"
	"github.com/mgrafton/linktally/internal/sse"
	"github.com/mgrafton/linktally/pkg/logger"
)

// Handlers bundles everything SetupRoutes mounts.
type Handlers struct {
	Track   *handler.TrackHandler
	Stats   *handler.StatsHandler
	Health  *handler.HealthHandler
	Live    gin.HandlerFunc
	Metrics gin.HandlerFunc
}

// SetupRoutes configures all API routes. done stops the rate limiter's
// cleanup goroutine on shutdown.
func SetupRoutes(router *gin.Engine, h Handlers, cfg *config.Config, done <-chan struct{}) {
	router.GET("/health", h.Health.HealthCheck)
	if h.Metrics != nil {
		router.GET("/metrics", h.Metrics)
	}

	// Track endpoint with bot filter and rate limiting. Both are
	// config-gated so local development can run without them.
	track := router.Group("")
	if cfg.Tracking.BotFilter {
		track.Use(middleware.BotFilter())
	}
	if cfg.RateLimit.Enabled {
		window := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
		track.Use(middleware.RateLimiter(cfg.RateLimit.MaxClicksPerMinute, window, done))
	}
	track.POST("/api/track-click", h.Track.HandleTrack)

	router.GET("/api/stats", h.Stats.HandleStats)
	router.GET("/api/clicks/recent", h.Stats.HandleRecent)
	router.GET("/api/live", h.Live)

	// Landing and dashboard pages plus their assets.
	if cfg.Service.StaticDir != "" {
		router.StaticFile("/", filepath.Join(cfg.Service.StaticDir, "index.html"))
		router.StaticFile("/dashboard", filepath.Join(cfg.Service.StaticDir, "dashboard.html"))
		router.Static("/static", cfg.Service.StaticDir)
	}
}

// LiveHandler builds the dashboard stream endpoint. New subscribers get a
// stats snapshot right after the connection handshake.
func LiveHandler(broker sse.Broker, snapshot sse.SnapshotFunc, log logger.Logger, cfg *config.Config) gin.HandlerFunc {
	return sse.Handler(broker, snapshot, log,
		sse.WithBufferSize(cfg.Broadcast.ClientBufferSize),
	)
}
