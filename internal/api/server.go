// Package api wires the HTTP surface: the track endpoint, the stats and
// recent-clicks reads, the dashboard live stream, and the operational
// endpoints (health, metrics).
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mgrafton/linktally/internal/config"
	"github.com/mgrafton/linktally/pkg/httpserver"
	"github.com/mgrafton/linktally/pkg/logger"
)

// NewServer creates the HTTP server with all routes mounted. done stops
// the background goroutines of the route middleware on shutdown.
func NewServer(h Handlers, cfg *config.Config, log logger.Logger, done <-chan struct{}) *httpserver.Server {
	serverCfg := &httpserver.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Port:           cfg.Service.Port,
		Debug:          cfg.Service.Debug,
		// The live stream holds its response open indefinitely, so the
		// server must not enforce a write deadline. Negative disables it.
		WriteTimeout: -1,
	}

	return httpserver.NewServer(serverCfg, log, func(router *gin.Engine) {
		SetupRoutes(router, h, cfg, done)
	})
}
