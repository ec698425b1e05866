package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mgrafton/linktally/pkg/logger"
)

// StatsHandler serves aggregate click counts and the recent-clicks feed.
type StatsHandler struct {
	store       ClickStore
	logger      logger.Logger
	recentLimit int
}

// NewStatsHandler creates a StatsHandler. recentLimit caps the page size of
// the recent-clicks feed.
func NewStatsHandler(store ClickStore, log logger.Logger, recentLimit int) *StatsHandler {
	return &StatsHandler{
		store:       store,
		logger:      log,
		recentLimit: recentLimit,
	}
}

// HandleStats returns per-destination counts and the overall total. The
// three values come from independent queries and sum consistently whenever
// no writes are in flight.
func (h *StatsHandler) HandleStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternalError})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// HandleRecent returns the most recent clicks, newest first. The limit
// query parameter is clamped to the configured page size.
func (h *StatsHandler) HandleRecent(c *gin.Context) {
	limit := h.recentLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed < limit {
			limit = parsed
		}
	}

	clicks, err := h.store.Recent(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternalError})
		return
	}

	c.JSON(http.StatusOK, gin.H{"clicks": clicks})
}
