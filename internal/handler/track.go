package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mgrafton/linktally/internal/domain"
	"github.com/mgrafton/linktally/internal/metrics"
	"github.com/mgrafton/linktally/internal/middleware"
	"github.com/mgrafton/linktally/internal/sse"
	"github.com/mgrafton/linktally/pkg/logger"
)

// Error messages returned to clients. The wording matches what the landing
// pages already expect.
const (
	msgInvalidLinkURL = "Invalid Link URL Provided"
	msgInternalError  = "Internal Server Error"
)

// ClickStore is the storage surface the handlers need.
type ClickStore interface {
	Append(ctx context.Context, event domain.ClickEvent) (domain.ClickEvent, error)
	CountAll(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (domain.Stats, error)
	Recent(ctx context.Context, limit int) ([]domain.ClickEvent, error)
}

// trackRequest is the single validated input both payload encodings
// normalize into.
type trackRequest struct {
	LinkURL  string
	WantJSON bool
}

// trackPayload is the JSON request body.
type trackPayload struct {
	LinkURL string `json:"linkUrl"`
}

// TrackHandler records outbound clicks and notifies the dashboard group.
type TrackHandler struct {
	store        ClickStore
	destinations domain.Destinations
	publisher    sse.Publisher
	metrics      *metrics.Metrics
	logger       logger.Logger
	skipBots     bool
}

// NewTrackHandler creates a TrackHandler with explicit dependencies; the
// broadcast publisher is injected rather than pulled from shared state so
// the handler is testable in isolation.
func NewTrackHandler(
	store ClickStore,
	destinations domain.Destinations,
	publisher sse.Publisher,
	m *metrics.Metrics,
	log logger.Logger,
	skipBots bool,
) *TrackHandler {
	return &TrackHandler{
		store:        store,
		destinations: destinations,
		publisher:    publisher,
		metrics:      m,
		logger:       log,
		skipBots:     skipBots,
	}
}

// HandleTrack validates the click, appends it to the event log, broadcasts
// a newClick event, and responds in the mode the client's encoding implies:
// form posts get a redirect to the destination, JSON posts get an ack and
// redirect themselves. Validation runs before any side effect; a broadcast
// failure never fails the response once the write committed.
func (h *TrackHandler) HandleTrack(c *gin.Context) {
	req, err := parseTrackRequest(c)
	if err != nil {
		h.rejectInvalid(c, req)
		return
	}

	if err := h.destinations.Validate(req.LinkURL); err != nil {
		h.rejectInvalid(c, req)
		return
	}

	// Known crawlers are redirected without being recorded.
	if h.skipBots && c.GetBool(middleware.IsBotKey) {
		h.respondSuccess(c, req, time.Now().UTC(), 0)
		return
	}

	stored, err := h.store.Append(c.Request.Context(), domain.ClickEvent{
		LinkURL:   req.LinkURL,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidLinkURL) {
			h.rejectInvalid(c, req)
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternalError})
		return
	}

	if h.metrics != nil {
		h.metrics.ClicksTracked.WithLabelValues(h.destinations.NameOf(stored.LinkURL)).Inc()
	}

	total := h.broadcastNewClick(c, stored)

	h.respondSuccess(c, req, stored.ClickedAt, total)
}

// broadcastNewClick computes the updated total and publishes the newClick
// event. Both steps are best-effort: the click is already durable, so
// failures here are logged and swallowed.
func (h *TrackHandler) broadcastNewClick(c *gin.Context, stored domain.ClickEvent) int64 {
	total, err := h.store.CountAll(c.Request.Context())
	if err != nil {
		h.logger.Warn("Failed to count clicks for broadcast, skipping publish",
			logger.Error(err),
			logger.Int64("click_id", stored.ID),
		)
		return 0
	}

	event := sse.NewClickEvent(stored.LinkURL, stored.ClickedAt, total)
	if err := h.publisher.Publish(c.Request.Context(), event); err != nil {
		h.logger.Warn("Failed to broadcast click",
			logger.Error(err),
			logger.Int64("click_id", stored.ID),
		)
	}

	return total
}

func (h *TrackHandler) rejectInvalid(c *gin.Context, req trackRequest) {
	if h.metrics != nil {
		h.metrics.ClicksRejected.Inc()
	}
	h.logger.Debug("Rejected track request",
		logger.String("link_url", req.LinkURL),
		logger.String("client_ip", c.ClientIP()),
	)
	c.JSON(http.StatusBadRequest, gin.H{"error": msgInvalidLinkURL})
}

// respondSuccess answers in the mode matching the request encoding: a JSON
// caller self-redirects after the ack, a form caller follows the 303.
func (h *TrackHandler) respondSuccess(c *gin.Context, req trackRequest, clickedAt time.Time, total int64) {
	if req.WantJSON {
		c.JSON(http.StatusOK, gin.H{
			"tracked":   true,
			"linkUrl":   req.LinkURL,
			"timestamp": clickedAt.UTC().Format(time.RFC3339),
			"total":     total,
		})
		return
	}

	c.Redirect(http.StatusSeeOther, req.LinkURL)
}

// parseTrackRequest normalizes the two accepted payload encodings into one
// validated input type.
func parseTrackRequest(c *gin.Context) (trackRequest, error) {
	contentType := c.ContentType()

	if strings.Contains(contentType, "json") {
		var payload trackPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			return trackRequest{WantJSON: true}, err
		}
		return trackRequest{LinkURL: payload.LinkURL, WantJSON: true}, nil
	}

	return trackRequest{LinkURL: c.PostForm("linkUrl")}, nil
}
