package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mgrafton/linktally/internal/domain"
	"github.com/mgrafton/linktally/pkg/logger"
)

// SSE header constants.
const (
	headerContentType              = "Content-Type"
	headerCacheControl             = "Cache-Control"
	headerConnection               = "Connection"
	headerXAccelBuffering          = "X-Accel-Buffering"
	headerAccessControlAllowOrigin = "Access-Control-Allow-Origin"

	sseContentType = "text/event-stream"
)

// SnapshotFunc produces the current stats snapshot pushed to each newly
// connected subscriber as a statsUpdate event.
type SnapshotFunc func(ctx *gin.Context) (domain.Stats, error)

// Handler creates the gin handler for the dashboard live stream. Connecting
// joins the dashboard group: the handler sets SSE headers, subscribes to the
// broker, pushes a connected handshake plus a statsUpdate snapshot, and then
// streams broadcast events until the client disconnects.
func Handler(broker Broker, snapshot SnapshotFunc, log logger.Logger, opts ...ClientOption) gin.HandlerFunc {
	return func(c *gin.Context) {
		setSSEHeaders(c.Writer)
		c.Writer.Flush()

		eventChan, cleanup := broker.Subscribe(c.Request.Context(), opts...)
		defer cleanup()

		if !checkSubscriptionValid(eventChan, c, log) {
			return
		}

		if err := writeEvent(c.Writer, connectedEvent()); err != nil {
			log.Error("Failed to write connection event", logger.Error(err))
			return
		}

		sendInitialSnapshot(c, snapshot, log)

		log.Debug("Dashboard stream connected",
			logger.String("remote_addr", c.ClientIP()),
		)

		streamEvents(c, eventChan, log)
	}
}

func connectedEvent() Event {
	return Event{
		Type: eventTypeConnected,
		Data: map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"message":   "dashboard stream established",
		},
	}
}

// sendInitialSnapshot pushes a statsUpdate so a reconnecting dashboard is
// consistent without a separate stats fetch. Failure is non-fatal: the
// client still receives live events and can resync over HTTP.
func sendInitialSnapshot(c *gin.Context, snapshot SnapshotFunc, log logger.Logger) {
	if snapshot == nil {
		return
	}

	stats, err := snapshot(c)
	if err != nil {
		log.Warn("Failed to read stats snapshot for new subscriber", logger.Error(err))
		return
	}

	if err := writeEvent(c.Writer, NewStatsUpdateEvent(stats)); err != nil {
		log.Debug("Failed to write stats snapshot", logger.Error(err))
	}
}

func setSSEHeaders(w gin.ResponseWriter) {
	w.Header().Set(headerContentType, sseContentType)
	w.Header().Set(headerCacheControl, "no-cache")
	w.Header().Set(headerConnection, "keep-alive")
	w.Header().Set(headerXAccelBuffering, "no")
	w.Header().Set(headerAccessControlAllowOrigin, "*")
}

// checkSubscriptionValid detects the closed-channel rejection signal from a
// full broker.
func checkSubscriptionValid(eventChan <-chan Event, c *gin.Context, log logger.Logger) bool {
	select {
	case _, ok := <-eventChan:
		if !ok {
			log.Warn("Dashboard subscription rejected (max clients reached)")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "too many connections"})
			return false
		}
	default:
		// Channel open, proceed.
	}
	return true
}

func streamEvents(c *gin.Context, eventChan <-chan Event, log logger.Logger) {
	ticker := time.NewTicker(DefaultHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				log.Debug("Dashboard event channel closed")
				return
			}
			if err := writeEvent(c.Writer, event); err != nil {
				log.Debug("Dashboard write failed (client likely disconnected)",
					logger.Error(err),
					logger.String("event_type", event.Type),
				)
				return
			}
		case <-ticker.C:
			if err := writeHeartbeat(c.Writer); err != nil {
				log.Debug("Dashboard heartbeat failed (client disconnected)")
				return
			}
		case <-c.Request.Context().Done():
			log.Debug("Dashboard client request context cancelled")
			return
		}
	}
}

// writeEventTo writes one SSE event frame to any writer.
func writeEventTo(w interface{ Write([]byte) (int, error) }, event Event) error {
	if event.Type != "" {
		if _, writeErr := fmt.Fprintf(w, "event: %s\n", event.Type); writeErr != nil {
			return fmt.Errorf("write event type: %w", writeErr)
		}
	}

	if event.ID != "" {
		if _, writeErr := fmt.Fprintf(w, "id: %s\n", event.ID); writeErr != nil {
			return fmt.Errorf("write event id: %w", writeErr)
		}
	}

	if event.Retry > 0 {
		if _, writeErr := fmt.Fprintf(w, "retry: %d\n", event.Retry); writeErr != nil {
			return fmt.Errorf("write retry: %w", writeErr)
		}
	}

	dataJSON, marshalErr := json.Marshal(event.Data)
	if marshalErr != nil {
		return fmt.Errorf("marshal event data: %w", marshalErr)
	}

	if _, writeErr := fmt.Fprintf(w, "data: %s\n\n", dataJSON); writeErr != nil {
		return fmt.Errorf("write event data: %w", writeErr)
	}

	return nil
}

func writeEvent(w gin.ResponseWriter, event Event) error {
	if err := writeEventTo(w, event); err != nil {
		return err
	}
	w.Flush()
	return nil
}

func writeHeartbeat(w gin.ResponseWriter) error {
	if _, writeErr := fmt.Fprintf(w, ": heartbeat %s\n\n", time.Now().UTC().Format(time.RFC3339)); writeErr != nil {
		return fmt.Errorf("write heartbeat: %w", writeErr)
	}
	w.Flush()
	return nil
}
