// Package sse implements the dashboard broadcast channel as Server-Sent
// Events: an in-process broker fans each published event out to every
// connected dashboard subscriber. Delivery is best-effort; a disconnected
// subscriber misses events and resyncs through the stats endpoint.
package sse

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mgrafton/linktally/internal/domain"
)

// Event is one Server-Sent Event.
// Wire format: event: <Type>\ndata: <JSON payload>\n\n
type Event struct {
	// Type is the event type (newClick, statsUpdate).
	Type string `json:"type"`
	// Data is the JSON payload.
	Data any `json:"data"`
	// ID is an optional event ID for client-side tracking.
	ID string `json:"id,omitempty"`
	// Retry tells the client how long to wait before reconnecting (ms).
	Retry int `json:"retry,omitempty"`
}

// Event types delivered to dashboard subscribers.
const (
	// EventTypeNewClick is broadcast once per successfully tracked click.
	EventTypeNewClick = "newClick"
	// EventTypeStatsUpdate carries a full stats snapshot for resync.
	EventTypeStatsUpdate = "statsUpdate"
)

// Internal event types.
const (
	eventTypeConnected = "connected"
)

// NewClickData is the payload for newClick events. Total is the updated
// overall click count so subscribers never re-derive it locally.
type NewClickData struct {
	EventID   string `json:"eventId"`
	LinkURL   string `json:"linkUrl"`
	Timestamp string `json:"timestamp"`
	Total     int64  `json:"total"`
}

// NewClickEvent creates a newClick event for a stored click.
func NewClickEvent(linkURL string, clickedAt time.Time, total int64) Event {
	id := uuid.NewString()
	return Event{
		Type: EventTypeNewClick,
		ID:   id,
		Data: NewClickData{
			EventID:   id,
			LinkURL:   linkURL,
			Timestamp: clickedAt.UTC().Format(time.RFC3339),
			Total:     total,
		},
	}
}

// NewStatsUpdateEvent creates a statsUpdate event carrying a full snapshot.
func NewStatsUpdateEvent(stats domain.Stats) Event {
	return Event{
		Type: EventTypeStatsUpdate,
		Data: stats,
	}
}

// Publisher sends events to the broker.
type Publisher interface {
	// Publish fans an event out to all connected subscribers. Returns an
	// error if the broker buffer is full or the context is done.
	Publish(ctx context.Context, event Event) error
}

// Subscriber receives events from the broker.
type Subscriber interface {
	// Subscribe returns a channel that receives events and a cleanup func.
	// The channel is closed on client disconnect or broker shutdown.
	Subscribe(ctx context.Context, opts ...ClientOption) (<-chan Event, func())
}

// Broker manages dashboard subscriptions and event distribution.
type Broker interface {
	Publisher
	Subscriber
	// Start begins processing events (non-blocking).
	Start(ctx context.Context) error
	// Stop gracefully shuts down the broker.
	Stop() error
	// ClientCount returns the number of connected subscribers.
	ClientCount() int
}

// EventFilter reports whether an event should be sent to a client.
type EventFilter func(event Event) bool

// ClientOptions configures a single subscriber connection.
type ClientOptions struct {
	// Filter is an optional per-client event filter.
	Filter EventFilter
	// BufferSize is the per-client event buffer size.
	BufferSize int
}
