// Package dashclient is a Go client for the linktally dashboard stream. It
// keeps a local stats snapshot current by applying newClick and statsUpdate
// events from the live stream, and resyncs over the stats endpoint whenever
// the stream drops.
package dashclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mgrafton/linktally/internal/domain"
	"github.com/mgrafton/linktally/internal/sse"
	"github.com/mgrafton/linktally/pkg/logger"
)

// Default client settings.
const (
	DefaultRequestTimeout        = 10 * time.Second
	DefaultResponseHeaderTimeout = 30 * time.Second
	DefaultInitialBackoff        = time.Second
	DefaultMaxBackoff            = 30 * time.Second

	// maxLineSize bounds a single SSE line. Payloads are small JSON
	// objects, so 64KiB is generous.
	maxLineSize = 64 * 1024
)

// Snapshot is the client's local view of the counters.
type Snapshot struct {
	Stats domain.Stats
	// Online reports whether the live stream is currently established.
	// While offline the counts may lag until the next resync.
	Online    bool
	UpdatedAt time.Time
}

// UpdateFunc is called after every snapshot change.
type UpdateFunc func(Snapshot)

// Client consumes the dashboard stream of one linktally server.
type Client struct {
	baseURL      string
	destinations domain.Destinations
	api          *http.Client
	stream       *http.Client
	log          logger.Logger
	onUpdate     UpdateFunc

	initialBackoff time.Duration
	maxBackoff     time.Duration

	mu        sync.RWMutex
	stats     domain.Stats
	online    bool
	updatedAt time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithHTTPClient sets the client used for stats requests. The stream uses
// its own client without an overall timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.api = hc }
}

// WithUpdateFunc registers a callback invoked after every snapshot change.
// The callback runs on the stream goroutine and must not block.
func WithUpdateFunc(fn UpdateFunc) Option {
	return func(c *Client) { c.onUpdate = fn }
}

// WithBackoff sets the reconnect backoff bounds used by Run.
func WithBackoff(initial, maxWait time.Duration) Option {
	return func(c *Client) {
		if initial > 0 {
			c.initialBackoff = initial
		}
		if maxWait > 0 {
			c.maxBackoff = maxWait
		}
	}
}

// New creates a dashboard client for the server at baseURL. destinations
// maps incoming click URLs onto the local per-destination counters.
func New(baseURL string, destinations domain.Destinations, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		destinations: destinations,
		api:          &http.Client{Timeout: DefaultRequestTimeout},
		// The stream response stays open indefinitely, so only the
		// header exchange gets a deadline.
		stream: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
			},
		},
		log:            logger.NewNop(),
		initialBackoff: DefaultInitialBackoff,
		maxBackoff:     DefaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the current local view.
func (c *Client) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{Stats: c.stats, Online: c.online, UpdatedAt: c.updatedAt}
}

// Resync replaces the local snapshot with the server's aggregate counts.
func (c *Client) Resync(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/stats", nil)
	if err != nil {
		return fmt.Errorf("build stats request: %w", err)
	}

	resp, err := c.api.Do(req)
	if err != nil {
		return fmt.Errorf("fetch stats: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch stats: unexpected status %d", resp.StatusCode)
	}

	var stats domain.Stats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return fmt.Errorf("decode stats: %w", err)
	}

	c.update(func(s *Snapshot) { s.Stats = stats })
	return nil
}

// Run maintains the live stream until ctx is cancelled, reconnecting with
// exponential backoff. Each successful connection resets the backoff.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.initialBackoff

	for {
		err := c.Stream(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.log.Warn("Dashboard stream dropped, reconnecting",
			logger.Error(err),
			logger.Duration("backoff", backoff),
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}

		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

// Stream opens one live-stream connection and applies its events until the
// connection breaks or ctx is cancelled. The client counts as online only
// after the server's connection handshake arrives.
func (c *Client) Stream(ctx context.Context) error {
	defer c.update(func(s *Snapshot) { s.Online = false })

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/live", nil)
	if err != nil {
		return fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.stream.Do(req)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("open stream: unexpected status %d", resp.StatusCode)
	}

	return c.readEvents(ctx, bufio.NewScanner(resp.Body))
}

// readEvents parses the SSE frames off the wire and dispatches them.
func (c *Client) readEvents(ctx context.Context, scanner *bufio.Scanner) error {
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	var eventType string
	var data strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if eventType != "" || data.Len() > 0 {
				c.dispatch(ctx, eventType, data.String())
			}
			eventType = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// Heartbeat comment, keeps the connection warm.
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
		// id: and retry: fields are not used by this client.
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return fmt.Errorf("stream closed by server")
}

func (c *Client) dispatch(ctx context.Context, eventType, data string) {
	switch eventType {
	case "connected":
		c.update(func(s *Snapshot) { s.Online = true })
		// Load a fresh snapshot so the local counts start consistent.
		// The server also pushes a statsUpdate, whichever lands last wins.
		if err := c.Resync(ctx); err != nil {
			c.log.Warn("Initial stats resync failed", logger.Error(err))
		}
	case sse.EventTypeNewClick:
		c.applyNewClick(data)
	case sse.EventTypeStatsUpdate:
		c.applyStatsUpdate(data)
	default:
		c.log.Debug("Ignoring unknown stream event", logger.String("event_type", eventType))
	}
}

// applyNewClick increments the matching destination counter and takes the
// overall total from the message rather than re-deriving it locally.
func (c *Client) applyNewClick(data string) {
	var click sse.NewClickData
	if err := json.Unmarshal([]byte(data), &click); err != nil {
		c.log.Warn("Malformed newClick payload", logger.Error(err))
		return
	}

	c.update(func(s *Snapshot) {
		switch click.LinkURL {
		case c.destinations.Amazon:
			s.Stats.Amazon++
		case c.destinations.Walmart:
			s.Stats.Walmart++
		}
		if click.Total > 0 {
			s.Stats.Total = click.Total
		} else {
			s.Stats.Total++
		}
	})
}

func (c *Client) applyStatsUpdate(data string) {
	var stats domain.Stats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		c.log.Warn("Malformed statsUpdate payload", logger.Error(err))
		return
	}

	c.update(func(s *Snapshot) { s.Stats = stats })
}

// update applies fn to the snapshot under lock and fires the callback.
func (c *Client) update(fn func(*Snapshot)) {
	c.mu.Lock()
	snap := Snapshot{Stats: c.stats, Online: c.online}
	fn(&snap)
	snap.UpdatedAt = time.Now()
	c.stats = snap.Stats
	c.online = snap.Online
	c.updatedAt = snap.UpdatedAt
	c.mu.Unlock()

	if c.onUpdate != nil {
		c.onUpdate(snap)
	}
}
