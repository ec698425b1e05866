package sse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mgrafton/linktally/pkg/logger"
)

// broker implements the Broker interface.
type broker struct {
	logger  logger.Logger
	clients map[string]*client
	mu      sync.RWMutex

	publish chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	eventBufferSize   int
	clientBufferSize  int
	heartbeatInterval time.Duration
	shutdownTimeout   time.Duration
	maxClients        int
}

// NewBroker creates the dashboard broadcast broker.
func NewBroker(log logger.Logger, opts ...BrokerOption) Broker {
	b := &broker{
		logger:            log,
		clients:           make(map[string]*client),
		eventBufferSize:   DefaultEventBufferSize,
		clientBufferSize:  DefaultClientBufferSize,
		heartbeatInterval: DefaultHeartbeatInterval,
		shutdownTimeout:   DefaultShutdownTimeout,
		maxClients:        DefaultMaxClients,
	}

	for _, opt := range opts {
		opt(b)
	}

	b.publish = make(chan Event, b.eventBufferSize)

	return b
}

// Start begins the fan-out loop.
func (b *broker) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	b.wg.Add(1)
	go b.broadcastLoop()

	b.logger.Info("Broadcast broker started",
		logger.Int("event_buffer_size", b.eventBufferSize),
		logger.Int("client_buffer_size", b.clientBufferSize),
		logger.Duration("heartbeat_interval", b.heartbeatInterval),
		logger.Int("max_clients", b.maxClients),
	)

	return nil
}

// Stop gracefully shuts down the broker and disconnects all subscribers.
func (b *broker) Stop() error {
	if b.cancel != nil {
		b.cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("Broadcast broker stopped gracefully")
	case <-time.After(b.shutdownTimeout):
		b.logger.Warn("Broadcast broker shutdown timeout exceeded")
	}

	return nil
}

// Publish enqueues an event for delivery to all connected subscribers.
// Non-blocking: a full publish buffer is reported as an error rather than
// stalling the caller.
func (b *broker) Publish(ctx context.Context, event Event) error {
	select {
	case b.publish <- event:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish cancelled: %w", ctx.Err())
	default:
		return fmt.Errorf("publish buffer full (dropped event: %s)", event.Type)
	}
}

// Subscribe joins the dashboard group. The returned channel receives every
// event published while the subscription is live; the cleanup func leaves
// the group.
func (b *broker) Subscribe(ctx context.Context, opts ...ClientOption) (<-chan Event, func()) {
	clientOpts := ClientOptions{
		BufferSize: b.clientBufferSize,
	}

	for _, opt := range opts {
		opt(&clientOpts)
	}

	b.mu.RLock()
	currentClients := len(b.clients)
	b.mu.RUnlock()

	if b.maxClients > 0 && currentClients >= b.maxClients {
		b.logger.Warn("Max subscribers reached, rejecting new connection",
			logger.Int("max_clients", b.maxClients),
			logger.Int("current_clients", currentClients),
		)
		// Closed channel signals rejection to the caller.
		closed := make(chan Event)
		close(closed)
		return closed, func() {}
	}

	c := newClient(ctx, clientOpts.BufferSize, clientOpts.Filter)

	b.mu.Lock()
	b.clients[c.id] = c
	b.mu.Unlock()

	b.logger.Debug("Dashboard subscriber joined",
		logger.String("client_id", c.id),
		logger.Int("total_clients", b.ClientCount()),
	)

	b.wg.Add(1)
	go b.cleanupClient(c)

	return c.events, func() {
		b.removeClient(c.id)
	}
}

// ClientCount returns the number of connected subscribers.
func (b *broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *broker) broadcastLoop() {
	defer b.wg.Done()

	for {
		select {
		case event := <-b.publish:
			b.broadcast(event)
		case <-b.ctx.Done():
			b.disconnectAllClients()
			return
		}
	}
}

// broadcast delivers one event to every subscriber. Slow clients (full
// buffers) are dropped rather than allowed to stall the rest of the group.
func (b *broker) broadcast(event Event) {
	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	sent := 0
	dropped := 0
	slowClients := make([]string, 0)

	for _, c := range clients {
		if c.send(event) {
			sent++
		} else {
			dropped++
			slowClients = append(slowClients, c.id)
		}
	}

	for _, clientID := range slowClients {
		b.logger.Warn("Subscriber buffer full, closing slow connection",
			logger.String("client_id", clientID),
			logger.String("event_type", event.Type),
		)
		b.removeClient(clientID)
	}

	if sent > 0 || dropped > 0 {
		b.logger.Debug("Event broadcast",
			logger.String("event_type", event.Type),
			logger.Int("sent", sent),
			logger.Int("dropped", dropped),
		)
	}
}

func (b *broker) cleanupClient(c *client) {
	defer b.wg.Done()

	<-c.ctx.Done()

	b.removeClient(c.id)
}

func (b *broker) removeClient(clientID string) {
	b.mu.Lock()
	c, exists := b.clients[clientID]
	if exists {
		delete(b.clients, clientID)
	}
	b.mu.Unlock()

	if exists && c != nil {
		c.close()
		b.logger.Debug("Dashboard subscriber left",
			logger.String("client_id", clientID),
			logger.Int("total_clients", b.ClientCount()),
		)
	}
}

func (b *broker) disconnectAllClients() {
	b.mu.Lock()
	clients := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.clients = make(map[string]*client)
	b.mu.Unlock()

	for _, c := range clients {
		c.close()
	}

	b.logger.Info("All dashboard subscribers disconnected",
		logger.Int("count", len(clients)),
	)
}
