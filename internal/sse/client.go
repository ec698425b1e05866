package sse

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// client is one connected dashboard subscriber.
type client struct {
	id         string
	events     chan Event
	filter     EventFilter
	ctx        context.Context
	cancel     context.CancelFunc
	lastActive time.Time
	closed     atomic.Bool
	closeMu    sync.Mutex
}

func newClient(ctx context.Context, bufferSize int, filter EventFilter) *client {
	clientCtx, cancel := context.WithCancel(ctx)

	return &client{
		id:         uuid.NewString(),
		events:     make(chan Event, bufferSize),
		filter:     filter,
		ctx:        clientCtx,
		cancel:     cancel,
		lastActive: time.Now(),
	}
}

// close terminates the subscription. Safe to call more than once.
func (c *client) close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed.Load() {
		return
	}

	c.closed.Store(true)
	c.cancel()
	close(c.events)
}

func (c *client) isClosed() bool {
	return c.closed.Load()
}

// send attempts a non-blocking delivery. Returns false when the client's
// buffer is full (slow client), which the broker treats as a disconnect.
func (c *client) send(event Event) bool {
	if c.isClosed() {
		return false
	}

	if c.filter != nil && !c.filter(event) {
		return true // filtered out, client still healthy
	}

	select {
	case c.events <- event:
		c.lastActive = time.Now()
		return true
	default:
		return false
	}
}
