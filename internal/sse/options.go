package sse

import "time"

// Default broker configuration.
const (
	DefaultEventBufferSize   = 1000
	DefaultClientBufferSize  = 100
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultMaxClients        = 1000
)

// Config holds broker configuration, loadable from the service config.
type Config struct {
	// EventBufferSize is the size of the main publish channel.
	EventBufferSize int `yaml:"event_buffer_size"`
	// ClientBufferSize is the default buffer size per subscriber.
	ClientBufferSize int `yaml:"client_buffer_size"`
	// HeartbeatInterval is how often to send keep-alive comments.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	// ShutdownTimeout is the maximum wait for graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// MaxClients is the maximum number of concurrent subscribers (0 = unlimited).
	MaxClients int `yaml:"max_clients"`
}

// SetDefaults fills zero-valued fields with defaults.
func (c *Config) SetDefaults() {
	if c.EventBufferSize == 0 {
		c.EventBufferSize = DefaultEventBufferSize
	}
	if c.ClientBufferSize == 0 {
		c.ClientBufferSize = DefaultClientBufferSize
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.MaxClients == 0 {
		c.MaxClients = DefaultMaxClients
	}
}

// BrokerOption configures a broker.
type BrokerOption func(*broker)

// WithConfig applies a full Config to the broker.
func WithConfig(cfg Config) BrokerOption {
	return func(b *broker) {
		if cfg.EventBufferSize > 0 {
			b.eventBufferSize = cfg.EventBufferSize
		}
		if cfg.ClientBufferSize > 0 {
			b.clientBufferSize = cfg.ClientBufferSize
		}
		if cfg.HeartbeatInterval > 0 {
			b.heartbeatInterval = cfg.HeartbeatInterval
		}
		if cfg.ShutdownTimeout > 0 {
			b.shutdownTimeout = cfg.ShutdownTimeout
		}
		b.maxClients = cfg.MaxClients
	}
}

// WithEventBufferSize sets the publish channel size.
func WithEventBufferSize(size int) BrokerOption {
	return func(b *broker) {
		if size > 0 {
			b.eventBufferSize = size
		}
	}
}

// WithMaxClients sets the maximum number of concurrent subscribers.
func WithMaxClients(maxClients int) BrokerOption {
	return func(b *broker) {
		b.maxClients = maxClients
	}
}

// ClientOption configures a subscription.
type ClientOption func(*ClientOptions)

// WithFilter sets an event filter for the subscriber.
func WithFilter(filter EventFilter) ClientOption {
	return func(opts *ClientOptions) {
		opts.Filter = filter
	}
}

// WithBufferSize sets the subscriber's event buffer size.
func WithBufferSize(size int) ClientOption {
	return func(opts *ClientOptions) {
		if size > 0 {
			opts.BufferSize = size
		}
	}
}
