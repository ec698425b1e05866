// Package httpserver provides a gin-based HTTP server with the standard
// linktally middleware (recovery, request IDs, request logging, CORS) and
// graceful shutdown handling.
package httpserver

import "time"

// Default server timeouts.
const (
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	defaultCORSMaxAge      = 12 * time.Hour
)

// Config holds HTTP server configuration.
type Config struct {
	ServiceName     string
	ServiceVersion  string
	Port            int
	Debug           bool
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORS            CORSConfig
}

// NewConfig creates a server config with defaults applied.
func NewConfig(serviceName string, port int) *Config {
	cfg := &Config{
		ServiceName: serviceName,
		Port:        port,
	}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills zero-valued fields with defaults.
func (c *Config) SetDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	c.CORS.SetDefaults()
}

// CORSConfig holds Cross-Origin Resource Sharing configuration.
type CORSConfig struct {
	Enabled          bool          `yaml:"enabled"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	AllowedMethods   []string      `yaml:"allowed_methods"`
	AllowedHeaders   []string      `yaml:"allowed_headers"`
	AllowCredentials bool          `yaml:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age"`
}

// SetDefaults fills zero-valued CORS fields with permissive defaults.
func (c *CORSConfig) SetDefaults() {
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if len(c.AllowedMethods) == 0 {
		c.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(c.AllowedHeaders) == 0 {
		c.AllowedHeaders = []string{"Origin", "Content-Type", "Accept"}
	}
	if c.MaxAge == 0 {
		c.MaxAge = defaultCORSMaxAge
	}
}
