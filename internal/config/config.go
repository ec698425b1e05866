// Package config defines the linktally service configuration.
package config

import (
	"fmt"

	"github.com/mgrafton/linktally/internal/domain"
	"github.com/mgrafton/linktally/internal/sse"
	pkgconfig "github.com/mgrafton/linktally/pkg/config"
)

// Default configuration values.
const (
	defaultServiceName  = "linktally"
	defaultServicePort  = 8080
	defaultVersion      = "0.1.0"
	defaultLoggingLevel = "info"
	defaultDBHost       = "localhost"
	defaultDBPort       = 5432
	defaultDBName       = "linktally"
	defaultDBUser       = "postgres"
	defaultDBSSLMode    = "disable"
	defaultStaticDir    = "public"
	defaultRecentLimit  = 20

	defaultAmazonURL  = "https://www.amazon.com"
	defaultWalmartURL = "https://www.walmart.com"

	defaultMaxClicksPerMinute = 60
	defaultWindowSeconds      = 60
)

// Config holds the application configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Broadcast sse.Config      `yaml:"broadcast"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	Version   string `yaml:"version"`
	Port      int    `env:"LINKTALLY_PORT" yaml:"port"`
	Debug     bool   `env:"APP_DEBUG"      yaml:"debug"`
	StaticDir string `yaml:"static_dir"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host     string `env:"LINKTALLY_DB_HOST"     yaml:"host"`
	Port     int    `env:"LINKTALLY_DB_PORT"     yaml:"port"`
	User     string `env:"LINKTALLY_DB_USER"     yaml:"user"`
	Password string `env:"LINKTALLY_DB_PASSWORD" yaml:"password"`
	Database string `env:"LINKTALLY_DB_NAME"     yaml:"database"`
	SSLMode  string `env:"LINKTALLY_DB_SSLMODE"  yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// URL returns the postgres:// form used by the migration runner.
func (d *DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// TrackingConfig holds the destination allow-list and tracking behavior.
type TrackingConfig struct {
	AmazonURL   string `env:"LINKTALLY_AMAZON_URL"  yaml:"amazon_url"`
	WalmartURL  string `env:"LINKTALLY_WALMART_URL" yaml:"walmart_url"`
	BotFilter   bool   `yaml:"bot_filter"`
	RecentLimit int    `yaml:"recent_limit"`
}

// Destinations returns the configured allow-list.
func (t *TrackingConfig) Destinations() domain.Destinations {
	return domain.Destinations{
		Amazon:  t.AmazonURL,
		Walmart: t.WalmartURL,
	}
}

// RateLimitConfig holds rate limiting configuration for the track endpoint.
type RateLimitConfig struct {
	Enabled            bool `yaml:"enabled"`
	MaxClicksPerMinute int  `yaml:"max_clicks_per_minute"`
	WindowSeconds      int  `yaml:"window_seconds"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `env:"LOG_LEVEL" yaml:"level"`
}

// Load loads configuration from the specified path.
func Load(path string) (*Config, error) {
	return pkgconfig.LoadWithDefaults[Config](path, SetDefaults)
}

// SetDefaults applies default values to the config.
func SetDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setDatabaseDefaults(&cfg.Database)
	setTrackingDefaults(&cfg.Tracking)
	setRateLimitDefaults(&cfg.RateLimit)
	cfg.Broadcast.SetDefaults()
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLoggingLevel
	}
}

func setServiceDefaults(svc *ServiceConfig) {
	if svc.Name == "" {
		svc.Name = defaultServiceName
	}
	if svc.Version == "" {
		svc.Version = defaultVersion
	}
	if svc.Port == 0 {
		svc.Port = defaultServicePort
	}
	if svc.StaticDir == "" {
		svc.StaticDir = defaultStaticDir
	}
}

func setDatabaseDefaults(db *DatabaseConfig) {
	if db.Host == "" {
		db.Host = defaultDBHost
	}
	if db.Port == 0 {
		db.Port = defaultDBPort
	}
	if db.User == "" {
		db.User = defaultDBUser
	}
	if db.Database == "" {
		db.Database = defaultDBName
	}
	if db.SSLMode == "" {
		db.SSLMode = defaultDBSSLMode
	}
}

func setTrackingDefaults(tr *TrackingConfig) {
	if tr.AmazonURL == "" {
		tr.AmazonURL = defaultAmazonURL
	}
	if tr.WalmartURL == "" {
		tr.WalmartURL = defaultWalmartURL
	}
	if tr.RecentLimit == 0 {
		tr.RecentLimit = defaultRecentLimit
	}
}

func setRateLimitDefaults(rl *RateLimitConfig) {
	if rl.MaxClicksPerMinute == 0 {
		rl.MaxClicksPerMinute = defaultMaxClicksPerMinute
	}
	if rl.WindowSeconds == 0 {
		rl.WindowSeconds = defaultWindowSeconds
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := pkgconfig.ValidatePort("service.port", c.Service.Port); err != nil {
		return err
	}
	if err := pkgconfig.ValidateRequired("tracking.amazon_url", c.Tracking.AmazonURL); err != nil {
		return err
	}
	if err := pkgconfig.ValidateRequired("tracking.walmart_url", c.Tracking.WalmartURL); err != nil {
		return err
	}
	if c.Tracking.AmazonURL == c.Tracking.WalmartURL {
		return &pkgconfig.ValidationError{
			Field:   "tracking",
			Message: "destination URLs must be distinct",
		}
	}
	if c.Logging.Level != "" {
		if err := pkgconfig.ValidateLogLevel(c.Logging.Level); err != nil {
			return err
		}
	}
	return nil
}
