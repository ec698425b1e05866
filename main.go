package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mgrafton/linktally/internal/api"
	"github.com/mgrafton/linktally/internal/config"
	"github.com/mgrafton/linktally/internal/domain"
	"github.com/mgrafton/linktally/internal/handler"
	"github.com/mgrafton/linktally/internal/metrics"
	"github.com/mgrafton/linktally/internal/sse"
	"github.com/mgrafton/linktally/internal/storage"
	pkgconfig "github.com/mgrafton/linktally/pkg/config"
	"github.com/mgrafton/linktally/pkg/logger"
	"github.com/mgrafton/linktally/pkg/profiling"

	_ "github.com/lib/pq"
)

// Database connection timeout.
const dbPingTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// Start profiling server (if enabled)
	profiling.StartPprofServer()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log, err := createLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	db, err := connectDatabase(cfg, log)
	if err != nil {
		log.Error("Failed to connect to database", logger.Error(err))
		return 1
	}
	defer func() { _ = db.Close() }()

	return runServer(cfg, log, db)
}

// loadConfig loads and validates configuration.
func loadConfig() (*config.Config, error) {
	configPath := pkgconfig.GetConfigPath("config.yml")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if validationErr := cfg.Validate(); validationErr != nil {
		return nil, fmt.Errorf("validate config: %w", validationErr)
	}
	return cfg, nil
}

// createLogger creates a logger instance from configuration.
func createLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Service.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(logger.String("service", cfg.Service.Name)), nil
}

// connectDatabase opens and verifies a database connection.
func connectDatabase(cfg *config.Config, log logger.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	log.Info("Database connected",
		logger.String("host", cfg.Database.Host),
		logger.Int("port", cfg.Database.Port),
		logger.String("database", cfg.Database.Database),
	)

	return db, nil
}

// runServer creates all dependencies and starts the HTTP server.
func runServer(cfg *config.Config, log logger.Logger, db *sql.DB) int {
	destinations := cfg.Tracking.Destinations()
	store := storage.NewStore(db, destinations, log)

	// Start the broadcast broker before the server so no tracked click
	// races a missing event loop.
	broker := sse.NewBroker(log, sse.WithConfig(cfg.Broadcast))
	if err := broker.Start(context.Background()); err != nil {
		log.Error("Failed to start broadcast broker", logger.Error(err))
		return 1
	}
	defer func() {
		if err := broker.Stop(); err != nil {
			log.Warn("Broadcast broker shutdown incomplete", logger.Error(err))
		}
	}()

	m := metrics.New(broker.ClientCount)

	snapshot := func(c *gin.Context) (domain.Stats, error) {
		return store.Stats(c.Request.Context())
	}

	handlers := api.Handlers{
		Track:   handler.NewTrackHandler(store, destinations, broker, m, log, cfg.Tracking.BotFilter),
		Stats:   handler.NewStatsHandler(store, log, cfg.Tracking.RecentLimit),
		Health:  handler.NewHealthHandler(cfg.Service.Version, store.Ping),
		Live:    api.LiveHandler(broker, snapshot, log, cfg),
		Metrics: m.Handler(),
	}

	// done signals background goroutines (rate limiter) on shutdown
	done := make(chan struct{})
	defer close(done)

	server := api.NewServer(handlers, cfg, log, done)

	log.Info("Linktally starting",
		logger.Int("port", cfg.Service.Port),
		logger.String("amazon_url", destinations.Amazon),
		logger.String("walmart_url", destinations.Walmart),
	)

	if err := server.Run(); err != nil {
		log.Error("Server error", logger.Error(err))
		return 1
	}

	log.Info("Linktally exited cleanly")
	return 0
}
