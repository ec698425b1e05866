// Command dashboard tails a linktally server's live stream and prints the
// click counters as they change.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mgrafton/linktally/internal/domain"
	"github.com/mgrafton/linktally/pkg/dashclient"
	"github.com/mgrafton/linktally/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		serverURL  = flag.String("url", "http://localhost:8080", "linktally server base URL")
		amazonURL  = flag.String("amazon-url", "https://www.amazon.com", "Amazon destination URL")
		walmartURL = flag.String("walmart-url", "https://www.walmart.com", "Walmart destination URL")
		logLevel   = flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	)
	flag.Parse()

	log, err := logger.New(logger.Config{Level: *logLevel})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	destinations := domain.Destinations{Amazon: *amazonURL, Walmart: *walmartURL}

	client := dashclient.New(*serverURL, destinations,
		dashclient.WithLogger(log),
		dashclient.WithUpdateFunc(printSnapshot),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Watching %s (ctrl-c to quit)\n", *serverURL)

	if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Dashboard stream failed", logger.Error(err))
		return 1
	}

	fmt.Println("\nBye")
	return 0
}

func printSnapshot(s dashclient.Snapshot) {
	status := "online"
	if !s.Online {
		status = "offline"
	}
	fmt.Printf("\r[%s] amazon: %d  walmart: %d  total: %d  (%s)        ",
		s.UpdatedAt.Format("15:04:05"), s.Stats.Amazon, s.Stats.Walmart, s.Stats.Total, status)
}
