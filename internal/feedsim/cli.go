package feedsim

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/vigilops/livetrack/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	// Initialize the logger first
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "feedsim_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the feed simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Livetrack Feed Simulator
========================

A websocket feed that simulates a patrolling security fleet for testing the
livetrack engine.

Usage:
  go run cmd/feed-sim/main.go [options]

Options:
  -addr string
        Listen address for the websocket feed (default ":9081")
  -event string
        Event ID the fleet reports under (default "event-sim")
  -agents int
        Number of simulated agents (default 25)
  -interval duration
        Delay between position frames per agent (default 2s)
  -lat float
        Latitude of the patrol area center (default 33.5731)
  -lng float
        Longitude of the patrol area center (default -7.5898)
  -wander float
        Radius of the patrol area in meters (default 800)
  -engine string
        Engine base URL to verify the snapshot against (optional)
  -timeout duration
        HTTP request timeout for verification (default 10s)
  -log string
        Log file for simulator output (default: feedsim_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Simulate the default fleet
  go run cmd/feed-sim/main.go

  # Larger fleet, faster updates
  go run cmd/feed-sim/main.go -agents 100 -interval 500ms

  # Verify the engine picked the fleet up
  go run cmd/feed-sim/main.go -engine http://localhost:9080
`)
}
