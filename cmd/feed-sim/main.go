package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vigilops/livetrack/internal/feedsim"
)

// Default configuration constants.
const (
	defaultNumAgents = 25
	defaultInterval  = 2 * time.Second
	defaultTimeout   = 10 * time.Second
	defaultLat       = 33.5731
	defaultLng       = -7.5898
	defaultWander    = 800.0
)

func main() {
	var (
		addr     = flag.String("addr", ":9081", "Listen address for the websocket feed")
		eventID  = flag.String("event", "event-sim", "Event ID the fleet reports under")
		agents   = flag.Int("agents", defaultNumAgents, "Number of simulated agents")
		interval = flag.Duration("interval", defaultInterval, "Delay between position frames per agent")
		lat      = flag.Float64("lat", defaultLat, "Latitude of the patrol area center")
		lng      = flag.Float64("lng", defaultLng, "Longitude of the patrol area center")
		wander   = flag.Float64("wander", defaultWander, "Radius of the patrol area in meters")
		engine   = flag.String("engine", "", "Engine base URL to verify the snapshot against")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout for verification")
		logFile  = flag.String("log", "", "Log file for simulator output (default: feedsim_log_TIMESTAMP.log)")
		verbose  = flag.Bool("verbose", false, "Enable verbose logging")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		feedsim.ShowHelp()
		return
	}

	// Setup logging
	if err := feedsim.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	// Run until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create simulator configuration
	config := &feedsim.Config{
		Addr:         *addr,
		EventID:      *eventID,
		NumAgents:    *agents,
		MoveInterval: *interval,
		CenterLat:    *lat,
		CenterLng:    *lng,
		WanderMeters: *wander,
		EngineURL:    *engine,
		Timeout:      *timeout,
		LogFile:      *logFile,
		Verbose:      *verbose,
	}

	// Run the simulator
	if err := feedsim.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		return
	}
}
