package feedsim

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/vigilops/livetrack/pkg/logger"
)

// Server shutdown constants.
const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// Run starts the feed simulator and blocks until the context is cancelled.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting feed simulator",
		logger.String("addr", config.Addr),
		logger.String("eventID", config.EventID),
		logger.Int("agents", config.NumAgents),
		logger.String("moveInterval", config.MoveInterval.String()),
		logger.Float64("wanderMeters", config.WanderMeters),
		logger.Any("verbose", config.Verbose))

	// Step 1: Generate the fleet
	fleet := generateFleet(ctx, config, stats)
	if len(fleet) == 0 {
		return fmt.Errorf("no agents to simulate")
	}

	var fleetMu sync.Mutex
	snapshotFn := func() []framePosition {
		fleetMu.Lock()
		defer fleetMu.Unlock()
		now := time.Now()
		positions := make([]framePosition, 0, len(fleet))
		for _, a := range fleet {
			positions = append(positions, a.position(now))
		}
		return positions
	}

	// Step 2: Serve the websocket feed
	h := newHub(config, stats, snapshotFn)
	mux := http.NewServeMux()
	mux.Handle("/positions", h)

	srv := &http.Server{
		Addr:              config.Addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Get().Info(ctx, "feed listening", logger.String("addr", config.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Step 3: Optionally verify against the engine after it had time to connect
	if config.EngineURL != "" {
		go func() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(VerifyDelay):
				if err := verifyEngine(ctx, config, fleet, stats); err != nil {
					logger.Get().Warn(ctx, "engine verification failed", logger.Error(err))
				}
			}
		}()
	}

	// Step 4: Drive the fleet until cancelled
	ticker := time.NewTicker(config.MoveInterval)
	defer ticker.Stop()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-serveErr:
			runErr = fmt.Errorf("feed server failed: %w", err)
			break loop
		case <-ticker.C:
			now := time.Now()
			fleetMu.Lock()
			for _, a := range fleet {
				a.advance(config, config.MoveInterval)
			}
			positions := make([]framePosition, 0, len(fleet))
			for _, a := range fleet {
				positions = append(positions, a.position(now))
			}
			fleetMu.Unlock()

			for _, p := range positions {
				h.broadcast(p)
			}

			if config.Verbose {
				logger.Get().Debug(ctx, "fleet advanced",
					logger.Int("agents", len(fleet)),
					logger.Int("subscribers", h.subscriberCount()))
			}
		}
	}

	// Step 5: Shut the server down and report
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Get().Warn(ctx, "feed server shutdown failed", logger.Error(err))
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)

	logger.Get().Info(ctx, "feed simulator stopped")
	return runErr
}
