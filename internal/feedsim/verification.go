package feedsim

import (
	"context"
	"fmt"

	"github.com/vigilops/livetrack/pkg/logger"
)

// engineEntity is the subset of the engine's entity view the probe reads.
type engineEntity struct {
	EntityID string `json:"entityId"`
	Moving   bool   `json:"moving"`
}

// engineSnapshot mirrors the engine's /entities response shape.
type engineSnapshot struct {
	Entities []engineEntity `json:"entities"`
}

// verifyEngine probes the tracking engine and checks that the simulated
// fleet shows up in its snapshot. Unassigned agents are expected to be
// missing; the probe reports coverage rather than failing on it.
func verifyEngine(ctx context.Context, config *Config, fleet []*agent, stats *Stats) error {
	logger.Get().Info(ctx, "verifying engine snapshot", logger.String("engineURL", config.EngineURL))

	client := newHTTPClient(config.Timeout)
	resp, err := client.Get(ctx, config.EngineURL+"/entities")
	if err != nil {
		return fmt.Errorf("failed to reach engine: %w", err)
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return fmt.Errorf("failed to read engine response: %w", err)
	}
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("engine snapshot failed with status: %d", resp.StatusCode)
	}

	var snapshot engineSnapshot
	if err := unmarshalJSON(body, &snapshot); err != nil {
		return fmt.Errorf("failed to decode engine snapshot: %w", err)
	}

	tracked := map[string]bool{}
	for _, ent := range snapshot.Entities {
		tracked[ent.EntityID] = true
	}

	matched := 0
	for _, a := range fleet {
		if tracked[a.entityID] {
			matched++
		}
	}
	stats.EntitiesVerified = matched

	coverage := 0.0
	if len(fleet) > 0 {
		coverage = float64(matched) / float64(len(fleet)) * PercentageMultiplier
	}

	logger.Get().Info(ctx, "engine snapshot verified",
		logger.Int("fleetSize", len(fleet)),
		logger.Int("tracked", len(snapshot.Entities)),
		logger.Int("matched", matched),
		logger.Float64("coveragePercent", coverage))

	if config.Verbose {
		for _, ent := range snapshot.Entities {
			logger.Get().Debug(ctx, "tracked entity",
				logger.String("entityId", ent.EntityID),
				logger.Any("moving", ent.Moving))
		}
	}

	return nil
}

// displayFinalStats prints the final simulation statistics.
func displayFinalStats(stats *Stats) {
	var framesPerSecond float64
	if stats.Duration > 0 {
		framesPerSecond = float64(stats.FramesBroadcast) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("agentsSimulated", stats.AgentsSimulated),
		logger.Any("framesBroadcast", stats.FramesBroadcast),
		logger.Any("subscribersSeen", stats.SubscribersSeen),
		logger.Int("entitiesVerified", stats.EntitiesVerified),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("framesPerSecond", framesPerSecond))
}
