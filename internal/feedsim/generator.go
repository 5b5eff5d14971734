package feedsim

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/vigilops/livetrack/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor  = 1000000
	movementTypeDivisor = 6
)

// Constants for movement profile ranges (meters per second).
const (
	patrolSpeedMin    = 0.8
	patrolSpeedRange  = 0.7
	sprintSpeedMin    = 3.0
	sprintSpeedRange  = 2.0
	idleSpeedMax      = 0.3
	vehicleSpeedMin   = 8.0
	vehicleSpeedRange = 6.0
)

// Constants for movement profile cases.
const (
	caseStationaryGuard = 0
	casePatrollingGuard = 1
	caseSprintingGuard  = 2
	caseVehicleUnit     = 3
	caseDriftingGuard   = 4
	caseErraticGuard    = 5
)

// Battery drain constants.
const (
	batteryFull      = 100
	batteryDrainSecs = 90 // seconds of simulation per 1% drain
)

// agent is a simulated fleet member performing a random walk.
type agent struct {
	entityID  string
	latitude  float64
	longitude float64
	heading   float64 // radians
	speed     float64 // meters per second
	battery   int
	moving    bool
	drained   time.Duration
}

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// generateFleet creates the configured number of agents scattered inside the
// patrol area, each with a movement profile drawn from a varied distribution.
func generateFleet(ctx context.Context, config *Config, stats *Stats) []*agent {
	logger.Get().Info(ctx, "generating simulated fleet",
		logger.Int("numAgents", config.NumAgents),
		logger.Float64("centerLat", config.CenterLat),
		logger.Float64("centerLng", config.CenterLng))

	fleet := make([]*agent, config.NumAgents)
	for i := 0; i < config.NumAgents; i++ {
		fleet[i] = generateSingleAgent(config)
	}

	stats.AgentsSimulated = len(fleet)
	return fleet
}

// generateSingleAgent creates one agent at a random point inside the area.
func generateSingleAgent(config *Config) *agent {
	// Uniform point in a disc around the center.
	angle := getRandomFloat() * 2 * math.Pi
	distance := math.Sqrt(getRandomFloat()) * config.WanderMeters

	lat := config.CenterLat + (distance*math.Cos(angle))/metersPerDegreeLat
	lng := config.CenterLng + (distance*math.Sin(angle))/metersPerDegreeLng(config.CenterLat)

	speed, moving := generateMovementProfile()

	return &agent{
		entityID:  uuid.New().String(),
		latitude:  lat,
		longitude: lng,
		heading:   getRandomFloat() * 2 * math.Pi,
		speed:     speed,
		battery:   batteryFull,
		moving:    moving,
	}
}

// generateMovementProfile draws a speed profile with varied distribution.
func generateMovementProfile() (speed float64, moving bool) {
	randNum, _ := rand.Int(rand.Reader, big.NewInt(movementTypeDivisor))
	switch randNum.Int64() {
	case caseStationaryGuard:
		// Fixed posts never move
		return 0, false
	case casePatrollingGuard:
		// Walking pace (0.8 - 1.5 m/s) - most common
		return patrolSpeedMin + getRandomFloat()*patrolSpeedRange, true
	case caseSprintingGuard:
		// Running pace (3.0 - 5.0 m/s)
		return sprintSpeedMin + getRandomFloat()*sprintSpeedRange, true
	case caseVehicleUnit:
		// Vehicle pace (8.0 - 14.0 m/s) - rare
		return vehicleSpeedMin + getRandomFloat()*vehicleSpeedRange, true
	case caseDriftingGuard:
		// Below the moving threshold; shows up as stopped
		return getRandomFloat() * idleSpeedMax, true
	case caseErraticGuard:
		// Anywhere between idle and running
		return getRandomFloat() * (sprintSpeedMin + sprintSpeedRange), true
	default:
		return patrolSpeedMin + getRandomFloat()*patrolSpeedRange, true
	}
}

// advance moves the agent one interval along its heading, bouncing back
// toward the center when it wanders out of the patrol area, and drains the
// battery over time.
func (a *agent) advance(config *Config, interval time.Duration) {
	a.drained += interval
	for a.drained >= batteryDrainSecs*time.Second && a.battery > 0 {
		a.drained -= batteryDrainSecs * time.Second
		a.battery--
	}

	if !a.moving || a.speed == 0 {
		return
	}

	// Occasional heading changes keep the walk from being a straight line.
	if getRandomFloat() < 0.2 {
		a.heading += (getRandomFloat() - 0.5) * math.Pi / 2
	}

	distance := a.speed * interval.Seconds()
	a.latitude += (distance * math.Cos(a.heading)) / metersPerDegreeLat
	a.longitude += (distance * math.Sin(a.heading)) / metersPerDegreeLng(config.CenterLat)

	// Turn around when leaving the patrol area.
	dLat := (a.latitude - config.CenterLat) * metersPerDegreeLat
	dLng := (a.longitude - config.CenterLng) * metersPerDegreeLng(config.CenterLat)
	if math.Sqrt(dLat*dLat+dLng*dLng) > config.WanderMeters {
		a.heading = math.Atan2(-dLng, -dLat) + (getRandomFloat()-0.5)*math.Pi/4
	}
}

// position renders the agent's current state as an outbound frame payload.
func (a *agent) position(now time.Time) framePosition {
	lat := a.latitude
	lng := a.longitude
	speed := a.speed
	battery := a.battery
	return framePosition{
		EntityID:  a.entityID,
		Latitude:  &lat,
		Longitude: &lng,
		Speed:     &speed,
		Battery:   &battery,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}

// metersPerDegreeLng shrinks with latitude.
func metersPerDegreeLng(lat float64) float64 {
	return metersPerDegreeLat * math.Cos(lat*math.Pi/180)
}
