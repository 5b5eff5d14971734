package feedsim

import "time"

// HTTP status code constants.
const (
	StatusOK = 200
)

// Geometry constants.
const (
	metersPerDegreeLat = 111_320.0
)

// Runner configuration constants.
const (
	VerifyDelay          = 5 * time.Second
	PercentageMultiplier = 100
)
