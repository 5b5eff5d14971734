// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...) initializer to build a Config with defaults.
// - Layer file and environment overrides on top via Load.
// - External errors must be wrapped via this package's error helpers.
package config

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// FeedURL is the websocket endpoint of the live position feed. Empty
	// runs the engine without a feed; frames can only arrive via tests or
	// an embedded generator.
	FeedURL string `koanf:"feed_url" validate:"omitempty,uri"`

	// FeedSubjectID and FeedRole form the identity presented to the feed.
	FeedSubjectID string `koanf:"feed_subject_id"`
	FeedRole      string `koanf:"feed_role" validate:"omitempty,oneof=agent supervisor admin"`

	// EventID selects the initial event scope opened on startup.
	EventID string `koanf:"event_id"`

	// RosterURL is the base URL of the workforce backend serving event
	// metadata and assignments.
	RosterURL string `koanf:"roster_url" validate:"omitempty,url"`

	// RosterTimeoutMS bounds each roster request.
	RosterTimeoutMS int `koanf:"roster_timeout_ms" validate:"gte=0"`

	// QueueSize bounds the in-memory frame queue.
	QueueSize int `koanf:"queue_size" validate:"gt=0"`

	// DedupeWindow sets how many recent frame keys replay suppression keeps.
	DedupeWindow int `koanf:"dedupe_window" validate:"gt=0"`

	// TrailCap bounds the per-entity position history.
	TrailCap int `koanf:"trail_cap" validate:"gt=0"`

	// StaleAfterSec evicts entities silent for longer than this. Zero, the
	// default, keeps entities at their last position until the scope changes.
	StaleAfterSec int `koanf:"stale_after_sec" validate:"gte=0"`

	// AnimationFrameMS and AnimationDurationMS tune marker glides.
	AnimationFrameMS    int `koanf:"animation_frame_ms" validate:"gt=0"`
	AnimationDurationMS int `koanf:"animation_duration_ms" validate:"gt=0"`

	// ReconnectMaxAttempts bounds consecutive feed connection failures.
	ReconnectMaxAttempts int `koanf:"reconnect_max_attempts" validate:"gt=0"`

	// ReconnectBaseBackoffMS and ReconnectMaxBackoffMS bound the doubling
	// reconnect delay.
	ReconnectBaseBackoffMS int `koanf:"reconnect_base_backoff_ms" validate:"gt=0"`
	ReconnectMaxBackoffMS  int `koanf:"reconnect_max_backoff_ms" validate:"gt=0"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		Addr:                   ":9080",
		FeedRole:               "supervisor",
		RosterTimeoutMS:        10_000,
		QueueSize:              10_000,
		DedupeWindow:           10_000,
		TrailCap:               50,
		StaleAfterSec:          0,
		AnimationFrameMS:       50,
		AnimationDurationMS:    1_000,
		ReconnectMaxAttempts:   10,
		ReconnectBaseBackoffMS: 1_000,
		ReconnectMaxBackoffMS:  30_000,
	}
}
