package service

import "errors"

// Sentinel kinds for session errors.
var (
	ErrNotStarted = errors.New("tracking session not started")
	ErrNoScope    = errors.New("no event scope selected")
)
