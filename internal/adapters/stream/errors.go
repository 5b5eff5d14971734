package stream

import "errors"

// Sentinel kinds for stream errors.
var (
	// ErrAuthRejected means the feed refused the identity claim. Terminal:
	// reconnecting cannot fix a bad identity, so it surfaces to the user.
	ErrAuthRejected = errors.New("stream authentication rejected")

	// ErrReconnectExhausted means the bounded reconnect budget ran out.
	ErrReconnectExhausted = errors.New("stream reconnect attempts exhausted")
)
