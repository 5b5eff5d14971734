package rest

import "errors"

// Sentinel kinds for roster API errors.
var (
	ErrEventNotFound   = errors.New("event not found")
	ErrUnexpectedReply = errors.New("unexpected roster API reply")
)
