package domain

import "errors"

var (
	// ErrMalformedFrame indicates an inbound message that is not a valid envelope.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrUnknownFrameType indicates an envelope with a type outside the control set.
	ErrUnknownFrameType = errors.New("unknown frame type")

	// ErrNotIdentified indicates a personal-channel operation on an anonymous connection.
	ErrNotIdentified = errors.New("authentication required")

	// ErrInvalidToken indicates a connect-time credential that failed verification.
	// The connection degrades to anonymous; it is never rejected for this.
	ErrInvalidToken = errors.New("invalid token")

	// ErrRateLimited indicates a control frame rejected by the frame rate limiter.
	ErrRateLimited = errors.New("rate limit exceeded")
)
