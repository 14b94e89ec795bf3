package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrMalformedTopic is returned when an inbound topic does not follow
	// {action}/{marker}/{systemId}/{subPath}.
	ErrMalformedTopic = errors.New("bridge: malformed command topic")

	// ErrUnknownAction is returned for an action other than R, W or P.
	ErrUnknownAction = errors.New("bridge: unknown action")

	// ErrForeignSystem is returned when a command targets another bridge.
	ErrForeignSystem = errors.New("bridge: command for another system")

	// ErrMalformedTarget is returned when a write or put sub-path does not
	// name a context and a path.
	ErrMalformedTarget = errors.New("bridge: malformed write or put target")

	// ErrMalformedKeepalive is returned when a keepalive payload is not a
	// JSON array of patterns.
	ErrMalformedKeepalive = errors.New("bridge: malformed keepalive payload")

	// ErrMalformedDelta is returned when a delta lacks context, path or value.
	ErrMalformedDelta = errors.New("bridge: malformed delta")

	// ErrStopped is returned when the bridge has been stopped.
	ErrStopped = errors.New("bridge: stopped")
)
