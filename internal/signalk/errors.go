package signalk

import "errors"

// Domain errors for the Signal K client.
var (
	// ErrInvalidDelta is returned when a delta lacks context, path or value.
	ErrInvalidDelta = errors.New("signalk: invalid delta")

	// ErrNotConnected is returned when the stream is down.
	ErrNotConnected = errors.New("signalk: not connected")

	// ErrConnectionFailed is returned when the stream cannot be opened.
	ErrConnectionFailed = errors.New("signalk: connection failed")

	// ErrSendQueueFull is returned when outbound stream messages back up.
	ErrSendQueueFull = errors.New("signalk: send queue full")

	// ErrUnauthorized is returned when the server rejects the token.
	ErrUnauthorized = errors.New("signalk: unauthorized")

	// ErrUnexpectedStatus is returned for other non-success HTTP responses.
	ErrUnexpectedStatus = errors.New("signalk: unexpected response status")

	// ErrInvalidSelf is returned when the server's self identity is unusable.
	ErrInvalidSelf = errors.New("signalk: invalid self identity")

	// ErrTokenExpired is returned by CheckToken for an expired token.
	ErrTokenExpired = errors.New("signalk: token expired")

	// ErrInvalidToken is returned by CheckToken for a token that is not a JWT.
	ErrInvalidToken = errors.New("signalk: token is not a valid JWT")

	// ErrNoServer is returned when discovery finds no server.
	ErrNoServer = errors.New("signalk: no server discovered")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("signalk: client closed")
)
