// Package signalk is a small client for a Signal K server.
//
// It uses the REST API for the self identity and for reads, and the
// WebSocket stream for everything else:
//
//   - inbound deltas, flattened to one Delta per value and coalesced per
//     context and path
//   - outbound value updates (WritePath)
//   - outbound PUT requests correlated by requestId (PutPath)
//
// The stream reconnects at a fixed interval. While it is down, writes and
// puts fail with ErrNotConnected and no deltas arrive.
//
// Discover finds a server on the local network over mDNS when no URL is
// configured.
package signalk
