// Package api provides the HTTP status surface of the bridge.
//
// It exposes read-only endpoints for operators and supervisors:
//
//	GET /api/v1/health    bridge status; 503 unless connected
//	GET /api/v1/metrics   bridge, MQTT, Signal K and runtime counters
//	GET /api/v1/leases    active keepalive leases
//	GET /api/v1/commands  command journal (when enabled)
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
