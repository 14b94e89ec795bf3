package api

import (
	"net/http"

	"github.com/iuriaranda/signalk-mqtt-bridge/internal/bridge"
)

// LeasesResponse is the body of GET /api/v1/leases.
type LeasesResponse struct {
	Leases []bridge.Lease `json:"leases"`
	Count  int            `json:"count"`
}

// handleLeases lists the active keepalive leases.
func (s *Server) handleLeases(w http.ResponseWriter, r *http.Request) {
	leases, err := s.bridge.Leases(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "bridge is not running")
		return
	}
	if leases == nil {
		leases = []bridge.Lease{}
	}

	writeJSON(w, http.StatusOK, LeasesResponse{Leases: leases, Count: len(leases)})
}
