package api

import (
	"net/http"
	"strconv"

	"github.com/iuriaranda/signalk-mqtt-bridge/internal/journal"
)

// handleListCommands returns journaled commands, most recent first.
//
// Query parameters: kind, action, context, path, limit, offset.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "command journal is disabled")
		return
	}

	q := r.URL.Query()
	filter := journal.Filter{
		Kind:    q.Get("kind"),
		Action:  q.Get("action"),
		Context: q.Get("context"),
		Path:    q.Get("path"),
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be an integer")
		return
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing command journal", "error", err)
		writeInternalError(w, "failed to list commands")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// intParam parses an optional integer query parameter.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
