package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/signalchain-core/internal/journal"
)

// maxQueryParamLen limits query parameter length.
const maxQueryParamLen = 100

// handleListJournal returns journal entries for the chain, newest first.
//
// Query parameters:
//   - kind: filter by entry kind (current_setpoint, advisory, ...)
//   - since: RFC3339 timestamp, entries at or after it
//   - limit: page size, default 50, max 200
//   - offset: entries to skip
func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "journal not configured")
		return
	}

	q := r.URL.Query()
	filter := journal.Filter{ChainID: s.chain.ChainID()}

	if kind := q.Get("kind"); kind != "" {
		if len(kind) > maxQueryParamLen {
			writeBadRequest(w, "kind exceeds maximum length")
			return
		}
		filter.Kind = journal.Kind(kind)
	}

	var err error
	if filter.Limit, err = parseIntParam(q.Get("limit"), journal.DefaultLimit, journal.MaxLimit); err != nil {
		writeBadRequest(w, "limit: "+err.Error())
		return
	}
	if filter.Offset, err = parseIntParam(q.Get("offset"), 0, -1); err != nil {
		writeBadRequest(w, "offset: "+err.Error())
		return
	}
	if raw := q.Get("since"); raw != "" {
		filter.Since, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeBadRequest(w, "invalid since timestamp")
			return
		}
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list journal", "error", err)
		writeInternalError(w, "failed to list journal")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// parseIntParam parses a non-negative integer query parameter. A negative
// upper bound means unbounded.
func parseIntParam(raw string, def, upper int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	if upper >= 0 && n > upper {
		return 0, fmt.Errorf("exceeds maximum of %d", upper)
	}
	return n, nil
}
