package api

import (
	"net/http"
	"strconv"

	"github.com/okian/starboard/internal/adapters/repository"
	"github.com/okian/starboard/internal/domain/model"
)

// defaultLogLimit is used when GET /logs has no limit.
const defaultLogLimit = 50

type logsResponse struct {
	Total   int         `json:"total"`
	Entries []entryView `json:"entries"`
}

// ReportsHandler handles standings and change log reads.
type ReportsHandler struct {
	deps              ReportsDependencies
	errs              errorWriter
	maxLogLimit       int
	maxStandingsLimit int
}

// parseLimit reads ?limit, returning def when absent.
func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, badRequest("limit must be a positive integer")
	}
	if n > maxLimit {
		return 0, &requestError{kind: ErrLimitExceeded, msg: "limit exceeds " + strconv.Itoa(maxLimit)}
	}
	return n, nil
}

// HandleStandings handles GET /sessions/{id}/standings?limit=N requests.
func (h *ReportsHandler) HandleStandings(w http.ResponseWriter, r *http.Request) {
	const op = "api.standings"
	n, err := parseLimit(r, h.maxStandingsLimit, h.maxStandingsLimit)
	if err != nil {
		h.errs.write(w, r, op, err)
		return
	}
	rows, err := h.deps.Standings(r.Context(), r.PathValue("id"), n)
	if err != nil {
		h.errs.write(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// HandleLogs handles GET /logs?session_id=&team_id=&location_id=&source=&limit= requests.
func (h *ReportsHandler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	const op = "api.logs"
	n, err := parseLimit(r, min(defaultLogLimit, h.maxLogLimit), h.maxLogLimit)
	if err != nil {
		h.errs.write(w, r, op, err)
		return
	}
	q := r.URL.Query()
	entries, total, err := h.deps.ChangeLogs(r.Context(), repository.LogQuery{
		SessionID:  q.Get("session_id"),
		TeamID:     q.Get("team_id"),
		LocationID: q.Get("location_id"),
		Source:     model.ChangeSource(q.Get("source")),
		Limit:      n,
	})
	if err != nil {
		h.errs.write(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, logsResponse{Total: total, Entries: newEntryViews(entries)})
}
