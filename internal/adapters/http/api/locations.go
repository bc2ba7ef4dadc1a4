package api

import (
	"net/http"
)

type recomputeResponse struct {
	LocationID string `json:"location_id"`
	Status     string `json:"status"`
}

// LocationsHandler handles per-location reads and recomputes.
type LocationsHandler struct {
	deps LocationsDependencies
	errs errorWriter
}

// HandleRecompute handles POST /locations/{id}/recompute requests.
func (h *LocationsHandler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	const op = "api.recompute"
	id := r.PathValue("id")
	if err := h.deps.Recompute(r.Context(), id); err != nil {
		h.errs.write(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, recomputeResponse{LocationID: id, Status: "recomputed"})
}

// HandleCells handles GET /locations/{id}/cells requests.
func (h *LocationsHandler) HandleCells(w http.ResponseWriter, r *http.Request) {
	const op = "api.cells"
	cells, err := h.deps.Cells(r.Context(), r.PathValue("id"))
	if err != nil {
		h.errs.write(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, cells)
}
