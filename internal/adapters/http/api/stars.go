package api

import (
	"net/http"
	"time"

	service "github.com/okian/starboard/internal/app"
)

// Headers that can carry the actor and request id instead of the body.
const (
	headerActor          = "X-Actor-ID"
	headerIdempotencyKey = "Idempotency-Key"
)

type deltaRequest struct {
	TeamID     string     `json:"team_id" validate:"required"`
	LocationID string     `json:"location_id" validate:"required"`
	Delta      *float64   `json:"delta" validate:"required"`
	ActorID    string     `json:"actor_id" validate:"max=128"`
	RequestID  string     `json:"request_id" validate:"max=128"`
	At         *time.Time `json:"at"`
}

// StarsHandler handles star mutations.
type StarsHandler struct {
	deps StarsDependencies
	errs errorWriter
}

// HandleApplyDelta handles POST /stars requests.
func (h *StarsHandler) HandleApplyDelta(w http.ResponseWriter, r *http.Request) {
	const op = "api.apply_delta"
	var req deltaRequest
	if err := decode(r, &req, false); err != nil {
		h.errs.write(w, r, op, err)
		return
	}
	if req.ActorID == "" {
		req.ActorID = r.Header.Get(headerActor)
	}
	if req.RequestID == "" {
		req.RequestID = r.Header.Get(headerIdempotencyKey)
	}

	res, err := h.deps.ApplyDelta(r.Context(), service.DeltaRequest{
		TeamID:     req.TeamID,
		LocationID: req.LocationID,
		Delta:      *req.Delta,
		ActorID:    req.ActorID,
		At:         deref(req.At),
		RequestID:  req.RequestID,
	})
	if err != nil {
		h.errs.write(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
