package api

import (
	"net/http"
	"time"

	service "github.com/okian/starboard/internal/app"
	"github.com/okian/starboard/internal/domain/effects"
	"github.com/okian/starboard/internal/domain/model"
)

type allocationRequest struct {
	TeamID     string  `json:"team_id" validate:"required"`
	LocationID string  `json:"location_id" validate:"required"`
	Amount     float64 `json:"amount" validate:"gt=0"`
}

type cardRequest struct {
	SessionID       string              `json:"session_id" validate:"required"`
	Card            string              `json:"card" validate:"required"`
	ActivatorTeamID string              `json:"activator_team_id" validate:"required"`
	TargetTeamID    string              `json:"target_team_id"`
	LocationID      string              `json:"location_id"`
	Allocations     []allocationRequest `json:"allocations" validate:"max=64,dive"`
	ActorID         string              `json:"actor_id" validate:"max=128"`
	At              *time.Time          `json:"at"`
}

type eventRequest struct {
	SessionID       string     `json:"session_id" validate:"required"`
	Event           string     `json:"event" validate:"required"`
	LocationID      string     `json:"location_id"`
	DurationMinutes *int       `json:"duration_minutes" validate:"omitempty,gt=0"`
	ActorID         string     `json:"actor_id" validate:"max=128"`
	At              *time.Time `json:"at"`
}

// ActivationsHandler handles skill cards and random events.
type ActivationsHandler struct {
	deps ActivationsDependencies
	errs errorWriter
}

// HandlePlayCard handles POST /cards requests.
func (h *ActivationsHandler) HandlePlayCard(w http.ResponseWriter, r *http.Request) {
	const op = "api.play_card"
	var req cardRequest
	if err := decode(r, &req, false); err != nil {
		h.errs.write(w, r, op, err)
		return
	}
	if req.ActorID == "" {
		req.ActorID = r.Header.Get(headerActor)
	}
	allocations := make([]model.Allocation, len(req.Allocations))
	for i, a := range req.Allocations {
		allocations[i] = model.Allocation{TeamID: a.TeamID, LocationID: a.LocationID, Amount: a.Amount}
	}
	res, err := h.deps.PlayCard(r.Context(), service.CardRequest{
		SessionID:       req.SessionID,
		Card:            effects.CardType(req.Card),
		ActivatorTeamID: req.ActivatorTeamID,
		TargetTeamID:    req.TargetTeamID,
		LocationID:      req.LocationID,
		Allocations:     allocations,
		ActorID:         req.ActorID,
		At:              deref(req.At),
	})
	if err != nil {
		h.errs.write(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, newActivationResponse(res))
}

// HandleTriggerEvent handles POST /events requests.
func (h *ActivationsHandler) HandleTriggerEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.trigger_event"
	var req eventRequest
	if err := decode(r, &req, false); err != nil {
		h.errs.write(w, r, op, err)
		return
	}
	if req.ActorID == "" {
		req.ActorID = r.Header.Get(headerActor)
	}
	res, err := h.deps.TriggerEvent(r.Context(), service.EventRequest{
		SessionID:       req.SessionID,
		Event:           effects.EventType(req.Event),
		LocationID:      req.LocationID,
		DurationMinutes: req.DurationMinutes,
		ActorID:         req.ActorID,
		At:              deref(req.At),
	})
	if err != nil {
		h.errs.write(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, newActivationResponse(res))
}

// HandleClose handles POST /activations/{id}/close requests.
func (h *ActivationsHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	const op = "api.close_activation"
	res, err := h.deps.CloseActivation(r.Context(), r.PathValue("id"))
	if err != nil {
		h.errs.write(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newActivationResponse(res))
}
