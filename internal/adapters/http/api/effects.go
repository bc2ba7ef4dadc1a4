package api

import (
	"net/http"
	"time"

	service "github.com/okian/starboard/internal/app"
	"github.com/okian/starboard/internal/domain/model"
)

type effectRequest struct {
	SessionID       string       `json:"session_id" validate:"required"`
	Kind            string       `json:"kind" validate:"required,oneof=efficiency_curse morale_boost lucky_focus income_shift global_shift alliance special_mission skill_block"`
	TeamID          string       `json:"team_id"`
	LocationID      string       `json:"location_id"`
	PartnerTeamID   string       `json:"partner_team_id"`
	Value           *float64     `json:"value" validate:"omitempty,gt=0"`
	Pairs           []model.Pair `json:"pairs" validate:"max=64"`
	DurationMinutes *int         `json:"duration_minutes" validate:"omitempty,gt=0"`
	SourceID        string       `json:"source_id"`
	At              *time.Time   `json:"at"`
}

type sweepRequest struct {
	AsOf *time.Time `json:"as_of"`
}

type sweepResponse struct {
	Closed int `json:"closed"`
}

// EffectsHandler handles the effect lifecycle.
type EffectsHandler struct {
	deps EffectsDependencies
	errs errorWriter
}

// HandleActivate handles POST /effects requests.
func (h *EffectsHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	const op = "api.activate_effect"
	var req effectRequest
	if err := decode(r, &req, false); err != nil {
		h.errs.write(w, r, op, err)
		return
	}
	eff, err := h.deps.Activate(r.Context(), service.EffectRequest{
		SessionID:       req.SessionID,
		Kind:            model.EffectKind(req.Kind),
		TeamID:          req.TeamID,
		LocationID:      req.LocationID,
		PartnerTeamID:   req.PartnerTeamID,
		Value:           req.Value,
		Pairs:           req.Pairs,
		DurationMinutes: req.DurationMinutes,
		At:              deref(req.At),
		SourceID:        req.SourceID,
	})
	if err != nil {
		h.errs.write(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, newEffectView(eff))
}

// HandleList handles GET /effects?session_id=&team_id=&location_id=&as_of= requests.
func (h *EffectsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_effects"
	asOf, err := parseTime(r, "as_of")
	if err != nil {
		h.errs.write(w, r, op, err)
		return
	}
	q := r.URL.Query()
	list, err := h.deps.ActiveEffects(r.Context(), service.EffectQuery{
		SessionID:  q.Get("session_id"),
		TeamID:     q.Get("team_id"),
		LocationID: q.Get("location_id"),
		AsOf:       asOf,
	})
	if err != nil {
		h.errs.write(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newEffectViews(list))
}

// HandleClose handles POST /effects/{id}/close requests.
func (h *EffectsHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	const op = "api.close_effect"
	eff, err := h.deps.Close(r.Context(), r.PathValue("id"))
	if err != nil {
		h.errs.write(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, newEffectView(eff))
}

// HandleSweep handles POST /effects/sweep requests. The body is optional.
func (h *EffectsHandler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	const op = "api.sweep_effects"
	var req sweepRequest
	if err := decode(r, &req, true); err != nil {
		h.errs.write(w, r, op, err)
		return
	}
	n, err := h.deps.SweepExpired(r.Context(), deref(req.AsOf))
	if err != nil {
		h.errs.write(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{Closed: n})
}
