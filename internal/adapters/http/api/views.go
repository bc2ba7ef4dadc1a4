package api

import (
	"time"

	service "github.com/okian/starboard/internal/app"
	"github.com/okian/starboard/internal/domain/model"
)

type effectView struct {
	ID            string       `json:"id"`
	SessionID     string       `json:"session_id"`
	Kind          string       `json:"kind"`
	TeamID        string       `json:"team_id,omitempty"`
	LocationID    string       `json:"location_id,omitempty"`
	PartnerTeamID string       `json:"partner_team_id,omitempty"`
	Value         *float64     `json:"value,omitempty"`
	Pairs         []model.Pair `json:"pairs,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
	ClosedAt      *time.Time   `json:"closed_at,omitempty"`
	SourceID      string       `json:"source_id,omitempty"`
}

func newEffectView(e model.ActiveEffect) effectView { //nolint:gocritic // hugeParam: effects travel by value
	return effectView{
		ID:            e.ID,
		SessionID:     e.SessionID,
		Kind:          string(e.Kind),
		TeamID:        e.TeamID,
		LocationID:    e.LocationID,
		PartnerTeamID: e.PartnerTeamID,
		Value:         e.Value,
		Pairs:         e.Pairs,
		CreatedAt:     e.CreatedAt,
		ExpiresAt:     e.ExpiresAt,
		ClosedAt:      e.ClosedAt,
		SourceID:      e.SourceID,
	}
}

func newEffectViews(list []model.ActiveEffect) []effectView {
	out := make([]effectView, len(list))
	for i := range list {
		out[i] = newEffectView(list[i])
	}
	return out
}

type entryView struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	ActorID    string    `json:"actor_id,omitempty"`
	TeamID     string    `json:"team_id"`
	LocationID string    `json:"location_id"`
	OldStars   float64   `json:"old_stars"`
	NewStars   float64   `json:"new_stars"`
	Change     float64   `json:"change"`
	Requested  *float64  `json:"requested,omitempty"`
	Factors    []float64 `json:"factors,omitempty"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

func newEntryViews(list []model.ChangeLogEntry) []entryView {
	out := make([]entryView, len(list))
	for i, e := range list {
		out[i] = entryView{
			ID:         e.ID,
			SessionID:  e.SessionID,
			ActorID:    e.ActorID,
			TeamID:     e.TeamID,
			LocationID: e.LocationID,
			OldStars:   e.OldStars,
			NewStars:   e.NewStars,
			Change:     e.Change,
			Requested:  e.Requested,
			Factors:    e.Factors,
			Source:     string(e.Source),
			CreatedAt:  e.CreatedAt,
		}
	}
	return out
}

type activationView struct {
	ID               string                 `json:"id"`
	SessionID        string                 `json:"session_id"`
	Category         string                 `json:"category"`
	Type             string                 `json:"type"`
	ActivatorTeamID  string                 `json:"activator_team_id,omitempty"`
	TargetTeamID     string                 `json:"target_team_id,omitempty"`
	TargetLocationID string                 `json:"target_location_id,omitempty"`
	Params           model.ActivationParams `json:"params"`
	DurationMinutes  *int                   `json:"duration_minutes,omitempty"`
	ExpiresAt        *time.Time             `json:"expires_at,omitempty"`
	Status           string                 `json:"status"`
	CreatedAt        time.Time              `json:"created_at"`
}

type activationResponse struct {
	Activation activationView `json:"activation"`
	Effects    []effectView   `json:"effects"`
	Changes    []entryView    `json:"changes"`
	Closed     []effectView   `json:"closed"`
}

func newActivationResponse(res service.ActivationResult) activationResponse { //nolint:gocritic // hugeParam: results travel by value
	a := res.Activation
	return activationResponse{
		Activation: activationView{
			ID:               a.ID,
			SessionID:        a.SessionID,
			Category:         string(a.Category),
			Type:             a.Type,
			ActivatorTeamID:  a.ActivatorTeamID,
			TargetTeamID:     a.TargetTeamID,
			TargetLocationID: a.TargetLocationID,
			Params:           a.Params,
			DurationMinutes:  a.DurationMinutes,
			ExpiresAt:        a.ExpiresAt,
			Status:           string(a.Status),
			CreatedAt:        a.CreatedAt,
		},
		Effects: newEffectViews(res.Effects),
		Changes: newEntryViews(res.Changes),
		Closed:  newEffectViews(res.Closed),
	}
}
