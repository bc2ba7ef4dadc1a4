package service

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/starboard/internal/domain/effects"
	"github.com/okian/starboard/internal/domain/model"
	"github.com/okian/starboard/pkg/logger"
	"github.com/okian/starboard/pkg/metrics"
)

// EffectRequest creates one effect. A nil duration keeps the effect in
// force until it is closed.
type EffectRequest struct {
	SessionID       string
	Kind            model.EffectKind
	TeamID          string
	LocationID      string
	PartnerTeamID   string
	Value           *float64
	Pairs           []model.Pair
	DurationMinutes *int
	At              time.Time
	SourceID        string
}

// EffectQuery selects effects in force. Zero AsOf means now.
type EffectQuery struct {
	SessionID  string
	TeamID     string
	LocationID string
	AsOf       time.Time
}

func (r EffectRequest) spec() effects.Spec {
	return effects.Spec{
		Kind:          r.Kind,
		TeamID:        r.TeamID,
		LocationID:    r.LocationID,
		PartnerTeamID: r.PartnerTeamID,
		Value:         r.Value,
		Pairs:         r.Pairs,
	}
}

// Activate validates the scope of an effect, checks that everything it
// references belongs to the session and stores it.
func (e *Engine) Activate(ctx context.Context, req EffectRequest) (model.ActiveEffect, error) {
	const op = "activate"
	if err := req.spec().Validate(); err != nil {
		return model.ActiveEffect{}, wrap(op, err)
	}
	if req.DurationMinutes != nil && *req.DurationMinutes <= 0 {
		return model.ActiveEffect{}, fail(op, ErrInvalidArgument, "duration must be positive")
	}
	if err := e.checkRefs(ctx, op, req.SessionID, req.LocationID, req.involved()...); err != nil {
		return model.ActiveEffect{}, err
	}
	return e.activate(ctx, req)
}

func (r EffectRequest) involved() []string {
	ids := []string{r.TeamID, r.PartnerTeamID}
	for _, p := range r.Pairs {
		ids = append(ids, p[0], p[1])
	}
	return ids
}

// checkRefs verifies the session exists and that the location and every
// non-empty team id belong to it.
func (e *Engine) checkRefs(ctx context.Context, op, sessionID, locationID string, teamIDs ...string) error {
	if sessionID == "" {
		return fail(op, ErrInvalidArgument, "session id is required")
	}
	if _, err := e.store.Session(ctx, sessionID); err != nil {
		return wrap(op, err)
	}
	if locationID != "" {
		l, err := e.store.Location(ctx, locationID)
		if err != nil {
			return wrap(op, err)
		}
		if l.SessionID != sessionID {
			return fail(op, ErrInvalidScope, fmt.Sprintf("location %s is not part of session %s", locationID, sessionID))
		}
	}
	for _, id := range teamIDs {
		if id == "" {
			continue
		}
		t, err := e.store.Team(ctx, id)
		if err != nil {
			return wrap(op, err)
		}
		if t.SessionID != sessionID {
			return fail(op, ErrInvalidScope, fmt.Sprintf("team %s is not part of session %s", id, sessionID))
		}
	}
	return nil
}

// activate stores an already validated effect.
func (e *Engine) activate(ctx context.Context, req EffectRequest) (model.ActiveEffect, error) {
	at := e.at(req.At)
	eff := model.ActiveEffect{
		ID:            newID(),
		SessionID:     req.SessionID,
		Kind:          req.Kind,
		TeamID:        req.TeamID,
		LocationID:    req.LocationID,
		Value:         req.Value,
		PartnerTeamID: req.PartnerTeamID,
		Pairs:         req.Pairs,
		CreatedAt:     at,
		SourceID:      req.SourceID,
	}
	if req.DurationMinutes != nil {
		exp := at.Add(time.Duration(*req.DurationMinutes) * time.Minute)
		eff.ExpiresAt = &exp
	}
	if err := e.store.CreateEffect(ctx, eff); err != nil {
		return model.ActiveEffect{}, wrap("activate", err)
	}

	metrics.RecordEffectActivated(string(eff.Kind))
	e.logger.Debug(ctx, "effect activated",
		logger.String("effect_id", eff.ID),
		logger.String("kind", string(eff.Kind)),
		logger.String("team_id", eff.TeamID),
		logger.String("location_id", eff.LocationID),
		logger.String("source_id", eff.SourceID),
	)
	return eff, nil
}

// Close ends an effect now. Closing a closed effect succeeds unchanged.
func (e *Engine) Close(ctx context.Context, id string) (model.ActiveEffect, error) {
	return e.closeEffect(ctx, id, "manual")
}

func (e *Engine) closeEffect(ctx context.Context, id, reason string) (model.ActiveEffect, error) {
	const op = "close effect"
	cur, err := e.store.Effect(ctx, id)
	if err != nil {
		return model.ActiveEffect{}, wrap(op, err)
	}
	if cur.ClosedAt != nil {
		return cur, nil
	}
	closed, err := e.store.CloseEffect(ctx, id, e.clock())
	if err != nil {
		return model.ActiveEffect{}, wrap(op, err)
	}
	metrics.RecordEffectsClosed(reason, 1)
	e.logger.Debug(ctx, "effect closed",
		logger.String("effect_id", id),
		logger.String("reason", reason),
	)
	return closed, nil
}

// SweepExpired closes every effect whose expiry is at or before asOf and
// marks activations that have run their course expired. asOf is capped at
// the engine clock so a sweep never cuts a live effect short. Reads never
// depend on it: expiry is also checked whenever effects are resolved.
func (e *Engine) SweepExpired(ctx context.Context, asOf time.Time) (int, error) {
	const op = "sweep expired"
	asOf = e.at(asOf)
	if now := e.clock(); now.Before(asOf) {
		asOf = now
	}

	closed, err := e.store.CloseExpired(ctx, asOf)
	if err != nil {
		return 0, wrap(op, err)
	}
	metrics.RecordEffectsClosed("swept", len(closed))
	e.swept.Add(int64(len(closed)))

	sources := make(map[string]struct{})
	for _, eff := range closed {
		if eff.SourceID != "" {
			sources[eff.SourceID] = struct{}{}
		}
	}
	for id := range sources {
		a, err := e.store.Activation(ctx, id)
		if err != nil {
			e.logger.Warn(ctx, "activation of swept effect not found", logger.String("activation_id", id))
			continue
		}
		if a.Status != model.ActivationActive || a.ExpiresAt == nil || asOf.Before(*a.ExpiresAt) {
			continue
		}
		if _, err := e.store.SetActivationStatus(ctx, id, model.ActivationExpired); err != nil {
			return len(closed), wrap(op, err)
		}
	}

	if open, err := e.store.OpenEffects(ctx, ""); err == nil {
		metrics.UpdateActiveEffects(len(effects.Active(open, effects.Filter{}, asOf)))
	}
	if len(closed) > 0 {
		e.logger.Debug(ctx, "expired effects swept", logger.Int("closed", len(closed)))
	}
	return len(closed), nil
}

// ActiveEffects lists the effects in force at q.AsOf whose scope matches
// the filter or is global.
func (e *Engine) ActiveEffects(ctx context.Context, q EffectQuery) ([]model.ActiveEffect, error) {
	all, err := e.store.OpenEffects(ctx, q.SessionID)
	if err != nil {
		return nil, wrap("active effects", err)
	}
	return effects.Active(all, effects.Filter{TeamID: q.TeamID, LocationID: q.LocationID}, e.at(q.AsOf)), nil
}
