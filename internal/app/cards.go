package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/okian/starboard/internal/adapters/repository"
	"github.com/okian/starboard/internal/domain/effects"
	"github.com/okian/starboard/internal/domain/model"
	"github.com/okian/starboard/pkg/logger"
	"github.com/okian/starboard/pkg/metrics"
)

// budgetSlack absorbs float noise when allocations add up to the budget.
const budgetSlack = 1e-9

// CardRequest plays a skill card on behalf of the activating team.
type CardRequest struct {
	SessionID       string
	Card            effects.CardType
	ActivatorTeamID string
	TargetTeamID    string
	LocationID      string
	Allocations     []model.Allocation
	ActorID         string
	At              time.Time
}

// EventRequest triggers a random event. DurationMinutes overrides the
// catalog duration when set.
type EventRequest struct {
	SessionID       string
	Event           effects.EventType
	LocationID      string
	DurationMinutes *int
	ActorID         string
	At              time.Time
}

// ActivationResult is everything a card or event did.
type ActivationResult struct {
	Activation model.Activation
	Effects    []model.ActiveEffect
	Changes    []model.ChangeLogEntry
	Closed     []model.ActiveEffect
}

// PlayCard records the card, creates its timed effect and applies its
// instant action. A team under an active skill block cannot play cards.
func (e *Engine) PlayCard(ctx context.Context, req CardRequest) (ActivationResult, error) {
	const op = "play card"
	at := e.at(req.At)

	card, ok := effects.Card(req.Card)
	if !ok {
		return ActivationResult{}, wrap(op, fmt.Errorf("%w: %q", effects.ErrUnknownCard, req.Card))
	}
	if err := e.checkCard(ctx, op, card, req); err != nil {
		return ActivationResult{}, err
	}

	all, err := e.store.OpenEffects(ctx, req.SessionID)
	if err != nil {
		return ActivationResult{}, wrap(op, err)
	}
	if effects.HasKind(all, model.KindSkillBlock, req.ActivatorTeamID, at) {
		metrics.RecordErrorByComponent("engine", "skill_blocked")
		return ActivationResult{}, fail(op, ErrSkillBlocked, "team "+req.ActivatorTeamID+" is under a skill block")
	}

	act := model.Activation{
		ID:               newID(),
		SessionID:        req.SessionID,
		Category:         model.CategoryCard,
		Type:             string(card.Type),
		ActivatorTeamID:  req.ActivatorTeamID,
		TargetTeamID:     req.TargetTeamID,
		TargetLocationID: req.LocationID,
		Params:           model.ActivationParams{Allocations: req.Allocations},
		Status:           model.ActivationActive,
		CreatedAt:        at,
	}
	if card.Instant == effects.InstantSwap {
		act.Params.SwapTeamIDs = []string{req.ActivatorTeamID, req.TargetTeamID}
	}
	if card.Duration > 0 {
		d := card.Duration
		exp := at.Add(time.Duration(d) * time.Minute)
		act.DurationMinutes = &d
		act.ExpiresAt = &exp
	} else {
		act.Status = model.ActivationExpired
	}
	if err := e.store.CreateActivation(ctx, act); err != nil {
		return ActivationResult{}, wrap(op, err)
	}
	res := ActivationResult{Activation: act}

	if spec, ok := card.EffectSpec(req.ActivatorTeamID, req.TargetTeamID, req.LocationID); ok {
		eff, err := e.activate(ctx, EffectRequest{
			SessionID:       req.SessionID,
			Kind:            spec.Kind,
			TeamID:          spec.TeamID,
			LocationID:      spec.LocationID,
			PartnerTeamID:   spec.PartnerTeamID,
			Value:           spec.Value,
			DurationMinutes: act.DurationMinutes,
			At:              at,
			SourceID:        act.ID,
		})
		if err != nil {
			e.cancelActivation(ctx, act.ID)
			return ActivationResult{}, err
		}
		res.Effects = append(res.Effects, eff)
	}

	if err := e.applyInstant(ctx, card, req, at, &res); err != nil {
		e.cancelActivation(ctx, act.ID)
		return ActivationResult{}, wrap(op, err)
	}

	metrics.RecordActivation(string(model.CategoryCard), string(card.Type))
	e.logger.Info(ctx, "card played",
		logger.String("activation_id", act.ID),
		logger.String("card", string(card.Type)),
		logger.String("activator_team_id", req.ActivatorTeamID),
		logger.String("target_team_id", req.TargetTeamID),
		logger.String("location_id", req.LocationID),
	)
	return res, nil
}

// checkCard validates the card's required fields before anything is written.
func (e *Engine) checkCard(ctx context.Context, op string, card effects.CardSpec, req CardRequest) error {
	if req.ActivatorTeamID == "" {
		return fail(op, ErrInvalidArgument, "activator team is required")
	}
	if card.NeedsTarget {
		if req.TargetTeamID == "" {
			return fail(op, ErrInvalidScope, string(card.Type)+" needs a target team")
		}
		if req.TargetTeamID == req.ActivatorTeamID {
			return fail(op, ErrInvalidScope, string(card.Type)+" cannot target the activator")
		}
	}
	if card.NeedsLocation && req.LocationID == "" {
		return fail(op, ErrInvalidScope, string(card.Type)+" needs a location")
	}
	if err := e.checkRefs(ctx, op, req.SessionID, req.LocationID, req.ActivatorTeamID, req.TargetTeamID); err != nil {
		return err
	}

	if card.Instant != effects.InstantGift && card.Instant != effects.InstantEclipse {
		if len(req.Allocations) > 0 {
			return fail(op, ErrInvalidArgument, string(card.Type)+" takes no allocations")
		}
		return nil
	}
	if len(req.Allocations) == 0 {
		return fail(op, ErrInvalidArgument, string(card.Type)+" needs at least one allocation")
	}
	var total float64
	for _, a := range req.Allocations {
		if math.IsNaN(a.Amount) || math.IsInf(a.Amount, 0) || a.Amount <= 0 {
			return fail(op, ErrInvalidArgument, "allocation amounts must be positive")
		}
		if a.TeamID == "" || a.LocationID == "" {
			return fail(op, ErrInvalidArgument, "allocations need a team and a location")
		}
		if err := e.checkRefs(ctx, op, req.SessionID, a.LocationID, a.TeamID); err != nil {
			return err
		}
		total += a.Amount
	}
	if total > card.Budget+budgetSlack {
		return fail(op, ErrInvalidArgument, fmt.Sprintf("allocations total %g exceeds the %g star budget", total, card.Budget))
	}
	return nil
}

func (e *Engine) applyInstant(ctx context.Context, card effects.CardSpec, req CardRequest, at time.Time, res *ActivationResult) error {
	switch card.Instant {
	case effects.InstantGift:
		return e.transfer(ctx, req, at, 1, res)
	case effects.InstantEclipse:
		return e.transfer(ctx, req, at, -1, res)
	case effects.InstantSwap:
		return e.swap(ctx, req, at, res)
	case effects.InstantPurify:
		return e.purify(ctx, req.SessionID, req.ActivatorTeamID, at, res)
	default:
		return nil
	}
}

// transfer adds (sign 1) or removes (sign -1) each allocation's amount,
// all cells committed together and floored at zero.
func (e *Engine) transfer(ctx context.Context, req CardRequest, at time.Time, sign float64, res *ActivationResult) error {
	keys := make([]model.CellKey, 0, len(req.Allocations))
	amounts := make(map[model.CellKey]float64, len(req.Allocations))
	for _, a := range req.Allocations {
		k := model.CellKey{TeamID: a.TeamID, LocationID: a.LocationID}
		if _, ok := amounts[k]; !ok {
			keys = append(keys, k)
		}
		amounts[k] += sign * a.Amount
	}

	var entries []model.ChangeLogEntry
	_, err := e.commitCells(ctx, at, keys, func(cur []model.StarCell) ([]repository.Commit, error) {
		entries = entries[:0]
		commits := make([]repository.Commit, len(cur))
		for i, c := range cur {
			requested := amounts[c.CellKey]
			next := math.Max(0, c.Stars+requested)
			entry := model.ChangeLogEntry{
				ID:         newID(),
				SessionID:  c.SessionID,
				ActorID:    req.ActorID,
				TeamID:     c.TeamID,
				LocationID: c.LocationID,
				OldStars:   c.Stars,
				NewStars:   next,
				Change:     next - c.Stars,
				Requested:  &requested,
				Source:     model.SourceTransfer,
				CreatedAt:  at,
			}
			entries = append(entries, entry)
			commits[i] = repository.Commit{Key: c.CellKey, Expected: c.Stars, Stars: next, Entry: entry}
		}
		return commits, nil
	})
	if err != nil {
		return err
	}
	res.Changes = append(res.Changes, entries...)

	locations := make([]string, len(keys))
	for i, k := range keys {
		locations[i] = k.LocationID
	}
	e.recomputeAll(ctx, locations...)
	return nil
}

// swap exchanges the activator's and the target's stars at one location.
func (e *Engine) swap(ctx context.Context, req CardRequest, at time.Time, res *ActivationResult) error {
	keys := []model.CellKey{
		{TeamID: req.ActivatorTeamID, LocationID: req.LocationID},
		{TeamID: req.TargetTeamID, LocationID: req.LocationID},
	}
	var entries []model.ChangeLogEntry
	_, err := e.commitCells(ctx, at, keys, func(cur []model.StarCell) ([]repository.Commit, error) {
		entries = entries[:0]
		a, b := cur[0], cur[1]
		commits := make([]repository.Commit, 0, 2)
		for _, pair := range [][2]model.StarCell{{a, b}, {b, a}} {
			c, other := pair[0], pair[1]
			entry := model.ChangeLogEntry{
				ID:         newID(),
				SessionID:  c.SessionID,
				ActorID:    req.ActorID,
				TeamID:     c.TeamID,
				LocationID: c.LocationID,
				OldStars:   c.Stars,
				NewStars:   other.Stars,
				Change:     other.Stars - c.Stars,
				Source:     model.SourceSwap,
				CreatedAt:  at,
			}
			entries = append(entries, entry)
			commits = append(commits, repository.Commit{Key: c.CellKey, Expected: c.Stars, Stars: other.Stars, Entry: entry})
		}
		return commits, nil
	})
	if err != nil {
		return err
	}
	res.Changes = append(res.Changes, entries...)
	e.recomputeAll(ctx, req.LocationID)
	return nil
}

// purify closes the most recently created curse or skill block on the team.
func (e *Engine) purify(ctx context.Context, sessionID, teamID string, at time.Time, res *ActivationResult) error {
	all, err := e.store.OpenEffects(ctx, sessionID)
	if err != nil {
		return err
	}
	var latest *model.ActiveEffect
	for _, eff := range effects.Active(all, effects.Filter{}, at) {
		if eff.TeamID != teamID || !effects.Negative(eff.Kind) {
			continue
		}
		// Active returns creation order, so the last match is the newest.
		latest = &eff
	}
	if latest == nil {
		return nil
	}
	closed, err := e.closeEffect(ctx, latest.ID, "purify")
	if err != nil {
		return err
	}
	res.Closed = append(res.Closed, closed)
	return nil
}

// TriggerEvent records a random event and creates its effect. A special
// mission pairs the session's teams at random.
func (e *Engine) TriggerEvent(ctx context.Context, req EventRequest) (ActivationResult, error) {
	const op = "trigger event"
	at := e.at(req.At)

	event, ok := effects.Event(req.Event)
	if !ok {
		return ActivationResult{}, wrap(op, fmt.Errorf("%w: %q", effects.ErrUnknownEvent, req.Event))
	}
	if event.NeedsLocation && req.LocationID == "" {
		return ActivationResult{}, fail(op, ErrInvalidScope, string(event.Type)+" needs a location")
	}
	if !event.NeedsLocation && req.LocationID != "" {
		return ActivationResult{}, fail(op, ErrInvalidScope, string(event.Type)+" takes no location")
	}
	if req.DurationMinutes != nil && *req.DurationMinutes <= 0 {
		return ActivationResult{}, fail(op, ErrInvalidArgument, "duration must be positive")
	}
	if err := e.checkRefs(ctx, op, req.SessionID, req.LocationID); err != nil {
		return ActivationResult{}, err
	}

	act := model.Activation{
		ID:               newID(),
		SessionID:        req.SessionID,
		Category:         model.CategoryEvent,
		Type:             string(event.Type),
		TargetLocationID: req.LocationID,
		Status:           model.ActivationActive,
		CreatedAt:        at,
	}

	var pairs []model.Pair
	if event.Pairing {
		teams, err := e.store.Teams(ctx, req.SessionID)
		if err != nil {
			return ActivationResult{}, wrap(op, err)
		}
		ids := make([]string, len(teams))
		names := make(map[string]string, len(teams))
		for i, t := range teams {
			ids[i] = t.ID
			names[t.ID] = t.Name
		}
		pairs = effects.RandomPairs(ids, e.shuffle)
		if len(pairs) == 0 {
			return ActivationResult{}, fail(op, ErrInvalidArgument, "a special mission needs at least two teams")
		}
		labels := make([]string, len(pairs))
		for i, p := range pairs {
			labels[i] = names[p[0]] + " & " + names[p[1]]
		}
		act.Params = model.ActivationParams{Pairs: pairs, PairNames: strings.Join(labels, ", ")}
	}

	duration := event.Duration
	if req.DurationMinutes != nil {
		duration = *req.DurationMinutes
	}
	if duration > 0 && event.Effect != "" {
		exp := at.Add(time.Duration(duration) * time.Minute)
		act.DurationMinutes = &duration
		act.ExpiresAt = &exp
	} else {
		act.Status = model.ActivationExpired
	}
	if err := e.store.CreateActivation(ctx, act); err != nil {
		return ActivationResult{}, wrap(op, err)
	}
	res := ActivationResult{Activation: act}

	if spec, ok := event.EffectSpec(req.LocationID, pairs); ok {
		eff, err := e.activate(ctx, EffectRequest{
			SessionID:       req.SessionID,
			Kind:            spec.Kind,
			LocationID:      spec.LocationID,
			Value:           spec.Value,
			Pairs:           spec.Pairs,
			DurationMinutes: act.DurationMinutes,
			At:              at,
			SourceID:        act.ID,
		})
		if err != nil {
			e.cancelActivation(ctx, act.ID)
			return ActivationResult{}, err
		}
		res.Effects = append(res.Effects, eff)
	}

	metrics.RecordActivation(string(model.CategoryEvent), string(event.Type))
	e.logger.Info(ctx, "event triggered",
		logger.String("activation_id", act.ID),
		logger.String("event", string(event.Type)),
		logger.String("location_id", req.LocationID),
		logger.Int("pairs", len(pairs)),
	)
	return res, nil
}

// CloseActivation marks an activation expired and closes every effect it
// produced. Repeating it changes nothing.
func (e *Engine) CloseActivation(ctx context.Context, id string) (ActivationResult, error) {
	const op = "close activation"
	act, err := e.store.Activation(ctx, id)
	if err != nil {
		return ActivationResult{}, wrap(op, err)
	}
	produced, err := e.store.EffectsBySource(ctx, id)
	if err != nil {
		return ActivationResult{}, wrap(op, err)
	}

	res := ActivationResult{}
	for _, eff := range produced {
		if eff.ClosedAt != nil {
			continue
		}
		closed, err := e.closeEffect(ctx, eff.ID, "activation")
		if err != nil {
			return ActivationResult{}, err
		}
		res.Closed = append(res.Closed, closed)
	}
	if act.Status == model.ActivationActive {
		if act, err = e.store.SetActivationStatus(ctx, id, model.ActivationExpired); err != nil {
			return ActivationResult{}, wrap(op, err)
		}
	}
	res.Activation = act

	e.logger.Debug(ctx, "activation closed",
		logger.String("activation_id", id),
		logger.Int("effects_closed", len(res.Closed)),
	)
	return res, nil
}

// cancelActivation marks a partially applied activation cancelled.
func (e *Engine) cancelActivation(ctx context.Context, id string) {
	if _, err := e.store.SetActivationStatus(ctx, id, model.ActivationCancelled); err != nil {
		e.logger.Error(ctx, "cancel activation failed",
			logger.String("activation_id", id),
			logger.Error(err),
		)
	}
}
