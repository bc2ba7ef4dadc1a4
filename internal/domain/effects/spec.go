package effects

import (
	"fmt"
	"math"

	"github.com/okian/starboard/internal/domain/model"
)

// Spec is the scope and value of an effect to be created.
type Spec struct {
	Kind          model.EffectKind
	TeamID        string
	LocationID    string
	PartnerTeamID string
	Value         *float64
	Pairs         []model.Pair
}

// Validate checks that the scope fields fit the kind.
func (s Spec) Validate() error {
	if !s.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidScope, s.Kind)
	}
	switch s.Kind {
	case model.KindEfficiencyCurse, model.KindMoraleBoost, model.KindSkillBlock:
		if s.TeamID == "" {
			return scopeErr(s.Kind, "team is required")
		}
		if s.LocationID != "" {
			return scopeErr(s.Kind, "location is not allowed")
		}
	case model.KindLuckyFocus:
		if s.TeamID == "" || s.LocationID == "" {
			return scopeErr(s.Kind, "team and location are required")
		}
	case model.KindIncomeShift:
		if s.LocationID == "" {
			return scopeErr(s.Kind, "location is required")
		}
		if s.TeamID != "" {
			return scopeErr(s.Kind, "team is not allowed")
		}
	case model.KindGlobalShift:
		if s.TeamID != "" || s.LocationID != "" {
			return scopeErr(s.Kind, "global effects take no team or location")
		}
	case model.KindAlliance:
		if s.TeamID == "" || s.PartnerTeamID == "" {
			return scopeErr(s.Kind, "team and partner are required")
		}
		if s.TeamID == s.PartnerTeamID {
			return scopeErr(s.Kind, "a team cannot ally with itself")
		}
	case model.KindSpecialMission:
		if err := validatePairs(s.Pairs); err != nil {
			return err
		}
	}

	if s.Kind != model.KindAlliance && s.PartnerTeamID != "" {
		return scopeErr(s.Kind, "partner is only valid for alliances")
	}
	if s.Kind != model.KindSpecialMission && len(s.Pairs) > 0 {
		return scopeErr(s.Kind, "pairs are only valid for special missions")
	}
	return s.validateValue()
}

func (s Spec) validateValue() error {
	switch {
	case s.Kind.Multiplicative():
		if s.Value == nil {
			return scopeErr(s.Kind, "multiplier is required")
		}
		if v := *s.Value; math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return scopeErr(s.Kind, "multiplier must be a positive finite number")
		}
	case s.Kind.Sharing():
		if s.Value != nil {
			if v := *s.Value; math.IsNaN(v) || v <= 0 || v > 1 {
				return scopeErr(s.Kind, "share ratio must be in (0, 1]")
			}
		}
	default:
		if s.Value != nil {
			return scopeErr(s.Kind, "flag effects take no value")
		}
	}
	return nil
}

func validatePairs(pairs []model.Pair) error {
	if len(pairs) == 0 {
		return scopeErr(model.KindSpecialMission, "at least one pair is required")
	}
	seen := make(map[string]struct{}, len(pairs)*2)
	for _, p := range pairs {
		if p[0] == "" || p[1] == "" || p[0] == p[1] {
			return scopeErr(model.KindSpecialMission, "pairs need two distinct teams")
		}
		for _, id := range p {
			if _, dup := seen[id]; dup {
				return scopeErr(model.KindSpecialMission, "team "+id+" is paired twice")
			}
			seen[id] = struct{}{}
		}
	}
	return nil
}

func scopeErr(kind model.EffectKind, msg string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidScope, kind, msg)
}
