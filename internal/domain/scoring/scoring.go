// Package scoring resolves the multiplier that turns a requested star
// change into a realized one.
package scoring

import (
	"time"

	"github.com/okian/starboard/internal/domain/effects"
	"github.com/okian/starboard/internal/domain/model"
)

// Input identifies the cell a change is being resolved for.
type Input struct {
	TeamID     string
	LocationID string
	AsOf       time.Time
}

// Result contains the combined multiplier and the factors that built it.
type Result struct {
	Multiplier float64
	Factors    []float64
	EffectIDs  []string
}

// Resolve multiplies together the value of every active multiplicative
// effect whose scope matches the input. Order does not change the product;
// factors are listed by effect creation so audit entries are stable.
func Resolve(all []model.ActiveEffect, in Input) Result {
	res := Result{Multiplier: 1.0}
	for _, e := range effects.Active(all, effects.Filter{}, in.AsOf) {
		if !e.Kind.Multiplicative() || e.Value == nil {
			continue
		}
		if !applies(&e, in) {
			continue
		}
		res.Multiplier *= *e.Value
		res.Factors = append(res.Factors, *e.Value)
		res.EffectIDs = append(res.EffectIDs, e.ID)
	}
	return res
}

func applies(e *model.ActiveEffect, in Input) bool {
	switch e.Kind {
	case model.KindEfficiencyCurse, model.KindMoraleBoost:
		return e.TeamID == in.TeamID
	case model.KindLuckyFocus:
		return e.TeamID == in.TeamID && e.LocationID == in.LocationID
	case model.KindIncomeShift:
		return e.LocationID == in.LocationID
	case model.KindGlobalShift:
		return true
	default:
		return scopeMatches(e, in)
	}
}

// scopeMatches is the general rule for multiplicative kinds without a
// dedicated case: every scope field that is set must match.
func scopeMatches(e *model.ActiveEffect, in Input) bool {
	if e.TeamID != "" && e.TeamID != in.TeamID {
		return false
	}
	if e.LocationID != "" && e.LocationID != in.LocationID {
		return false
	}
	return true
}
