// Package effects answers which modifiers are in force and how activations
// turn into effects.
package effects

import (
	"slices"
	"strings"
	"time"

	"github.com/okian/starboard/internal/domain/model"
)

// Filter narrows an effect query. Empty fields match everything.
type Filter struct {
	TeamID     string
	LocationID string
}

// Active returns the effects in force at asOf whose scope matches the
// filter or is global, ordered by creation time then id.
func Active(all []model.ActiveEffect, f Filter, asOf time.Time) []model.ActiveEffect {
	out := make([]model.ActiveEffect, 0, len(all))
	for i := range all {
		e := &all[i]
		if !e.ActiveAt(asOf) {
			continue
		}
		if f.TeamID != "" && !matchesTeam(e, f.TeamID) {
			continue
		}
		if f.LocationID != "" && e.LocationID != "" && e.LocationID != f.LocationID {
			continue
		}
		out = append(out, *e)
	}
	SortByCreation(out)
	return out
}

// matchesTeam treats team-less effects as global for the team dimension.
func matchesTeam(e *model.ActiveEffect, teamID string) bool {
	if e.TeamID == "" && e.PartnerTeamID == "" && len(e.Pairs) == 0 {
		return true
	}
	return e.Involves(teamID)
}

// HasKind reports whether any effect of kind applies to team at asOf.
func HasKind(all []model.ActiveEffect, kind model.EffectKind, teamID string, asOf time.Time) bool {
	for i := range all {
		e := &all[i]
		if e.Kind == kind && e.TeamID == teamID && e.ActiveAt(asOf) {
			return true
		}
	}
	return false
}

// SortByCreation orders effects deterministically.
func SortByCreation(list []model.ActiveEffect) {
	slices.SortStableFunc(list, func(a, b model.ActiveEffect) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
