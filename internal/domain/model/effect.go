package model

import "time"

// EffectKind is the closed set of modifiers the engine understands.
type EffectKind string

// Effect kinds.
const (
	KindEfficiencyCurse EffectKind = "efficiency_curse"
	KindMoraleBoost     EffectKind = "morale_boost"
	KindLuckyFocus      EffectKind = "lucky_focus"
	KindIncomeShift     EffectKind = "income_shift"
	KindGlobalShift     EffectKind = "global_shift"
	KindAlliance        EffectKind = "alliance"
	KindSpecialMission  EffectKind = "special_mission"
	KindSkillBlock      EffectKind = "skill_block"
)

// Kinds lists every known effect kind.
var Kinds = []EffectKind{
	KindEfficiencyCurse,
	KindMoraleBoost,
	KindLuckyFocus,
	KindIncomeShift,
	KindGlobalShift,
	KindAlliance,
	KindSpecialMission,
	KindSkillBlock,
}

// Valid reports whether k is one of the known kinds.
func (k EffectKind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Multiplicative reports whether the kind's value scales star changes.
// Share kinds carry a ratio and skill block carries nothing.
func (k EffectKind) Multiplicative() bool {
	switch k {
	case KindEfficiencyCurse, KindMoraleBoost, KindLuckyFocus, KindIncomeShift, KindGlobalShift:
		return true
	default:
		return false
	}
}

// Sharing reports whether the kind propagates gains to partner teams.
func (k EffectKind) Sharing() bool {
	return k == KindAlliance || k == KindSpecialMission
}

// Pair is two teams bound together by a special mission.
type Pair [2]string

// ActiveEffect is a modifier in force for a session. Optional fields use
// pointers or empty strings: empty TeamID and LocationID mean global scope.
type ActiveEffect struct {
	ID            string
	SessionID     string
	Kind          EffectKind
	TeamID        string
	LocationID    string
	Value         *float64 // multiplier or share ratio; nil for flag kinds
	PartnerTeamID string
	Pairs         []Pair
	CreatedAt     time.Time
	ExpiresAt     *time.Time // nil means in force until closed
	ClosedAt      *time.Time
	SourceID      string // activation that produced the effect
}

// ActiveAt reports whether the effect applies at t: not closed and
// created <= t < expiry.
func (e *ActiveEffect) ActiveAt(t time.Time) bool {
	if e.ClosedAt != nil || t.Before(e.CreatedAt) {
		return false
	}
	if e.ExpiresAt == nil {
		return true
	}
	return t.Before(*e.ExpiresAt)
}

// Involves reports whether team participates in the effect in any role.
func (e *ActiveEffect) Involves(teamID string) bool {
	if teamID == "" {
		return false
	}
	if e.TeamID == teamID || e.PartnerTeamID == teamID {
		return true
	}
	for _, p := range e.Pairs {
		if p[0] == teamID || p[1] == teamID {
			return true
		}
	}
	return false
}

// Float returns a pointer to v, for optional effect values.
func Float(v float64) *float64 { return &v }
