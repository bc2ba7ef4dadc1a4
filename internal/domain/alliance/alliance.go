// Package alliance determines which partner teams receive a share of a
// team's star gains.
package alliance

import (
	"time"

	"github.com/okian/starboard/internal/domain/effects"
	"github.com/okian/starboard/internal/domain/model"
)

// Default share ratios when an effect carries no explicit value.
const (
	DefaultAllianceShare = 0.2
	DefaultMissionShare  = 1.0
)

// Defaults supplies the ratios used for effects without a value.
type Defaults struct {
	Alliance float64
	Mission  float64
}

// Share is one partner entitled to a fraction of the source team's gain.
// Kind distinguishes the alliance variant from the paired-mission variant.
type Share struct {
	Kind          model.EffectKind
	PartnerTeamID string
	Ratio         float64
	EffectID      string
}

// Source maps the share variant to the change log source it produces.
func (s Share) Source() model.ChangeSource {
	if s.Kind == model.KindSpecialMission {
		return model.SourceSpecialMission
	}
	return model.SourceAlliance
}

// Shares lists every partner share of sourceTeam from the effects active at
// asOf. An empty result means nothing is shared.
func Shares(all []model.ActiveEffect, sourceTeam string, asOf time.Time, d Defaults) []Share {
	if d.Alliance <= 0 {
		d.Alliance = DefaultAllianceShare
	}
	if d.Mission <= 0 {
		d.Mission = DefaultMissionShare
	}

	var out []Share
	for _, e := range effects.Active(all, effects.Filter{}, asOf) {
		switch e.Kind {
		case model.KindAlliance:
			partner := ""
			switch sourceTeam {
			case e.TeamID:
				partner = e.PartnerTeamID
			case e.PartnerTeamID:
				partner = e.TeamID
			}
			if partner == "" {
				continue
			}
			out = append(out, Share{Kind: e.Kind, PartnerTeamID: partner, Ratio: ratio(e.Value, d.Alliance), EffectID: e.ID})
		case model.KindSpecialMission:
			if partner, ok := pairedWith(e.Pairs, sourceTeam); ok {
				out = append(out, Share{Kind: e.Kind, PartnerTeamID: partner, Ratio: ratio(e.Value, d.Mission), EffectID: e.ID})
			}
		}
	}
	return out
}

func pairedWith(pairs []model.Pair, teamID string) (string, bool) {
	for _, p := range pairs {
		switch teamID {
		case p[0]:
			return p[1], true
		case p[1]:
			return p[0], true
		}
	}
	return "", false
}

func ratio(v *float64, fallback float64) float64 {
	if v == nil || *v <= 0 {
		return fallback
	}
	return *v
}
