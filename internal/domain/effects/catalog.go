package effects

import (
	"github.com/okian/starboard/internal/domain/model"
)

// CardType names a skill card.
type CardType string

// Skill cards.
const (
	CardEfficiencyCurse5  CardType = "efficiency_curse_5"
	CardEfficiencyCurse10 CardType = "efficiency_curse_10"
	CardEfficiencyCurse15 CardType = "efficiency_curse_15"
	CardMoraleBoost5      CardType = "morale_boost_5"
	CardMoraleBoost10     CardType = "morale_boost_10"
	CardMoraleBoost15     CardType = "morale_boost_15"
	CardLuckyFocus        CardType = "lucky_focus"
	CardStarGift3         CardType = "star_gift_3"
	CardStarGift5         CardType = "star_gift_5"
	CardStarGift10        CardType = "star_gift_10"
	CardStarEclipse3      CardType = "star_eclipse_3"
	CardStarEclipse5      CardType = "star_eclipse_5"
	CardStarEclipse10     CardType = "star_eclipse_10"
	CardSkillBlock        CardType = "skill_block"
	CardPurify            CardType = "purify"
	CardThornArmor        CardType = "thorn_armor"
	CardStrategicAlliance CardType = "strategic_alliance"
	CardTimeFreeze        CardType = "time_freeze"
	CardRankSteal         CardType = "rank_steal"
)

// Subject selects which team a card's effect lands on.
type Subject int

// Card subjects.
const (
	SubjectActivator Subject = iota
	SubjectTarget
)

// Instant names the immediate action of a card, if any.
type Instant int

// Instant actions.
const (
	InstantNone Instant = iota
	InstantGift
	InstantEclipse
	InstantSwap
	InstantPurify
)

// CardSpec describes what playing a card does.
type CardSpec struct {
	Type          CardType
	Effect        model.EffectKind // empty when the card creates no effect
	Value         *float64
	Duration      int // minutes; zero for cards without a timed effect
	Subject       Subject
	NeedsTarget   bool
	NeedsLocation bool
	Instant       Instant
	Budget        float64 // total stars an allocation card may move
}

var cards = map[CardType]CardSpec{
	CardEfficiencyCurse5:  {Effect: model.KindEfficiencyCurse, Value: model.Float(0.3), Duration: 5, Subject: SubjectTarget, NeedsTarget: true},
	CardEfficiencyCurse10: {Effect: model.KindEfficiencyCurse, Value: model.Float(0.5), Duration: 10, Subject: SubjectTarget, NeedsTarget: true},
	CardEfficiencyCurse15: {Effect: model.KindEfficiencyCurse, Value: model.Float(0.7), Duration: 15, Subject: SubjectTarget, NeedsTarget: true},
	CardMoraleBoost5:      {Effect: model.KindMoraleBoost, Value: model.Float(2.0), Duration: 5},
	CardMoraleBoost10:     {Effect: model.KindMoraleBoost, Value: model.Float(1.5), Duration: 10},
	CardMoraleBoost15:     {Effect: model.KindMoraleBoost, Value: model.Float(1.3), Duration: 15},
	CardLuckyFocus:        {Effect: model.KindLuckyFocus, Value: model.Float(2.0), Duration: 10, NeedsLocation: true},
	CardStarGift3:         {Instant: InstantGift, Budget: 3},
	CardStarGift5:         {Instant: InstantGift, Budget: 5},
	CardStarGift10:        {Instant: InstantGift, Budget: 10},
	CardStarEclipse3:      {Instant: InstantEclipse, Budget: 3},
	CardStarEclipse5:      {Instant: InstantEclipse, Budget: 5},
	CardStarEclipse10:     {Instant: InstantEclipse, Budget: 10},
	CardSkillBlock:        {Effect: model.KindSkillBlock, Duration: 10, Subject: SubjectTarget, NeedsTarget: true},
	CardPurify:            {Instant: InstantPurify},
	CardThornArmor:        {},
	CardStrategicAlliance: {Effect: model.KindAlliance, Value: model.Float(0.2), Duration: 20, NeedsTarget: true},
	CardTimeFreeze:        {Duration: 8, NeedsLocation: true},
	CardRankSteal:         {Instant: InstantSwap, NeedsTarget: true, NeedsLocation: true},
}

// Card looks up a skill card.
func Card(t CardType) (CardSpec, bool) {
	spec, ok := cards[t]
	if !ok {
		return CardSpec{}, false
	}
	spec.Type = t
	return spec, true
}

// EffectSpec builds the effect a card creates for the given activation.
// ok is false for cards that create no effect.
func (c CardSpec) EffectSpec(activatorID, targetID, locationID string) (Spec, bool) {
	if c.Effect == "" {
		return Spec{}, false
	}
	s := Spec{Kind: c.Effect, TeamID: activatorID, Value: c.Value}
	if c.Subject == SubjectTarget {
		s.TeamID = targetID
	}
	switch c.Effect {
	case model.KindLuckyFocus:
		s.LocationID = locationID
	case model.KindAlliance:
		s.PartnerTeamID = targetID
	}
	return s, true
}

// Negative reports whether an effect kind hurts the team it lands on and
// can therefore be purified.
func Negative(kind model.EffectKind) bool {
	return kind == model.KindEfficiencyCurse || kind == model.KindSkillBlock
}

// EventType names a random event.
type EventType string

// Random events.
const (
	EventIncomeDecrease EventType = "income_decrease"
	EventIncomeIncrease EventType = "income_increase"
	EventSupplyDrop     EventType = "supply_drop"
	EventGoldenTime     EventType = "golden_time"
	EventLowTime        EventType = "low_time"
	EventSpecialMission EventType = "special_mission"
)

// EventSpec describes what triggering an event does.
type EventSpec struct {
	Type          EventType
	Effect        model.EffectKind
	Value         *float64
	Duration      int
	NeedsLocation bool
	Pairing       bool
}

var events = map[EventType]EventSpec{
	EventIncomeDecrease: {Effect: model.KindIncomeShift, Value: model.Float(0.5), Duration: 15, NeedsLocation: true},
	EventIncomeIncrease: {Effect: model.KindIncomeShift, Value: model.Float(1.5), Duration: 15, NeedsLocation: true},
	EventSupplyDrop:     {},
	EventGoldenTime:     {Effect: model.KindGlobalShift, Value: model.Float(2.0), Duration: 10},
	EventLowTime:        {Effect: model.KindGlobalShift, Value: model.Float(0.5), Duration: 10},
	EventSpecialMission: {Effect: model.KindSpecialMission, Value: model.Float(1.0), Duration: 8, Pairing: true},
}

// Event looks up a random event.
func Event(t EventType) (EventSpec, bool) {
	spec, ok := events[t]
	if !ok {
		return EventSpec{}, false
	}
	spec.Type = t
	return spec, true
}

// EffectSpec builds the effect an event creates. ok is false for events
// without an effect.
func (e EventSpec) EffectSpec(locationID string, pairs []model.Pair) (Spec, bool) {
	if e.Effect == "" {
		return Spec{}, false
	}
	s := Spec{Kind: e.Effect, Value: e.Value}
	if e.NeedsLocation {
		s.LocationID = locationID
	}
	if e.Pairing {
		s.Pairs = pairs
	}
	return s, true
}

// RandomPairs shuffles team ids and pairs them off in order. With an odd
// count the last team stays unpaired.
func RandomPairs(teamIDs []string, shuffle func(n int, swap func(i, j int))) []model.Pair {
	ids := append([]string(nil), teamIDs...)
	if shuffle != nil {
		shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	}
	pairs := make([]model.Pair, 0, len(ids)/2)
	for i := 0; i+1 < len(ids); i += 2 {
		pairs = append(pairs, model.Pair{ids[i], ids[i+1]})
	}
	return pairs
}
