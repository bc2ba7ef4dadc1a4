package effects_test

import (
	"errors"
	"testing"

	"github.com/okian/starboard/internal/domain/effects"
	"github.com/okian/starboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSpecValidate(t *testing.T) {
	Convey("Given effect specs", t, func() {
		cases := []struct {
			name string
			spec effects.Spec
			ok   bool
		}{
			{"team boost", effects.Spec{Kind: model.KindMoraleBoost, TeamID: "a", Value: model.Float(1.5)}, true},
			{"boost without team", effects.Spec{Kind: model.KindMoraleBoost, Value: model.Float(1.5)}, false},
			{"curse with location", effects.Spec{Kind: model.KindEfficiencyCurse, TeamID: "a", LocationID: "l", Value: model.Float(0.5)}, false},
			{"focus", effects.Spec{Kind: model.KindLuckyFocus, TeamID: "a", LocationID: "l", Value: model.Float(2)}, true},
			{"focus without location", effects.Spec{Kind: model.KindLuckyFocus, TeamID: "a", Value: model.Float(2)}, false},
			{"income shift", effects.Spec{Kind: model.KindIncomeShift, LocationID: "l", Value: model.Float(0.5)}, true},
			{"income shift without location", effects.Spec{Kind: model.KindIncomeShift, Value: model.Float(0.5)}, false},
			{"global shift", effects.Spec{Kind: model.KindGlobalShift, Value: model.Float(2)}, true},
			{"global shift with team", effects.Spec{Kind: model.KindGlobalShift, TeamID: "a", Value: model.Float(2)}, false},
			{"zero multiplier", effects.Spec{Kind: model.KindGlobalShift, Value: model.Float(0)}, false},
			{"missing multiplier", effects.Spec{Kind: model.KindGlobalShift}, false},
			{"alliance", effects.Spec{Kind: model.KindAlliance, TeamID: "a", PartnerTeamID: "b"}, true},
			{"self alliance", effects.Spec{Kind: model.KindAlliance, TeamID: "a", PartnerTeamID: "a"}, false},
			{"alliance ratio above one", effects.Spec{Kind: model.KindAlliance, TeamID: "a", PartnerTeamID: "b", Value: model.Float(1.5)}, false},
			{"mission", effects.Spec{Kind: model.KindSpecialMission, Pairs: []model.Pair{{"a", "b"}, {"c", "d"}}}, true},
			{"mission without pairs", effects.Spec{Kind: model.KindSpecialMission}, false},
			{"mission repeated team", effects.Spec{Kind: model.KindSpecialMission, Pairs: []model.Pair{{"a", "b"}, {"b", "c"}}}, false},
			{"skill block", effects.Spec{Kind: model.KindSkillBlock, TeamID: "a"}, true},
			{"skill block with value", effects.Spec{Kind: model.KindSkillBlock, TeamID: "a", Value: model.Float(1)}, false},
			{"unknown kind", effects.Spec{Kind: "time_freeze"}, false},
		}

		for _, tc := range cases {
			Convey("When validating "+tc.name, func() {
				err := tc.spec.Validate()

				if tc.ok {
					So(err, ShouldBeNil)
				} else {
					So(errors.Is(err, effects.ErrInvalidScope), ShouldBeTrue)
				}
			})
		}
	})
}
