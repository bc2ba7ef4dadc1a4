package scoring_test

import (
	"math"
	"testing"
	"time"

	"github.com/okian/starboard/internal/domain/model"
	scoring "github.com/okian/starboard/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func effect(id string, kind model.EffectKind, team, location string, value *float64) model.ActiveEffect {
	exp := now.Add(10 * time.Minute)
	return model.ActiveEffect{
		ID: id, Kind: kind, TeamID: team, LocationID: location, Value: value,
		CreatedAt: now.Add(-time.Minute), ExpiresAt: &exp,
	}
}

func TestResolve(t *testing.T) {
	in := scoring.Input{TeamID: "a", LocationID: "l1", AsOf: now}

	Convey("Given no active effects", t, func() {
		res := scoring.Resolve(nil, in)

		Convey("Then the multiplier should be 1 with no factors", func() {
			So(res.Multiplier, ShouldEqual, 1.0)
			So(res.Factors, ShouldBeEmpty)
		})
	})

	Convey("Given one effect of every multiplicative kind matching the cell", t, func() {
		all := []model.ActiveEffect{
			effect("curse", model.KindEfficiencyCurse, "a", "", model.Float(0.5)),
			effect("boost", model.KindMoraleBoost, "a", "", model.Float(2)),
			effect("focus", model.KindLuckyFocus, "a", "l1", model.Float(2)),
			effect("income", model.KindIncomeShift, "", "l1", model.Float(1.5)),
			effect("golden", model.KindGlobalShift, "", "", model.Float(2)),
		}

		Convey("When resolving", func() {
			res := scoring.Resolve(all, in)

			Convey("Then all of them should multiply in", func() {
				So(res.Multiplier, ShouldAlmostEqual, 0.5*2*2*1.5*2)
				So(len(res.Factors), ShouldEqual, 5)
			})
		})
	})

	Convey("Given effects scoped to other teams and locations", t, func() {
		all := []model.ActiveEffect{
			effect("curse-b", model.KindEfficiencyCurse, "b", "", model.Float(0.3)),
			effect("focus-a-l2", model.KindLuckyFocus, "a", "l2", model.Float(2)),
			effect("focus-b-l1", model.KindLuckyFocus, "b", "l1", model.Float(2)),
			effect("income-l2", model.KindIncomeShift, "", "l2", model.Float(0.5)),
		}

		Convey("Then none should apply", func() {
			So(scoring.Resolve(all, in).Multiplier, ShouldEqual, 1.0)
		})
	})

	Convey("Given non-multiplicative effects", t, func() {
		all := []model.ActiveEffect{
			effect("block", model.KindSkillBlock, "a", "", nil),
			{ID: "ally", Kind: model.KindAlliance, TeamID: "a", PartnerTeamID: "b", Value: model.Float(0.2)},
			{ID: "mission", Kind: model.KindSpecialMission, Pairs: []model.Pair{{"a", "b"}}, Value: model.Float(1)},
		}

		Convey("Then they should be excluded from the product", func() {
			res := scoring.Resolve(all, in)
			So(res.Multiplier, ShouldEqual, 1.0)
			So(res.Factors, ShouldBeEmpty)
		})
	})

	Convey("Given an effect at its expiry instant", t, func() {
		e := effect("boost", model.KindMoraleBoost, "a", "", model.Float(2))
		exp := now
		e.ExpiresAt = &exp

		Convey("Then it should not apply even though no sweep ran", func() {
			So(scoring.Resolve([]model.ActiveEffect{e}, in).Multiplier, ShouldEqual, 1.0)
		})

		Convey("And it should apply one microsecond earlier", func() {
			early := in
			early.AsOf = now.Add(-time.Microsecond)
			So(scoring.Resolve([]model.ActiveEffect{e}, early).Multiplier, ShouldEqual, 2.0)
		})
	})

	Convey("Given two effects registered in opposite orders", t, func() {
		e1 := effect("e1", model.KindMoraleBoost, "a", "", model.Float(1.3))
		e2 := effect("e2", model.KindIncomeShift, "", "l1", model.Float(0.7))

		Convey("Then the realized change should be identical", func() {
			forward := scoring.Resolve([]model.ActiveEffect{e1, e2}, in)
			backward := scoring.Resolve([]model.ActiveEffect{e2, e1}, in)
			So(math.Abs(forward.Multiplier*3-backward.Multiplier*3), ShouldBeLessThan, 1e-12)
			So(forward.Factors, ShouldResemble, backward.Factors)
		})
	})
}
