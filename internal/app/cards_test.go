package service_test

import (
	"errors"
	"testing"
	"time"

	service "github.com/okian/starboard/internal/app"
	"github.com/okian/starboard/internal/domain/effects"
	"github.com/okian/starboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func card(c effects.CardType, activator, target, location string) service.CardRequest {
	return service.CardRequest{SessionID: "s1", Card: c, ActivatorTeamID: activator, TargetTeamID: target, LocationID: location, ActorID: "admin"}
}

func TestPlayCard(t *testing.T) {
	Convey("Given an engine", t, func() {
		f := newFixture(t)

		Convey("When team a curses team b", func() {
			res, err := f.engine.PlayCard(f.ctx, card(effects.CardEfficiencyCurse10, "a", "b", ""))

			Convey("Then b should carry a ten minute curse sourced from the activation", func() {
				So(err, ShouldBeNil)
				So(res.Activation.Category, ShouldEqual, model.CategoryCard)
				So(res.Activation.Status, ShouldEqual, model.ActivationActive)
				So(res.Effects, ShouldHaveLength, 1)
				eff := res.Effects[0]
				So(eff.Kind, ShouldEqual, model.KindEfficiencyCurse)
				So(eff.TeamID, ShouldEqual, "b")
				So(*eff.Value, ShouldEqual, 0.5)
				So(eff.SourceID, ShouldEqual, res.Activation.ID)
				So(*eff.ExpiresAt, ShouldEqual, t0.Add(10*time.Minute))
			})

			Convey("Then b's gains should be halved", func() {
				So(f.delta("b", "l1", 2).Change, ShouldEqual, 1.0)
			})
		})

		Convey("When a card targets nobody", func() {
			_, err := f.engine.PlayCard(f.ctx, card(effects.CardSkillBlock, "a", "", ""))

			Convey("Then it should be rejected as an invalid scope", func() {
				So(errors.Is(err, service.ErrInvalidScope), ShouldBeTrue)
			})
		})

		Convey("When the card is unknown", func() {
			_, err := f.engine.PlayCard(f.ctx, card("wild_card", "a", "", ""))

			Convey("Then it should be rejected as an invalid argument", func() {
				So(errors.Is(err, service.ErrInvalidArgument), ShouldBeTrue)
				So(errors.Is(err, effects.ErrUnknownCard), ShouldBeTrue)
			})
		})

		Convey("When a blocked team tries to play", func() {
			_, err := f.engine.PlayCard(f.ctx, card(effects.CardSkillBlock, "b", "a", ""))
			So(err, ShouldBeNil)
			_, err = f.engine.PlayCard(f.ctx, card(effects.CardMoraleBoost5, "a", "", ""))

			Convey("Then it should be refused", func() {
				So(errors.Is(err, service.ErrSkillBlocked), ShouldBeTrue)
			})

			Convey("Then purify should also be refused while the block lasts", func() {
				_, err := f.engine.PlayCard(f.ctx, card(effects.CardPurify, "a", "", ""))
				So(errors.Is(err, service.ErrSkillBlocked), ShouldBeTrue)
			})
		})

		Convey("When playing a strategic alliance", func() {
			_, err := f.engine.PlayCard(f.ctx, card(effects.CardStrategicAlliance, "a", "c", ""))
			So(err, ShouldBeNil)

			Convey("Then a's gains should be shared with c", func() {
				res := f.delta("a", "l2", 10)
				So(res.Shares, ShouldHaveLength, 1)
				So(f.stars("c", "l2"), ShouldAlmostEqual, 2.0)
			})
		})

		Convey("When playing lucky focus without a location", func() {
			_, err := f.engine.PlayCard(f.ctx, card(effects.CardLuckyFocus, "a", "", ""))

			Convey("Then it should be rejected as an invalid scope", func() {
				So(errors.Is(err, service.ErrInvalidScope), ShouldBeTrue)
			})
		})
	})
}

func TestPlayCardInstants(t *testing.T) {
	Convey("Given a board with some stars", t, func() {
		f := newFixture(t)
		f.delta("a", "l1", 4)
		f.delta("b", "l1", 1)

		Convey("When gifting within the budget", func() {
			req := card(effects.CardStarGift5, "a", "", "")
			req.Allocations = []model.Allocation{
				{TeamID: "c", LocationID: "l1", Amount: 2},
				{TeamID: "c", LocationID: "l1", Amount: 1},
				{TeamID: "d", LocationID: "l2", Amount: 2},
			}
			res, err := f.engine.PlayCard(f.ctx, req)

			Convey("Then each cell should receive its total as a transfer", func() {
				So(err, ShouldBeNil)
				So(f.stars("c", "l1"), ShouldEqual, 3.0)
				So(f.stars("d", "l2"), ShouldEqual, 2.0)
				So(res.Changes, ShouldHaveLength, 2)
				for _, c := range res.Changes {
					So(c.Source, ShouldEqual, model.SourceTransfer)
					So(c.Factors, ShouldBeEmpty)
				}
			})

			Convey("Then points should be recomputed at every touched location", func() {
				So(f.points("a", "l1"), ShouldEqual, 10)
				So(f.points("c", "l1"), ShouldEqual, 9)
				So(f.points("b", "l1"), ShouldEqual, 8)
				So(f.points("d", "l2"), ShouldEqual, 10)
			})

			Convey("Then the instant card should leave nothing active", func() {
				So(res.Activation.Status, ShouldEqual, model.ActivationExpired)
				So(res.Effects, ShouldBeEmpty)
			})
		})

		Convey("When gifting over the budget", func() {
			req := card(effects.CardStarGift3, "a", "", "")
			req.Allocations = []model.Allocation{{TeamID: "c", LocationID: "l1", Amount: 3.5}}
			_, err := f.engine.PlayCard(f.ctx, req)

			Convey("Then nothing should move", func() {
				So(errors.Is(err, service.ErrInvalidArgument), ShouldBeTrue)
				So(f.stars("c", "l1"), ShouldEqual, 0.0)
			})
		})

		Convey("When an eclipse removes more than a team holds", func() {
			req := card(effects.CardStarEclipse3, "a", "", "")
			req.Allocations = []model.Allocation{{TeamID: "b", LocationID: "l1", Amount: 3}}
			res, err := f.engine.PlayCard(f.ctx, req)

			Convey("Then the team should be floored at zero", func() {
				So(err, ShouldBeNil)
				So(f.stars("b", "l1"), ShouldEqual, 0.0)
				So(res.Changes[0].Change, ShouldEqual, -1.0)
				So(*res.Changes[0].Requested, ShouldEqual, -3.0)
			})
		})

		Convey("When a stars are swapped with b by rank steal", func() {
			res, err := f.engine.PlayCard(f.ctx, card(effects.CardRankSteal, "b", "a", "l1"))

			Convey("Then the two cells should trade stars and points", func() {
				So(err, ShouldBeNil)
				So(f.stars("a", "l1"), ShouldEqual, 1.0)
				So(f.stars("b", "l1"), ShouldEqual, 4.0)
				So(f.points("b", "l1"), ShouldEqual, 10)
				So(res.Changes, ShouldHaveLength, 2)
				So(res.Changes[0].Source, ShouldEqual, model.SourceSwap)
				So(res.Activation.Params.SwapTeamIDs, ShouldResemble, []string{"b", "a"})
			})
		})

		Convey("When team a purifies itself", func() {
			older, err := f.engine.PlayCard(f.ctx, card(effects.CardEfficiencyCurse5, "b", "a", ""))
			So(err, ShouldBeNil)
			f.engine = service.New(f.store, service.WithClock(func() time.Time { return t0.Add(time.Minute) }))
			newer, err := f.engine.PlayCard(f.ctx, card(effects.CardEfficiencyCurse15, "c", "a", ""))
			So(err, ShouldBeNil)

			res, err := f.engine.PlayCard(f.ctx, card(effects.CardPurify, "a", "", ""))

			Convey("Then only the most recent curse should be lifted", func() {
				So(err, ShouldBeNil)
				So(res.Closed, ShouldHaveLength, 1)
				So(res.Closed[0].ID, ShouldEqual, newer.Effects[0].ID)
				list, err := f.engine.ActiveEffects(f.ctx, service.EffectQuery{SessionID: "s1", TeamID: "a"})
				So(err, ShouldBeNil)
				So(list, ShouldHaveLength, 1)
				So(list[0].ID, ShouldEqual, older.Effects[0].ID)
			})
		})

		Convey("When purifying with nothing to lift", func() {
			res, err := f.engine.PlayCard(f.ctx, card(effects.CardPurify, "a", "", ""))

			Convey("Then it should succeed without closing anything", func() {
				So(err, ShouldBeNil)
				So(res.Closed, ShouldBeEmpty)
			})
		})
	})
}

func TestTriggerEvent(t *testing.T) {
	Convey("Given an engine with an identity shuffle", t, func() {
		f := newFixture(t, service.WithShuffle(func(int, func(i, j int)) {}))

		Convey("When golden time starts", func() {
			res, err := f.engine.TriggerEvent(f.ctx, service.EventRequest{SessionID: "s1", Event: effects.EventGoldenTime})

			Convey("Then every gain should be doubled for ten minutes", func() {
				So(err, ShouldBeNil)
				So(res.Activation.Category, ShouldEqual, model.CategoryEvent)
				So(*res.Effects[0].ExpiresAt, ShouldEqual, t0.Add(10*time.Minute))
				So(f.delta("d", "l2", 1).Change, ShouldEqual, 2.0)
			})
		})

		Convey("When an income decrease is given a custom duration", func() {
			res, err := f.engine.TriggerEvent(f.ctx, service.EventRequest{
				SessionID: "s1", Event: effects.EventIncomeDecrease, LocationID: "l1", DurationMinutes: minutes(3),
			})

			Convey("Then it should apply at that location for that long", func() {
				So(err, ShouldBeNil)
				So(*res.Effects[0].ExpiresAt, ShouldEqual, t0.Add(3*time.Minute))
				So(f.delta("a", "l1", 2).Change, ShouldEqual, 1.0)
				So(f.delta("a", "l2", 2).Change, ShouldEqual, 2.0)
			})
		})

		Convey("When an income event has no location", func() {
			_, err := f.engine.TriggerEvent(f.ctx, service.EventRequest{SessionID: "s1", Event: effects.EventIncomeIncrease})

			Convey("Then it should be rejected as an invalid scope", func() {
				So(errors.Is(err, service.ErrInvalidScope), ShouldBeTrue)
			})
		})

		Convey("When a special mission starts", func() {
			res, err := f.engine.TriggerEvent(f.ctx, service.EventRequest{SessionID: "s1", Event: effects.EventSpecialMission})

			Convey("Then teams should be paired in shuffled order", func() {
				So(err, ShouldBeNil)
				So(res.Effects[0].Pairs, ShouldResemble, []model.Pair{{"a", "b"}, {"c", "d"}})
				So(res.Activation.Params.PairNames, ShouldEqual, "Team a & Team b, Team c & Team d")
			})

			Convey("Then paired teams should share gains in full", func() {
				f.delta("c", "l1", 3)
				So(f.stars("d", "l1"), ShouldAlmostEqual, 3.0)
				So(f.stars("a", "l1"), ShouldEqual, 0.0)
			})
		})

		Convey("When a special mission runs in a session with one team", func() {
			seed(t, f.ctx, f.store, "solo", []string{"x"}, []string{"y"})
			_, err := f.engine.TriggerEvent(f.ctx, service.EventRequest{SessionID: "solo", Event: effects.EventSpecialMission})

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, service.ErrInvalidArgument), ShouldBeTrue)
			})
		})

		Convey("When a supply drop arrives", func() {
			res, err := f.engine.TriggerEvent(f.ctx, service.EventRequest{SessionID: "s1", Event: effects.EventSupplyDrop})

			Convey("Then only the activation should be recorded", func() {
				So(err, ShouldBeNil)
				So(res.Effects, ShouldBeEmpty)
				So(res.Activation.Status, ShouldEqual, model.ActivationExpired)
			})
		})
	})
}

func TestCloseActivation(t *testing.T) {
	Convey("Given a played alliance card", t, func() {
		f := newFixture(t)
		played, err := f.engine.PlayCard(f.ctx, card(effects.CardStrategicAlliance, "a", "b", ""))
		So(err, ShouldBeNil)

		Convey("When closing the activation twice", func() {
			first, err1 := f.engine.CloseActivation(f.ctx, played.Activation.ID)
			second, err2 := f.engine.CloseActivation(f.ctx, played.Activation.ID)

			Convey("Then its effect should be closed once and the activation expired", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(first.Closed, ShouldHaveLength, 1)
				So(second.Closed, ShouldBeEmpty)
				So(first.Activation.Status, ShouldEqual, model.ActivationExpired)
				So(second.Activation.Status, ShouldEqual, model.ActivationExpired)
			})

			Convey("Then gains should no longer be shared", func() {
				So(f.delta("a", "l1", 5).Shares, ShouldBeEmpty)
			})
		})

		Convey("When closing an unknown activation", func() {
			_, err := f.engine.CloseActivation(f.ctx, "missing")

			Convey("Then it should fail with not found", func() {
				So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}
