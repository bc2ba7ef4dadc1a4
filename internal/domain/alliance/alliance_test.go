package alliance_test

import (
	"testing"
	"time"

	"github.com/okian/starboard/internal/domain/alliance"
	"github.com/okian/starboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func until(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func TestShares(t *testing.T) {
	defaults := alliance.Defaults{Alliance: 0.2, Mission: 1.0}

	Convey("Given an alliance between a and b", t, func() {
		all := []model.ActiveEffect{{
			ID: "ally", Kind: model.KindAlliance, TeamID: "a", PartnerTeamID: "b",
			Value: model.Float(0.2), CreatedAt: now, ExpiresAt: until(time.Minute),
		}}

		Convey("When a gains stars", func() {
			shares := alliance.Shares(all, "a", now, defaults)

			Convey("Then b should receive 20 percent", func() {
				So(shares, ShouldHaveLength, 1)
				So(shares[0].PartnerTeamID, ShouldEqual, "b")
				So(shares[0].Ratio, ShouldEqual, 0.2)
				So(shares[0].Source(), ShouldEqual, model.SourceAlliance)
			})
		})

		Convey("When b gains stars", func() {
			shares := alliance.Shares(all, "b", now, defaults)

			Convey("Then a should receive the share in the other direction", func() {
				So(shares, ShouldHaveLength, 1)
				So(shares[0].PartnerTeamID, ShouldEqual, "a")
			})
		})

		Convey("When an unrelated team gains stars", func() {
			Convey("Then nothing should be shared", func() {
				So(alliance.Shares(all, "c", now, defaults), ShouldBeEmpty)
			})
		})

		Convey("When a gains stars before the alliance was formed", func() {
			Convey("Then nothing should be shared", func() {
				So(alliance.Shares(all, "a", now.Add(-time.Second), defaults), ShouldBeEmpty)
			})
		})

		Convey("When the alliance has expired", func() {
			Convey("Then nothing should be shared", func() {
				So(alliance.Shares(all, "a", now.Add(time.Minute), defaults), ShouldBeEmpty)
			})
		})
	})

	Convey("Given a special mission without an explicit ratio", t, func() {
		all := []model.ActiveEffect{{
			ID: "mission", Kind: model.KindSpecialMission,
			Pairs:     []model.Pair{{"a", "b"}, {"c", "d"}},
			CreatedAt: now, ExpiresAt: until(time.Minute),
		}}

		Convey("Then d should receive the full gain of c", func() {
			shares := alliance.Shares(all, "c", now, defaults)
			So(shares, ShouldHaveLength, 1)
			So(shares[0].PartnerTeamID, ShouldEqual, "d")
			So(shares[0].Ratio, ShouldEqual, 1.0)
			So(shares[0].Source(), ShouldEqual, model.SourceSpecialMission)
		})
	})

	Convey("Given an alliance without a value and zero defaults", t, func() {
		all := []model.ActiveEffect{{ID: "ally", Kind: model.KindAlliance, TeamID: "a", PartnerTeamID: "b", CreatedAt: now}}

		Convey("Then the built-in 20 percent should apply", func() {
			shares := alliance.Shares(all, "a", now, alliance.Defaults{})
			So(shares[0].Ratio, ShouldEqual, alliance.DefaultAllianceShare)
		})
	})

	Convey("Given both an alliance and a mission involving a", t, func() {
		all := []model.ActiveEffect{
			{ID: "ally", Kind: model.KindAlliance, TeamID: "a", PartnerTeamID: "b", Value: model.Float(0.2), CreatedAt: now},
			{ID: "mission", Kind: model.KindSpecialMission, Pairs: []model.Pair{{"c", "a"}}, CreatedAt: now.Add(time.Second)},
		}

		Convey("Then both partners should get their own share", func() {
			shares := alliance.Shares(all, "a", now.Add(time.Minute), defaults)
			So(shares, ShouldHaveLength, 2)
			So(shares[0].PartnerTeamID, ShouldEqual, "b")
			So(shares[1].PartnerTeamID, ShouldEqual, "c")
		})
	})
}
