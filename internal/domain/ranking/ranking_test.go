package ranking_test

import (
	"testing"

	"github.com/okian/starboard/internal/domain/ranking"
	. "github.com/smartystreets/goconvey/convey"
)

func TestAssign(t *testing.T) {
	Convey("Given stars [10,10,7,3,3,1]", t, func() {
		entries := []ranking.Entry{
			{TeamID: "f", Stars: 1},
			{TeamID: "c", Stars: 7},
			{TeamID: "a", Stars: 10},
			{TeamID: "e", Stars: 3},
			{TeamID: "b", Stars: 10},
			{TeamID: "d", Stars: 3},
		}

		Convey("When assigning points", func() {
			got := ranking.Assign(entries)

			Convey("Then ranks should be 1,1,3,4,4,6 and points 10,10,8,7,7,5", func() {
				ranks := make([]int, len(got))
				points := make([]int, len(got))
				for i, p := range got {
					ranks[i] = p.Rank
					points[i] = p.Points
				}
				So(ranks, ShouldResemble, []int{1, 1, 3, 4, 4, 6})
				So(points, ShouldResemble, []int{10, 10, 8, 7, 7, 5})
			})

			Convey("And ties should be ordered by team id", func() {
				So(got[0].TeamID, ShouldEqual, "a")
				So(got[1].TeamID, ShouldEqual, "b")
			})

			Convey("And the input should be left untouched", func() {
				So(entries[0].TeamID, ShouldEqual, "f")
			})
		})
	})

	Convey("Given more than ten teams with distinct stars", t, func() {
		var entries []ranking.Entry
		for i := 0; i < 12; i++ {
			entries = append(entries, ranking.Entry{TeamID: string(rune('a' + i)), Stars: float64(100 - i)})
		}

		Convey("Then points should floor at zero", func() {
			got := ranking.Assign(entries)
			So(got[9].Points, ShouldEqual, 1)
			So(got[10].Points, ShouldEqual, 0)
			So(got[11].Points, ShouldEqual, 0)
		})
	})

	Convey("Given stars that differ only by float noise", t, func() {
		entries := []ranking.Entry{{TeamID: "a", Stars: 0.1 + 0.2}, {TeamID: "b", Stars: 0.3}}

		Convey("Then they should tie", func() {
			got := ranking.Assign(entries)
			So(got[0].Rank, ShouldEqual, 1)
			So(got[1].Rank, ShouldEqual, 1)
		})
	})

	Convey("Given all teams at zero stars", t, func() {
		got := ranking.Assign([]ranking.Entry{{TeamID: "a"}, {TeamID: "b"}, {TeamID: "c"}})

		Convey("Then every team should share first place", func() {
			for _, p := range got {
				So(p.Rank, ShouldEqual, 1)
				So(p.Points, ShouldEqual, 10)
			}
		})
	})

	Convey("Given no entries", t, func() {
		Convey("Then the result should be empty", func() {
			So(ranking.Assign(nil), ShouldBeEmpty)
		})
	})

	Convey("Given the same entries assigned twice", t, func() {
		entries := []ranking.Entry{{TeamID: "a", Stars: 4}, {TeamID: "b", Stars: 9}}

		Convey("Then the output should be identical", func() {
			So(ranking.Assign(entries), ShouldResemble, ranking.Assign(entries))
		})
	})
}
