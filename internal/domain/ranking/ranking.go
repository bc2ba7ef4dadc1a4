// Package ranking turns the stars at one location into ranked points.
package ranking

import (
	"cmp"
	"math"
	"slices"
)

// Points rules: first place earns TopPoints and each rank below earns one less.
const (
	TopPoints = 10
	starScale = 1_000_000 // stars compared at 1e-6 resolution
)

// Entry is one team's stars at a location.
type Entry struct {
	TeamID string
	Stars  float64
}

// Placement is the rank and points assigned to a team.
type Placement struct {
	TeamID string
	Stars  float64
	Rank   int
	Points int
}

// starKey converts stars to fixed point so accumulated float noise
// (0.1+0.2) does not split a tie.
func starKey(x float64) int64 {
	if math.IsNaN(x) {
		return 0
	}
	return int64(math.Round(x * starScale))
}

// Assign ranks entries by stars descending using standard competition
// ranking: tied entries share a rank and the next distinct value takes its
// 1-based position. Points are TopPoints+1-rank, floored at zero.
func Assign(entries []Entry) []Placement {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b Entry) int {
		if c := cmp.Compare(starKey(b.Stars), starKey(a.Stars)); c != 0 {
			return c
		}
		return cmp.Compare(a.TeamID, b.TeamID)
	})

	out := make([]Placement, len(sorted))
	rank := 0
	for i, e := range sorted {
		if i == 0 || starKey(e.Stars) != starKey(sorted[i-1].Stars) {
			rank = i + 1
		}
		out[i] = Placement{TeamID: e.TeamID, Stars: e.Stars, Rank: rank, Points: PointsForRank(rank)}
	}
	return out
}

// PointsForRank returns the points earned at rank.
func PointsForRank(rank int) int {
	return max(0, TopPoints+1-rank)
}
