package service

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/okian/starboard/internal/adapters/repository"
	"github.com/okian/starboard/internal/domain/model"
	"github.com/okian/starboard/internal/domain/types"
)

// Standings totals each team's points across all locations of a session,
// with total stars breaking ties. limit <= 0 returns every team.
func (e *Engine) Standings(ctx context.Context, sessionID string, limit int) ([]types.Standing, error) {
	const op = "standings"
	if _, err := e.store.Session(ctx, sessionID); err != nil {
		return nil, wrap(op, err)
	}
	teams, err := e.store.Teams(ctx, sessionID)
	if err != nil {
		return nil, wrap(op, err)
	}
	cells, err := e.store.SessionCells(ctx, sessionID)
	if err != nil {
		return nil, wrap(op, err)
	}

	type total struct {
		team   model.Team
		points int
		stars  float64
	}
	totals := make(map[string]*total, len(teams))
	rows := make([]*total, 0, len(teams))
	for _, t := range teams {
		row := &total{team: t}
		totals[t.ID] = row
		rows = append(rows, row)
	}
	for _, c := range cells {
		if row, ok := totals[c.TeamID]; ok {
			row.points += c.Points
			row.stars += c.Stars
		}
	}

	// Stars compared at 1e-6 like location ranking.
	starKey := func(x float64) int64 { return int64(math.Round(x * 1e6)) }
	slices.SortStableFunc(rows, func(a, b *total) int {
		if c := cmp.Compare(b.points, a.points); c != 0 {
			return c
		}
		return cmp.Compare(starKey(b.stars), starKey(a.stars))
	})

	out := make([]types.Standing, 0, len(rows))
	rank := 0
	for i, row := range rows {
		if i == 0 || row.points != rows[i-1].points || starKey(row.stars) != starKey(rows[i-1].stars) {
			rank = i + 1
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, types.Standing{
			Rank:     rank,
			TeamID:   row.team.ID,
			TeamName: row.team.Name,
			Color:    row.team.Color,
			Points:   row.points,
			Stars:    row.stars,
		})
	}
	return out, nil
}

// Cells lists the cells at a location.
func (e *Engine) Cells(ctx context.Context, locationID string) ([]types.CellView, error) {
	const op = "cells"
	if _, err := e.store.Location(ctx, locationID); err != nil {
		return nil, wrap(op, err)
	}
	cells, err := e.store.CellsAt(ctx, locationID)
	if err != nil {
		return nil, wrap(op, err)
	}
	out := make([]types.CellView, len(cells))
	for i, c := range cells {
		out[i] = types.CellView{TeamID: c.TeamID, LocationID: c.LocationID, Stars: c.Stars, Points: c.Points}
	}
	return out, nil
}

// ChangeLogs lists change log entries newest first with the total match count.
func (e *Engine) ChangeLogs(ctx context.Context, q repository.LogQuery) ([]model.ChangeLogEntry, int, error) {
	entries, total, err := e.store.ChangeLogs(ctx, q)
	if err != nil {
		return nil, 0, wrap("change logs", err)
	}
	return entries, total, nil
}
