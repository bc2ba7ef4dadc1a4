package service

import (
	"context"
	"time"

	"github.com/okian/starboard/internal/domain/ranking"
	"github.com/okian/starboard/pkg/logger"
	"github.com/okian/starboard/pkg/metrics"
)

// Recompute ranks every cell at a location by stars and stores the points.
// It is idempotent and safe to call redundantly.
func (e *Engine) Recompute(ctx context.Context, locationID string) error {
	const op = "recompute"
	if locationID == "" {
		return fail(op, ErrInvalidArgument, "location id is required")
	}
	if _, err := e.store.Location(ctx, locationID); err != nil {
		return wrap(op, err)
	}
	if _, err := e.recompute(ctx, locationID); err != nil {
		return wrap(op, err)
	}
	return nil
}

// recompute returns the points it stored by team. Recomputes of one
// location are serialized so an older snapshot never overwrites a newer one.
func (e *Engine) recompute(ctx context.Context, locationID string) (map[string]int, error) {
	unlock := e.locations.Lock(locationID)
	defer unlock()

	start := time.Now()
	cells, err := e.store.CellsAt(ctx, locationID)
	if err != nil {
		return nil, err
	}
	entries := make([]ranking.Entry, len(cells))
	for i, c := range cells {
		entries[i] = ranking.Entry{TeamID: c.TeamID, Stars: c.Stars}
	}

	points := make(map[string]int, len(cells))
	for _, p := range ranking.Assign(entries) {
		points[p.TeamID] = p.Points
	}
	if err := e.store.SetPoints(ctx, locationID, points); err != nil {
		return nil, err
	}

	metrics.RecordRecompute(float64(time.Since(start).Microseconds()) / 1000)
	e.logger.Debug(ctx, "points recomputed",
		logger.String("location_id", locationID),
		logger.Int("cells", len(cells)),
	)
	return points, nil
}

// recomputeAll recomputes each distinct location, logging failures.
func (e *Engine) recomputeAll(ctx context.Context, locationIDs ...string) {
	seen := make(map[string]struct{}, len(locationIDs))
	for _, id := range locationIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, err := e.recompute(ctx, id); err != nil {
			e.logger.Error(ctx, "recompute failed",
				logger.String("location_id", id),
				logger.Error(err),
			)
		}
	}
}
