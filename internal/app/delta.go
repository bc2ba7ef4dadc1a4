package service

import (
	"context"
	"errors"
	"math"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/starboard/internal/adapters/repository"
	"github.com/okian/starboard/internal/domain/alliance"
	"github.com/okian/starboard/internal/domain/model"
	"github.com/okian/starboard/internal/domain/scoring"
	"github.com/okian/starboard/pkg/logger"
	"github.com/okian/starboard/pkg/metrics"
)

// DeltaRequest asks for a star change at one cell.
type DeltaRequest struct {
	TeamID     string
	LocationID string
	Delta      float64
	ActorID    string
	At         time.Time // zero means now
	RequestID  string    // optional; repeats return the first result
}

// DeltaResult reports what a star change did.
type DeltaResult struct {
	TeamID      string        `json:"team_id"`
	LocationID  string        `json:"location_id"`
	EntryID     string        `json:"entry_id"`
	OldStars    float64       `json:"old_stars"`
	Stars       float64       `json:"stars"`
	Points      int           `json:"points"`
	PointsStale bool          `json:"points_stale,omitempty"`
	Requested   float64       `json:"requested"`
	Change      float64       `json:"change"`
	Multiplier  float64       `json:"multiplier"`
	Factors     []float64     `json:"factors"`
	Clamped     bool          `json:"clamped"`
	Shares      []ShareResult `json:"shares"`
	Duplicate   bool          `json:"duplicate,omitempty"`
	At          time.Time     `json:"at"`
}

// ShareResult is the outcome of one partner share. A failed share never
// undoes the source change.
type ShareResult struct {
	Kind          model.EffectKind `json:"kind"`
	PartnerTeamID string           `json:"partner_team_id"`
	Ratio         float64          `json:"ratio"`
	EntryID       string           `json:"entry_id,omitempty"`
	Change        float64          `json:"change"`
	Stars         float64          `json:"stars"`
	Skipped       bool             `json:"skipped,omitempty"`
	Error         string           `json:"error,omitempty"`
}

func (r DeltaRequest) validate() error {
	const op = "apply delta"
	switch {
	case r.TeamID == "":
		return fail(op, ErrInvalidArgument, "team id is required")
	case r.LocationID == "":
		return fail(op, ErrInvalidArgument, "location id is required")
	case math.IsNaN(r.Delta) || math.IsInf(r.Delta, 0):
		return fail(op, ErrInvalidArgument, "delta must be a finite number")
	}
	return nil
}

// ApplyDelta multiplies the requested delta by every matching active
// effect, floors the cell at zero, commits stars and audit entry together,
// shares a gain with partner teams and recomputes points at the location.
// Changes to one cell are serialized; a request id makes retries safe.
func (e *Engine) ApplyDelta(ctx context.Context, req DeltaRequest) (DeltaResult, error) {
	if err := req.validate(); err != nil {
		metrics.RecordDelta(outcome(err))
		return DeltaResult{}, err
	}
	if req.RequestID == "" {
		return e.applyDelta(ctx, req)
	}

	if res, ok := e.seen.Lookup(ctx, req.RequestID); ok {
		metrics.RecordDuplicateRequest()
		res.Duplicate = true
		return res, nil
	}
	v, err, _ := e.flight.Do(req.RequestID, func() (any, error) {
		if res, ok := e.seen.Lookup(ctx, req.RequestID); ok {
			metrics.RecordDuplicateRequest()
			res.Duplicate = true
			return res, nil
		}
		res, err := e.applyDelta(ctx, req)
		if err != nil {
			return DeltaResult{}, err
		}
		e.seen.Remember(ctx, req.RequestID, res)
		return res, nil
	})
	if err != nil {
		return DeltaResult{}, err
	}
	return v.(DeltaResult), nil
}

func (e *Engine) applyDelta(ctx context.Context, req DeltaRequest) (DeltaResult, error) {
	start := time.Now()
	at := e.at(req.At)
	key := model.CellKey{TeamID: req.TeamID, LocationID: req.LocationID}

	res, all, err := e.commitDelta(ctx, key, req, at)
	metrics.RecordDelta(outcome(err))
	if err != nil {
		e.logger.Warn(ctx, "delta rejected",
			logger.String("team_id", req.TeamID),
			logger.String("location_id", req.LocationID),
			logger.Float64("delta", req.Delta),
			logger.Error(err),
		)
		return DeltaResult{}, err
	}
	metrics.RecordRealizedChange(res.Change)
	if res.Clamped {
		metrics.RecordClamp()
	}
	e.applied.Add(1)

	if res.Change > 0 {
		res.Shares = e.propagate(ctx, key, res.Change, req.ActorID, at, all)
	}

	points, err := e.recompute(ctx, req.LocationID)
	if err != nil {
		// The change is committed; the next recompute at this location
		// repairs the points.
		res.PointsStale = true
		e.logger.Error(ctx, "recompute after delta failed",
			logger.String("location_id", req.LocationID),
			logger.Error(err),
		)
	} else {
		res.Points = points[req.TeamID]
	}

	metrics.RecordMutationLatency(float64(time.Since(start).Microseconds()) / 1000)
	e.logger.Debug(ctx, "delta applied",
		logger.String("team_id", req.TeamID),
		logger.String("location_id", req.LocationID),
		logger.Float64("requested", req.Delta),
		logger.Float64("change", res.Change),
		logger.Float64("stars", res.Stars),
		logger.Int("shares", len(res.Shares)),
	)
	return res, nil
}

// commitDelta performs the serialized read-multiply-clamp-write of one
// cell. It returns the open effects it resolved against so propagation
// sees the same snapshot.
func (e *Engine) commitDelta(ctx context.Context, key model.CellKey, req DeltaRequest, at time.Time) (DeltaResult, []model.ActiveEffect, error) {
	const op = "apply delta"

	cell, err := e.store.Cell(ctx, key)
	if err != nil {
		return DeltaResult{}, nil, wrap(op, err)
	}
	all, err := e.store.OpenEffects(ctx, cell.SessionID)
	if err != nil {
		return DeltaResult{}, nil, wrap(op, err)
	}
	mult := scoring.Resolve(all, scoring.Input{TeamID: key.TeamID, LocationID: key.LocationID, AsOf: at})
	requested := req.Delta

	var res DeltaResult
	_, err = e.commitCells(ctx, at, []model.CellKey{key}, func(cur []model.StarCell) ([]repository.Commit, error) {
		c := cur[0]
		realized := requested * mult.Multiplier
		next := math.Max(0, c.Stars+realized)
		entry := model.ChangeLogEntry{
			ID:         newID(),
			SessionID:  c.SessionID,
			ActorID:    req.ActorID,
			TeamID:     key.TeamID,
			LocationID: key.LocationID,
			OldStars:   c.Stars,
			NewStars:   next,
			Change:     next - c.Stars,
			Requested:  &requested,
			Factors:    slices.Clone(mult.Factors),
			Source:     model.SourceDelta,
			CreatedAt:  at,
		}
		res = DeltaResult{
			TeamID:     key.TeamID,
			LocationID: key.LocationID,
			EntryID:    entry.ID,
			OldStars:   c.Stars,
			Stars:      next,
			Points:     c.Points,
			Requested:  requested,
			Change:     entry.Change,
			Multiplier: mult.Multiplier,
			Factors:    entry.Factors,
			Clamped:    c.Stars+realized < 0,
			At:         at,
		}
		return []repository.Commit{{Key: key, Expected: c.Stars, Stars: next, Entry: entry}}, nil
	})
	if err != nil {
		return DeltaResult{}, nil, wrap(op, err)
	}
	return res, all, nil
}

// commitCells locks keys, reads them and commits what build returns,
// retrying on compare-and-set conflicts from writers outside this process.
// Published entries are the ones actually committed.
func (e *Engine) commitCells(ctx context.Context, at time.Time, keys []model.CellKey,
	build func(cur []model.StarCell) ([]repository.Commit, error),
) ([]model.StarCell, error) {
	lockKeys := make([]string, len(keys))
	for i, k := range keys {
		lockKeys[i] = cellLockKey(k)
	}
	unlock := e.cells.LockAll(lockKeys...)
	defer unlock()

	for attempt := 0; ; attempt++ {
		cur := make([]model.StarCell, len(keys))
		for i, k := range keys {
			c, err := e.store.Cell(ctx, k)
			if err != nil {
				return nil, err
			}
			cur[i] = c
		}
		commits, err := build(cur)
		if err != nil {
			return nil, err
		}
		if len(commits) == 0 {
			return cur, nil
		}
		out, err := e.store.CommitStars(ctx, at, commits...)
		if err == nil {
			entries := make([]model.ChangeLogEntry, len(commits))
			for i := range commits {
				entries[i] = commits[i].Entry
			}
			e.publish(ctx, entries...)
			return out, nil
		}
		if !errors.Is(err, repository.ErrConflict) || attempt >= e.conflictRetries {
			return nil, err
		}
		metrics.RecordConflictRetry()
		e.logger.Debug(ctx, "star commit conflict, retrying", logger.Int("attempt", attempt+1))
	}
}

// propagate applies each partner's share of a positive change. Shares are
// one hop: partner writes never propagate further.
func (e *Engine) propagate(ctx context.Context, src model.CellKey, change float64, actorID string,
	at time.Time, all []model.ActiveEffect,
) []ShareResult {
	if change <= 0 {
		return nil
	}
	shares := alliance.Shares(all, src.TeamID, at, e.shares)
	if len(shares) == 0 {
		return nil
	}

	results := make([]ShareResult, len(shares))
	var g errgroup.Group
	for i, sh := range shares {
		g.Go(func() error {
			results[i] = e.applyShare(ctx, src, sh, change, actorID, at)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Engine) applyShare(ctx context.Context, src model.CellKey, sh alliance.Share, change float64,
	actorID string, at time.Time,
) ShareResult {
	const op = "share"
	res := ShareResult{Kind: sh.Kind, PartnerTeamID: sh.PartnerTeamID, Ratio: sh.Ratio}
	key := model.CellKey{TeamID: sh.PartnerTeamID, LocationID: src.LocationID}
	requested := change

	_, err := e.commitCells(ctx, at, []model.CellKey{key}, func(cur []model.StarCell) ([]repository.Commit, error) {
		c := cur[0]
		next := math.Max(0, c.Stars+change*sh.Ratio)
		entry := model.ChangeLogEntry{
			ID:         newID(),
			SessionID:  c.SessionID,
			ActorID:    actorID,
			TeamID:     key.TeamID,
			LocationID: key.LocationID,
			OldStars:   c.Stars,
			NewStars:   next,
			Change:     next - c.Stars,
			Requested:  &requested,
			Factors:    []float64{sh.Ratio},
			Source:     sh.Source(),
			CreatedAt:  at,
		}
		res.EntryID = entry.ID
		res.Change = entry.Change
		res.Stars = next
		return []repository.Commit{{Key: key, Expected: c.Stars, Stars: next, Entry: entry}}, nil
	})

	switch {
	case err == nil:
		e.shared.Add(1)
		metrics.RecordShare(string(sh.Kind), "applied")
		metrics.RecordRealizedChange(res.Change)
	case errors.Is(err, repository.ErrNotFound):
		res = ShareResult{Kind: sh.Kind, PartnerTeamID: sh.PartnerTeamID, Ratio: sh.Ratio, Skipped: true}
		metrics.RecordShare(string(sh.Kind), "skipped")
		e.logger.Warn(ctx, "partner has no cell at location, share skipped",
			logger.String("team_id", src.TeamID),
			logger.String("partner_team_id", sh.PartnerTeamID),
			logger.String("location_id", src.LocationID),
			logger.String("effect_id", sh.EffectID),
		)
	default:
		err = wrap(op, err)
		res = ShareResult{Kind: sh.Kind, PartnerTeamID: sh.PartnerTeamID, Ratio: sh.Ratio, Error: err.Error()}
		metrics.RecordShare(string(sh.Kind), outcome(err))
		e.logger.Error(ctx, "partner share failed",
			logger.String("team_id", src.TeamID),
			logger.String("partner_team_id", sh.PartnerTeamID),
			logger.String("location_id", src.LocationID),
			logger.Error(err),
		)
	}
	return res
}
