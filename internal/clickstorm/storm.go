package clickstorm

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/okian/starboard/pkg/logger"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// starTolerance absorbs float noise when comparing star totals.
const starTolerance = 1e-6

// Config describes one storm against a single cell.
type Config struct {
	TeamID     string
	LocationID string
	Count      int     // number of deltas to fire
	Delta      float64 // requested change per click
	Workers    int     // concurrent requests in flight
	Rate       float64 // clicks per second; zero means unlimited
	ActorID    string
}

func (c Config) validate() error {
	switch {
	case c.TeamID == "" || c.LocationID == "":
		return fmt.Errorf("%w: team and location are required", ErrInvalidConfig)
	case c.Count < 1:
		return fmt.Errorf("%w: count must be positive", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case c.Rate < 0 || math.IsNaN(c.Rate):
		return fmt.Errorf("%w: rate must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Report is what a storm observed.
type Report struct {
	Sent          int
	Failed        int
	InitialStars  float64
	FinalStars    float64
	RealizedSum   float64 // sum of "change" over successful responses
	LogsAdded     int
	Duration      time.Duration
	ClicksPerSec  float64
	FirstFailures []string
}

// Consistent reports whether no change was lost or duplicated.
func (r Report) Consistent() bool {
	return r.Failed == 0 &&
		math.Abs(r.FinalStars-(r.InitialStars+r.RealizedSum)) <= starTolerance &&
		r.LogsAdded == r.Sent
}

// maxFailuresKept bounds Report.FirstFailures.
const maxFailuresKept = 5

// Storm fires cfg.Count deltas at one cell concurrently and verifies that
// the final stars equal the initial stars plus every realized change and
// that exactly one delta log entry was written per click. Each click
// carries its own idempotency key so transport retries never double count.
func Storm(ctx context.Context, c *Client, cfg Config) (Report, error) {
	if err := cfg.validate(); err != nil {
		return Report{}, err
	}
	if cfg.Delta == 0 {
		cfg.Delta = 1
	}
	logs := LogFilter{TeamID: cfg.TeamID, LocationID: cfg.LocationID, Source: "delta", Limit: 1}

	initial, err := c.Stars(ctx, cfg.TeamID, cfg.LocationID)
	if err != nil {
		return Report{}, fmt.Errorf("read initial stars: %w", err)
	}
	_, logsBefore, err := c.Logs(ctx, logs)
	if err != nil {
		return Report{}, fmt.Errorf("read initial log count: %w", err)
	}

	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	limiter := rate.NewLimiter(limit, cfg.Workers)

	c.logger.Info(ctx, "storm starting",
		logger.String("team_id", cfg.TeamID),
		logger.String("location_id", cfg.LocationID),
		logger.Int("count", cfg.Count),
		logger.Int("workers", cfg.Workers),
		logger.Float64("rate", cfg.Rate),
		logger.Float64("initial_stars", initial),
	)

	var (
		sent     atomic.Int64
		failed   atomic.Int64
		mu       sync.Mutex
		realized float64
		failures []string
	)
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := 0; i < cfg.Count; i++ {
		if err := limiter.Wait(gctx); err != nil {
			break
		}
		g.Go(func() error {
			res, err := c.ApplyDelta(gctx, Delta{
				TeamID:     cfg.TeamID,
				LocationID: cfg.LocationID,
				Delta:      cfg.Delta,
				ActorID:    cfg.ActorID,
				RequestID:  uuid.NewString(),
			})
			if err != nil {
				failed.Add(1)
				mu.Lock()
				if len(failures) < maxFailuresKept {
					failures = append(failures, err.Error())
				}
				mu.Unlock()
				return nil
			}
			sent.Add(1)
			mu.Lock()
			realized += res.Get("change").Float()
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	if err := ctx.Err(); err != nil {
		return Report{}, fmt.Errorf("storm interrupted: %w", err)
	}
	elapsed := time.Since(start)

	final, err := c.Stars(ctx, cfg.TeamID, cfg.LocationID)
	if err != nil {
		return Report{}, fmt.Errorf("read final stars: %w", err)
	}
	_, logsAfter, err := c.Logs(ctx, logs)
	if err != nil {
		return Report{}, fmt.Errorf("read final log count: %w", err)
	}

	rep := Report{
		Sent:          int(sent.Load()),
		Failed:        int(failed.Load()),
		InitialStars:  initial,
		FinalStars:    final,
		RealizedSum:   realized,
		LogsAdded:     logsAfter - logsBefore,
		Duration:      elapsed,
		FirstFailures: failures,
	}
	if elapsed > 0 {
		rep.ClicksPerSec = float64(rep.Sent) / elapsed.Seconds()
	}

	c.logger.Info(ctx, "storm finished",
		logger.Int("sent", rep.Sent),
		logger.Int("failed", rep.Failed),
		logger.Float64("final_stars", rep.FinalStars),
		logger.Float64("realized_sum", rep.RealizedSum),
		logger.Int("logs_added", rep.LogsAdded),
		logger.Duration("duration", rep.Duration),
	)
	if !rep.Consistent() {
		return rep, fmt.Errorf("%w: sent %d failed %d, stars %g -> %g with %g realized, %d log entries added",
			ErrVerification, rep.Sent, rep.Failed, rep.InitialStars, rep.FinalStars, rep.RealizedSum, rep.LogsAdded)
	}
	return rep, nil
}
