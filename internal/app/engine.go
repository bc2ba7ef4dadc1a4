// Package service implements the scoring and effects engine: star
// mutations under active modifiers, partner sharing, ranked points and the
// lifecycle of effects, cards and events.
package service

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/okian/starboard/internal/adapters/repository"
	"github.com/okian/starboard/internal/domain/alliance"
	"github.com/okian/starboard/internal/domain/dedupe"
	"github.com/okian/starboard/internal/domain/model"
	"github.com/okian/starboard/pkg/logger"
	"github.com/okian/starboard/pkg/metrics"
)

// Publisher receives change log entries after they are committed.
type Publisher interface {
	Enqueue(ctx context.Context, e model.ChangeLogEntry) error
}

// Engine applies star changes and manages effects over a Store.
type Engine struct {
	store  repository.Store
	feed   Publisher
	clock  func() time.Time
	logger logger.Logger

	// Configuration
	shares          alliance.Defaults
	conflictRetries int
	dedupeSize      int
	sweepInterval   time.Duration
	shuffle         func(n int, swap func(i, j int))

	cells     *keyedMutex
	locations *keyedMutex
	seen      *dedupe.Cache[DeltaResult]
	flight    singleflight.Group

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	done    chan struct{}

	// Counters for GetStats
	applied   atomic.Int64
	shared    atomic.Int64
	swept     atomic.Int64
	published atomic.Int64
	dropped   atomic.Int64
}

// New constructs an Engine over store.
func New(store repository.Store, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		clock:           time.Now,
		shares:          alliance.Defaults{Alliance: alliance.DefaultAllianceShare, Mission: alliance.DefaultMissionShare},
		conflictRetries: 5,
		dedupeSize:      50_000,
		sweepInterval:   5 * time.Second,
		shuffle:         rand.Shuffle,
		cells:           newKeyedMutex(),
		locations:       newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Get()
	}
	e.logger = e.logger.Named("engine")
	e.seen = dedupe.New[DeltaResult](dedupe.WithMaxSize(e.dedupeSize))
	return e
}

// Start launches the background expiry sweeper.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil
	}
	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})
	go e.sweepLoop(ctx, e.stopCh, e.done)

	e.started = true
	e.logger.Info(ctx, "engine started",
		logger.Duration("sweep_interval", e.sweepInterval),
		logger.Int("conflict_retries", e.conflictRetries),
		logger.Int("dedupe_size", e.dedupeSize),
	)
	return nil
}

// Stop halts the sweeper and waits for it to exit. The store is left open.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return
	}
	close(e.stopCh)
	<-e.done
	e.started = false
	e.logger.Info(context.Background(), "engine stopped")
}

func (e *Engine) sweepLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := e.SweepExpired(ctx, e.clock()); err != nil {
				e.logger.Warn(ctx, "expiry sweep failed", logger.Error(err))
			}
		}
	}
}

// at returns t, or the engine clock when t is zero. Every mutation takes
// its timestamp once and reuses it for lookup, commit and logs.
func (e *Engine) at(t time.Time) time.Time {
	if t.IsZero() {
		return e.clock()
	}
	return t
}

func newID() string { return uuid.NewString() }

// publish hands committed entries to the feed. The store already holds
// them, so a full or closed feed is logged and counted but never fails
// the mutation.
func (e *Engine) publish(ctx context.Context, entries ...model.ChangeLogEntry) {
	if e.feed == nil {
		return
	}
	for _, entry := range entries {
		if err := e.feed.Enqueue(ctx, entry); err != nil {
			e.dropped.Add(1)
			metrics.RecordErrorByComponent("feed", "enqueue")
			e.logger.Warn(ctx, "change feed rejected entry",
				logger.String("entry_id", entry.ID),
				logger.Error(err),
			)
			continue
		}
		e.published.Add(1)
	}
}

// GetStats returns engine statistics for monitoring.
func (e *Engine) GetStats() map[string]any {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()

	stats := map[string]any{
		"started":         started,
		"conflictRetries": e.conflictRetries,
		"dedupeSize":      e.dedupeSize,
		"rememberedIDs":   e.seen.Size(),
		"cellLocksHeld":   e.cells.Len(),
		"deltasApplied":   e.applied.Load(),
		"sharesApplied":   e.shared.Load(),
		"effectsSwept":    e.swept.Load(),
		"feedPublished":   e.published.Load(),
		"feedDropped":     e.dropped.Load(),
	}
	if q, ok := e.feed.(interface{ Len() int }); ok {
		stats["feedLength"] = q.Len()
	}
	return stats
}
