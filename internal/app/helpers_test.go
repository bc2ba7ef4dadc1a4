package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/starboard/internal/adapters/repository"
	service "github.com/okian/starboard/internal/app"
	"github.com/okian/starboard/internal/domain/model"
	"github.com/okian/starboard/pkg/logger"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func init() {
	// Engines built without WithLogger use the global logger.
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// fixture is a memory store holding session s1 with teams a..d and
// locations l1, l2, plus an engine over it.
type fixture struct {
	ctx    context.Context
	store  *repository.MemoryStore
	engine *service.Engine
	feed   *recorder
	clock  *fakeClock
}

// fakeClock starts at t0 and only moves when told to.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newFixture(t *testing.T, opts ...service.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore(ctx)
	t.Cleanup(func() { _ = store.Close() })

	seed(t, ctx, store, "s1", []string{"a", "b", "c", "d"}, []string{"l1", "l2"})

	feed := &recorder{}
	clock := &fakeClock{now: t0}
	base := []service.Option{
		service.WithClock(clock.Now),
		service.WithLogger(logger.Nop()),
		service.WithPublisher(feed),
	}
	return &fixture{
		ctx:    ctx,
		store:  store,
		engine: service.New(store, append(base, opts...)...),
		feed:   feed,
		clock:  clock,
	}
}

func seed(t *testing.T, ctx context.Context, store repository.RosterStore, session string, teams, locations []string) {
	t.Helper()
	must := func(err error) {
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(store.PutSession(ctx, model.Session{ID: session, Name: session, Status: model.SessionOnline, CreatedAt: t0}))
	for i, id := range teams {
		must(store.PutTeam(ctx, model.Team{ID: id, SessionID: session, Name: "Team " + id, DisplayOrder: i + 1}))
	}
	for i, id := range locations {
		must(store.PutLocation(ctx, model.Location{ID: id, SessionID: session, Name: "Loc " + id, DisplayOrder: i + 1}))
	}
}

func (f *fixture) stars(team, location string) float64 {
	c, err := f.store.Cell(f.ctx, model.CellKey{TeamID: team, LocationID: location})
	if err != nil {
		panic(err)
	}
	return c.Stars
}

func (f *fixture) points(team, location string) int {
	c, err := f.store.Cell(f.ctx, model.CellKey{TeamID: team, LocationID: location})
	if err != nil {
		panic(err)
	}
	return c.Points
}

func (f *fixture) delta(team, location string, d float64) service.DeltaResult {
	res, err := f.engine.ApplyDelta(f.ctx, service.DeltaRequest{TeamID: team, LocationID: location, Delta: d, ActorID: "admin"})
	if err != nil {
		panic(err)
	}
	return res
}

func (f *fixture) activate(req service.EffectRequest) model.ActiveEffect {
	if req.SessionID == "" {
		req.SessionID = "s1"
	}
	eff, err := f.engine.Activate(f.ctx, req)
	if err != nil {
		panic(err)
	}
	return eff
}

func minutes(n int) *int { return &n }

// recorder is a Publisher that keeps what it receives.
type recorder struct {
	mu      sync.Mutex
	entries []model.ChangeLogEntry
	err     error
}

func (r *recorder) Enqueue(_ context.Context, e model.ChangeLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// conflicting fails CommitStars with ErrConflict a fixed number of times.
type conflicting struct {
	repository.Store
	mu       sync.Mutex
	failures int
	calls    int
}

func (c *conflicting) CommitStars(ctx context.Context, at time.Time, commits ...repository.Commit) ([]model.StarCell, error) {
	c.mu.Lock()
	c.calls++
	fail := c.failures > 0
	if fail {
		c.failures--
	}
	c.mu.Unlock()
	if fail {
		return nil, repository.ErrConflict
	}
	return c.Store.CommitStars(ctx, at, commits...)
}

// broken fails SetPoints.
type broken struct {
	repository.Store
}

func (broken) SetPoints(context.Context, string, map[string]int) error {
	return errors.New("disk on fire")
}
