package repository

import (
	"cmp"
	"context"
	"fmt"
	"hash/fnv"
	"slices"
	"sync"
	"time"

	"github.com/okian/starboard/internal/domain/model"
	"github.com/okian/starboard/pkg/metrics"
)

// MemoryStore keeps everything in process. Cells are sharded by location so
// writers at different locations do not contend.
type MemoryStore struct {
	shardCount            int
	metricsUpdateInterval time.Duration
	shards                []*cellShard

	mu          sync.RWMutex // roster, effects and activations
	sessions    map[string]model.Session
	teams       map[string]model.Team
	locations   map[string]model.Location
	effects     map[string]model.ActiveEffect
	activations map[string]model.Activation

	logMu sync.RWMutex
	logs  []model.ChangeLogEntry // append order

	stop     chan struct{}
	stopOnce sync.Once
}

type cellShard struct {
	mu    sync.RWMutex
	cells map[model.CellKey]model.StarCell
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store. The background metrics updater
// stops when ctx is done or the store is closed.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		shardCount:            defaultShardCount,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		sessions:              make(map[string]model.Session),
		teams:                 make(map[string]model.Team),
		locations:             make(map[string]model.Location),
		effects:               make(map[string]model.ActiveEffect),
		activations:           make(map[string]model.Activation),
		stop:                  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.shards = make([]*cellShard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &cellShard{cells: make(map[model.CellKey]model.StarCell)}
	}
	metrics.UpdateRepositoryShardCount(s.shardCount)
	go s.startMetricsUpdater(ctx)
	return s
}

// Close stops the metrics updater.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

func (s *MemoryStore) shardIndex(locationID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(locationID))
	return int(h.Sum32() % uint32(len(s.shards))) //nolint:gosec // shard count is small and positive
}

func (s *MemoryStore) shardFor(locationID string) *cellShard {
	return s.shards[s.shardIndex(locationID)]
}

// Cell implements CellStore.
func (s *MemoryStore) Cell(_ context.Context, key model.CellKey) (model.StarCell, error) {
	start := time.Now()
	defer observeQuery(start)

	sh := s.shardFor(key.LocationID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	c, ok := sh.cells[key]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.StarCell{}, fmt.Errorf("cell %s/%s: %w", key.TeamID, key.LocationID, ErrNotFound)
	}
	return c, nil
}

// CellsAt implements CellStore.
func (s *MemoryStore) CellsAt(_ context.Context, locationID string) ([]model.StarCell, error) {
	start := time.Now()
	defer observeQuery(start)

	sh := s.shardFor(locationID)
	sh.mu.RLock()
	out := make([]model.StarCell, 0)
	for k, c := range sh.cells {
		if k.LocationID == locationID {
			out = append(out, c)
		}
	}
	sh.mu.RUnlock()
	sortCells(out)
	return out, nil
}

// SessionCells implements CellStore.
func (s *MemoryStore) SessionCells(_ context.Context, sessionID string) ([]model.StarCell, error) {
	start := time.Now()
	defer observeQuery(start)

	out := make([]model.StarCell, 0)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, c := range sh.cells {
			if c.SessionID == sessionID {
				out = append(out, c)
			}
		}
		sh.mu.RUnlock()
	}
	sortCells(out)
	return out, nil
}

// CommitStars implements CellStore.
func (s *MemoryStore) CommitStars(_ context.Context, at time.Time, commits ...Commit) ([]model.StarCell, error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryUpdateLatency(msSince(start)) }()

	if len(commits) == 0 {
		return nil, nil
	}

	// Lock every touched shard in index order.
	idx := make([]int, 0, len(commits))
	for _, c := range commits {
		idx = append(idx, s.shardIndex(c.Key.LocationID))
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)
	for _, i := range idx {
		s.shards[i].mu.Lock()
	}
	defer func() {
		for _, i := range idx {
			s.shards[i].mu.Unlock()
		}
	}()

	for _, c := range commits {
		cur, ok := s.shardFor(c.Key.LocationID).cells[c.Key]
		if !ok {
			metrics.RecordErrorByComponent("repository", "not_found")
			return nil, fmt.Errorf("cell %s/%s: %w", c.Key.TeamID, c.Key.LocationID, ErrNotFound)
		}
		if cur.Stars != c.Expected {
			metrics.RecordErrorByComponent("repository", "conflict")
			return nil, fmt.Errorf("cell %s/%s: %w", c.Key.TeamID, c.Key.LocationID, ErrConflict)
		}
	}

	out := make([]model.StarCell, 0, len(commits))
	s.logMu.Lock()
	for _, c := range commits {
		sh := s.shardFor(c.Key.LocationID)
		cell := sh.cells[c.Key]
		cell.Stars = c.Stars
		cell.UpdatedAt = at
		sh.cells[c.Key] = cell
		s.logs = append(s.logs, cloneEntry(c.Entry))
		out = append(out, cell)
	}
	s.logMu.Unlock()
	return out, nil
}

// SetPoints implements CellStore.
func (s *MemoryStore) SetPoints(_ context.Context, locationID string, points map[string]int) error {
	start := time.Now()
	defer func() { metrics.RecordRepositoryUpdateLatency(msSince(start)) }()

	sh := s.shardFor(locationID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	for teamID, p := range points {
		key := model.CellKey{TeamID: teamID, LocationID: locationID}
		if c, ok := sh.cells[key]; ok {
			c.Points = p
			sh.cells[key] = c
		}
	}
	return nil
}

// CreateEffect implements EffectStore.
func (s *MemoryStore) CreateEffect(_ context.Context, e model.ActiveEffect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.effects[e.ID]; ok {
		return fmt.Errorf("effect %s already exists", e.ID)
	}
	s.effects[e.ID] = cloneEffect(e)
	return nil
}

// Effect implements EffectStore.
func (s *MemoryStore) Effect(_ context.Context, id string) (model.ActiveEffect, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.effects[id]
	if !ok {
		return model.ActiveEffect{}, fmt.Errorf("effect %s: %w", id, ErrNotFound)
	}
	return cloneEffect(e), nil
}

// OpenEffects implements EffectStore.
func (s *MemoryStore) OpenEffects(_ context.Context, sessionID string) ([]model.ActiveEffect, error) {
	start := time.Now()
	defer observeQuery(start)

	s.mu.RLock()
	out := make([]model.ActiveEffect, 0)
	for _, e := range s.effects {
		if e.ClosedAt != nil {
			continue
		}
		if sessionID != "" && e.SessionID != sessionID {
			continue
		}
		out = append(out, cloneEffect(e))
	}
	s.mu.RUnlock()
	sortEffects(out)
	return out, nil
}

// EffectsBySource implements EffectStore.
func (s *MemoryStore) EffectsBySource(_ context.Context, sourceID string) ([]model.ActiveEffect, error) {
	s.mu.RLock()
	out := make([]model.ActiveEffect, 0)
	for _, e := range s.effects {
		if sourceID != "" && e.SourceID == sourceID {
			out = append(out, cloneEffect(e))
		}
	}
	s.mu.RUnlock()
	sortEffects(out)
	return out, nil
}

// CloseEffect implements EffectStore.
func (s *MemoryStore) CloseEffect(_ context.Context, id string, at time.Time) (model.ActiveEffect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.effects[id]
	if !ok {
		return model.ActiveEffect{}, fmt.Errorf("effect %s: %w", id, ErrNotFound)
	}
	if e.ClosedAt == nil {
		closed := at
		e.ClosedAt = &closed
		s.effects[id] = e
	}
	return cloneEffect(e), nil
}

// CloseExpired implements EffectStore.
func (s *MemoryStore) CloseExpired(_ context.Context, asOf time.Time) ([]model.ActiveEffect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ActiveEffect, 0)
	for id, e := range s.effects {
		if e.ClosedAt != nil || e.ExpiresAt == nil || e.ExpiresAt.After(asOf) {
			continue
		}
		closed := asOf
		e.ClosedAt = &closed
		s.effects[id] = e
		out = append(out, cloneEffect(e))
	}
	sortEffects(out)
	return out, nil
}

// CreateActivation implements ActivationStore.
func (s *MemoryStore) CreateActivation(_ context.Context, a model.Activation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.activations[a.ID]; ok {
		return fmt.Errorf("activation %s already exists", a.ID)
	}
	s.activations[a.ID] = a
	return nil
}

// Activation implements ActivationStore.
func (s *MemoryStore) Activation(_ context.Context, id string) (model.Activation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.activations[id]
	if !ok {
		return model.Activation{}, fmt.Errorf("activation %s: %w", id, ErrNotFound)
	}
	return a, nil
}

// SetActivationStatus implements ActivationStore.
func (s *MemoryStore) SetActivationStatus(_ context.Context, id string, status model.ActivationStatus) (model.Activation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activations[id]
	if !ok {
		return model.Activation{}, fmt.Errorf("activation %s: %w", id, ErrNotFound)
	}
	a.Status = status
	s.activations[id] = a
	return a, nil
}

// ChangeLogs implements LogStore.
func (s *MemoryStore) ChangeLogs(_ context.Context, q LogQuery) ([]model.ChangeLogEntry, int, error) {
	start := time.Now()
	defer observeQuery(start)

	s.logMu.RLock()
	defer s.logMu.RUnlock()

	matches := make([]model.ChangeLogEntry, 0)
	for i := len(s.logs) - 1; i >= 0; i-- {
		if e := s.logs[i]; q.matches(e) {
			matches = append(matches, e)
		}
	}
	total := len(matches)
	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	out := make([]model.ChangeLogEntry, len(matches))
	for i, e := range matches {
		out[i] = cloneEntry(e)
	}
	return out, total, nil
}

func (q LogQuery) matches(e model.ChangeLogEntry) bool {
	return (q.SessionID == "" || e.SessionID == q.SessionID) &&
		(q.TeamID == "" || e.TeamID == q.TeamID) &&
		(q.LocationID == "" || e.LocationID == q.LocationID) &&
		(q.Source == "" || e.Source == q.Source)
}

// PutSession implements RosterStore.
func (s *MemoryStore) PutSession(_ context.Context, sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

// Session implements RosterStore.
func (s *MemoryStore) Session(_ context.Context, id string) (model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return model.Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return sess, nil
}

// PutTeam implements RosterStore.
func (s *MemoryStore) PutTeam(_ context.Context, t model.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[t.SessionID]; !ok {
		return fmt.Errorf("session %s: %w", t.SessionID, ErrNotFound)
	}
	s.teams[t.ID] = t
	for _, l := range s.locations {
		if l.SessionID == t.SessionID {
			s.ensureCell(t.SessionID, model.CellKey{TeamID: t.ID, LocationID: l.ID})
		}
	}
	return nil
}

// PutLocation implements RosterStore.
func (s *MemoryStore) PutLocation(_ context.Context, l model.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[l.SessionID]; !ok {
		return fmt.Errorf("session %s: %w", l.SessionID, ErrNotFound)
	}
	s.locations[l.ID] = l
	for _, t := range s.teams {
		if t.SessionID == l.SessionID {
			s.ensureCell(l.SessionID, model.CellKey{TeamID: t.ID, LocationID: l.ID})
		}
	}
	return nil
}

// ensureCell must be called with s.mu held.
func (s *MemoryStore) ensureCell(sessionID string, key model.CellKey) {
	sh := s.shardFor(key.LocationID)
	sh.mu.Lock()
	if _, ok := sh.cells[key]; !ok {
		sh.cells[key] = model.StarCell{SessionID: sessionID, CellKey: key}
	}
	sh.mu.Unlock()
}

// DeleteTeam implements RosterStore.
func (s *MemoryStore) DeleteTeam(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[id]; !ok {
		return fmt.Errorf("team %s: %w", id, ErrNotFound)
	}
	delete(s.teams, id)
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k := range sh.cells {
			if k.TeamID == id {
				delete(sh.cells, k)
			}
		}
		sh.mu.Unlock()
	}
	return nil
}

// DeleteLocation implements RosterStore.
func (s *MemoryStore) DeleteLocation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locations[id]; !ok {
		return fmt.Errorf("location %s: %w", id, ErrNotFound)
	}
	delete(s.locations, id)
	sh := s.shardFor(id)
	sh.mu.Lock()
	for k := range sh.cells {
		if k.LocationID == id {
			delete(sh.cells, k)
		}
	}
	sh.mu.Unlock()
	return nil
}

// Team implements RosterStore.
func (s *MemoryStore) Team(_ context.Context, id string) (model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[id]
	if !ok {
		return model.Team{}, fmt.Errorf("team %s: %w", id, ErrNotFound)
	}
	return t, nil
}

// Location implements RosterStore.
func (s *MemoryStore) Location(_ context.Context, id string) (model.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.locations[id]
	if !ok {
		return model.Location{}, fmt.Errorf("location %s: %w", id, ErrNotFound)
	}
	return l, nil
}

// Teams implements RosterStore.
func (s *MemoryStore) Teams(_ context.Context, sessionID string) ([]model.Team, error) {
	s.mu.RLock()
	out := make([]model.Team, 0)
	for _, t := range s.teams {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.Team) int {
		return cmp.Or(cmp.Compare(a.DisplayOrder, b.DisplayOrder), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

// Locations implements RosterStore.
func (s *MemoryStore) Locations(_ context.Context, sessionID string) ([]model.Location, error) {
	s.mu.RLock()
	out := make([]model.Location, 0)
	for _, l := range s.locations {
		if l.SessionID == sessionID {
			out = append(out, l)
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.Location) int {
		return cmp.Or(cmp.Compare(a.DisplayOrder, b.DisplayOrder), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(s.metricsUpdateInterval)
	defer ticker.Stop()
	s.updateMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.updateMetrics()
		}
	}
}

func (s *MemoryStore) updateMetrics() {
	total := 0
	for i, sh := range s.shards {
		sh.mu.RLock()
		n := len(sh.cells)
		sh.mu.RUnlock()
		total += n
		metrics.UpdateRepositoryCellsPerShard(fmt.Sprintf("shard_%d", i), n)
	}
	metrics.UpdateRepositoryCellsTotal(total)
}

func sortCells(cells []model.StarCell) {
	slices.SortFunc(cells, func(a, b model.StarCell) int {
		return cmp.Or(cmp.Compare(a.LocationID, b.LocationID), cmp.Compare(a.TeamID, b.TeamID))
	})
}

func sortEffects(es []model.ActiveEffect) {
	slices.SortFunc(es, func(a, b model.ActiveEffect) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
}

func cloneEffect(e model.ActiveEffect) model.ActiveEffect {
	if e.Value != nil {
		v := *e.Value
		e.Value = &v
	}
	if e.ExpiresAt != nil {
		t := *e.ExpiresAt
		e.ExpiresAt = &t
	}
	if e.ClosedAt != nil {
		t := *e.ClosedAt
		e.ClosedAt = &t
	}
	e.Pairs = slices.Clone(e.Pairs)
	return e
}

func cloneEntry(e model.ChangeLogEntry) model.ChangeLogEntry {
	if e.Requested != nil {
		v := *e.Requested
		e.Requested = &v
	}
	e.Factors = slices.Clone(e.Factors)
	return e
}

func observeQuery(start time.Time) {
	metrics.RecordRepositoryQueryLatency(msSince(start))
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
