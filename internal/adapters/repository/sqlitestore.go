package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/starboard/internal/domain/model"
	"github.com/okian/starboard/pkg/metrics"

	_ "modernc.org/sqlite" // database/sql driver
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
  id         TEXT PRIMARY KEY,
  name       TEXT NOT NULL,
  status     TEXT NOT NULL CHECK (status IN ('offline','online')),
  created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS teams (
  id            TEXT PRIMARY KEY,
  session_id    TEXT NOT NULL REFERENCES sessions(id),
  name          TEXT NOT NULL,
  color         TEXT NOT NULL DEFAULT '',
  display_order INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS locations (
  id            TEXT PRIMARY KEY,
  session_id    TEXT NOT NULL REFERENCES sessions(id),
  name          TEXT NOT NULL,
  display_order INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS cells (
  team_id     TEXT NOT NULL,
  location_id TEXT NOT NULL,
  session_id  TEXT NOT NULL,
  stars       REAL NOT NULL DEFAULT 0 CHECK (stars >= 0),
  points      INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0),
  updated_at  INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (team_id, location_id)
);
CREATE INDEX IF NOT EXISTS idx_cells_location ON cells(location_id);
CREATE INDEX IF NOT EXISTS idx_cells_session ON cells(session_id);
CREATE TABLE IF NOT EXISTS effects (
  id              TEXT PRIMARY KEY,
  session_id      TEXT NOT NULL,
  kind            TEXT NOT NULL,
  team_id         TEXT NOT NULL DEFAULT '',
  location_id     TEXT NOT NULL DEFAULT '',
  value           REAL,
  partner_team_id TEXT NOT NULL DEFAULT '',
  pairs           TEXT,
  created_at      INTEGER NOT NULL,
  expires_at      INTEGER,
  closed_at       INTEGER,
  source_id       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_effects_open ON effects(session_id, closed_at);
CREATE INDEX IF NOT EXISTS idx_effects_source ON effects(source_id);
CREATE TABLE IF NOT EXISTS activations (
  id                 TEXT PRIMARY KEY,
  session_id         TEXT NOT NULL,
  category           TEXT NOT NULL,
  type               TEXT NOT NULL,
  activator_team_id  TEXT NOT NULL DEFAULT '',
  target_team_id     TEXT NOT NULL DEFAULT '',
  target_location_id TEXT NOT NULL DEFAULT '',
  params             TEXT,
  duration_minutes   INTEGER,
  expires_at         INTEGER,
  status             TEXT NOT NULL CHECK (status IN ('active','expired','cancelled')),
  created_at         INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS change_logs (
  seq         INTEGER PRIMARY KEY,
  id          TEXT NOT NULL UNIQUE,
  session_id  TEXT NOT NULL,
  actor_id    TEXT NOT NULL DEFAULT '',
  team_id     TEXT NOT NULL,
  location_id TEXT NOT NULL,
  old_stars   REAL NOT NULL,
  new_stars   REAL NOT NULL,
  change      REAL NOT NULL,
  requested   REAL,
  factors     TEXT,
  source      TEXT NOT NULL,
  created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_logs_time ON change_logs(created_at);
CREATE INDEX IF NOT EXISTS idx_logs_cell ON change_logs(team_id, location_id, created_at);
`

// SQLiteStore persists engine state in a SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if missing) the database at path and ensures
// the schema exists. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const cellColumns = "session_id, team_id, location_id, stars, points, updated_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanCell(r scanner) (model.StarCell, error) {
	var (
		c       model.StarCell
		updated int64
	)
	if err := r.Scan(&c.SessionID, &c.TeamID, &c.LocationID, &c.Stars, &c.Points, &updated); err != nil {
		return model.StarCell{}, err
	}
	c.UpdatedAt = fromNanos(updated)
	return c, nil
}

// Cell implements CellStore.
func (s *SQLiteStore) Cell(ctx context.Context, key model.CellKey) (model.StarCell, error) {
	start := time.Now()
	defer observeQuery(start)
	return s.cell(ctx, s.db, key)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) cell(ctx context.Context, q querier, key model.CellKey) (model.StarCell, error) {
	row := q.QueryRowContext(ctx, "SELECT "+cellColumns+" FROM cells WHERE team_id = ? AND location_id = ?", key.TeamID, key.LocationID)
	c, err := scanCell(row)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.StarCell{}, fmt.Errorf("cell %s/%s: %w", key.TeamID, key.LocationID, ErrNotFound)
	}
	if err != nil {
		return model.StarCell{}, fmt.Errorf("read cell: %w", err)
	}
	return c, nil
}

// CellsAt implements CellStore.
func (s *SQLiteStore) CellsAt(ctx context.Context, locationID string) ([]model.StarCell, error) {
	start := time.Now()
	defer observeQuery(start)
	return s.cells(ctx, "SELECT "+cellColumns+" FROM cells WHERE location_id = ? ORDER BY team_id", locationID)
}

// SessionCells implements CellStore.
func (s *SQLiteStore) SessionCells(ctx context.Context, sessionID string) ([]model.StarCell, error) {
	start := time.Now()
	defer observeQuery(start)
	return s.cells(ctx, "SELECT "+cellColumns+" FROM cells WHERE session_id = ? ORDER BY location_id, team_id", sessionID)
}

func (s *SQLiteStore) cells(ctx context.Context, query string, args ...any) ([]model.StarCell, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cells: %w", err)
	}
	defer rows.Close()
	out := make([]model.StarCell, 0)
	for rows.Next() {
		c, err := scanCell(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CommitStars implements CellStore.
func (s *SQLiteStore) CommitStars(ctx context.Context, at time.Time, commits ...Commit) (_ []model.StarCell, err error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryUpdateLatency(msSince(start)) }()

	if len(commits) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin commit: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, c := range commits {
		res, err := tx.ExecContext(ctx,
			`UPDATE cells SET stars = ?, updated_at = ? WHERE team_id = ? AND location_id = ? AND stars = ?`,
			c.Stars, at.UnixNano(), c.Key.TeamID, c.Key.LocationID, c.Expected)
		if err != nil {
			return nil, fmt.Errorf("update cell: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("update cell: %w", err)
		}
		if n == 0 {
			if _, err := s.cell(ctx, tx, c.Key); err != nil {
				return nil, err
			}
			metrics.RecordErrorByComponent("repository", "conflict")
			return nil, fmt.Errorf("cell %s/%s: %w", c.Key.TeamID, c.Key.LocationID, ErrConflict)
		}
		if err := insertEntry(ctx, tx, c.Entry); err != nil {
			return nil, err
		}
	}

	out := make([]model.StarCell, 0, len(commits))
	for _, c := range commits {
		cell, err := s.cell(ctx, tx, c.Key)
		if err != nil {
			return nil, err
		}
		out = append(out, cell)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit stars: %w", err)
	}
	return out, nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, e model.ChangeLogEntry) error {
	factors, err := json.Marshal(e.Factors)
	if err != nil {
		return fmt.Errorf("encode factors: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO change_logs(id, session_id, actor_id, team_id, location_id, old_stars, new_stars, change, requested, factors, source, created_at) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.SessionID, e.ActorID, e.TeamID, e.LocationID, e.OldStars, e.NewStars, e.Change,
		nullFloat(e.Requested), string(factors), string(e.Source), e.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert change log: %w", err)
	}
	return nil
}

// SetPoints implements CellStore.
func (s *SQLiteStore) SetPoints(ctx context.Context, locationID string, points map[string]int) (err error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryUpdateLatency(msSince(start)) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin points: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for teamID, p := range points {
		if _, err = tx.ExecContext(ctx, `UPDATE cells SET points = ? WHERE team_id = ? AND location_id = ?`, p, teamID, locationID); err != nil {
			return fmt.Errorf("update points: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit points: %w", err)
	}
	return nil
}

const effectColumns = "id, session_id, kind, team_id, location_id, value, partner_team_id, pairs, created_at, expires_at, closed_at, source_id"

func scanEffect(r scanner) (model.ActiveEffect, error) {
	var (
		e               model.ActiveEffect
		kind            string
		value           sql.NullFloat64
		pairs           sql.NullString
		created         int64
		expires, closed sql.NullInt64
	)
	if err := r.Scan(&e.ID, &e.SessionID, &kind, &e.TeamID, &e.LocationID, &value, &e.PartnerTeamID, &pairs, &created, &expires, &closed, &e.SourceID); err != nil {
		return model.ActiveEffect{}, err
	}
	e.Kind = model.EffectKind(kind)
	if value.Valid {
		e.Value = model.Float(value.Float64)
	}
	if pairs.Valid && pairs.String != "" && pairs.String != "null" {
		if err := json.Unmarshal([]byte(pairs.String), &e.Pairs); err != nil {
			return model.ActiveEffect{}, fmt.Errorf("decode pairs: %w", err)
		}
	}
	e.CreatedAt = fromNanos(created)
	e.ExpiresAt = fromNullNanos(expires)
	e.ClosedAt = fromNullNanos(closed)
	return e, nil
}

// CreateEffect implements EffectStore.
func (s *SQLiteStore) CreateEffect(ctx context.Context, e model.ActiveEffect) error {
	var pairs any
	if len(e.Pairs) > 0 {
		b, err := json.Marshal(e.Pairs)
		if err != nil {
			return fmt.Errorf("encode pairs: %w", err)
		}
		pairs = string(b)
	}
	_, err := s.db.ExecContext(ctx, "INSERT INTO effects("+effectColumns+") VALUES(?,?,?,?,?,?,?,?,?,?,?,?)",
		e.ID, e.SessionID, string(e.Kind), e.TeamID, e.LocationID, nullFloat(e.Value), e.PartnerTeamID, pairs,
		e.CreatedAt.UnixNano(), nullTime(e.ExpiresAt), nullTime(e.ClosedAt), e.SourceID)
	if err != nil {
		return fmt.Errorf("insert effect: %w", err)
	}
	return nil
}

// Effect implements EffectStore.
func (s *SQLiteStore) Effect(ctx context.Context, id string) (model.ActiveEffect, error) {
	e, err := scanEffect(s.db.QueryRowContext(ctx, "SELECT "+effectColumns+" FROM effects WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.ActiveEffect{}, fmt.Errorf("effect %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.ActiveEffect{}, fmt.Errorf("read effect: %w", err)
	}
	return e, nil
}

// OpenEffects implements EffectStore.
func (s *SQLiteStore) OpenEffects(ctx context.Context, sessionID string) ([]model.ActiveEffect, error) {
	start := time.Now()
	defer observeQuery(start)
	if sessionID == "" {
		return s.effects(ctx, "SELECT "+effectColumns+" FROM effects WHERE closed_at IS NULL ORDER BY created_at, id")
	}
	return s.effects(ctx, "SELECT "+effectColumns+" FROM effects WHERE closed_at IS NULL AND session_id = ? ORDER BY created_at, id", sessionID)
}

// EffectsBySource implements EffectStore.
func (s *SQLiteStore) EffectsBySource(ctx context.Context, sourceID string) ([]model.ActiveEffect, error) {
	if sourceID == "" {
		return []model.ActiveEffect{}, nil
	}
	return s.effects(ctx, "SELECT "+effectColumns+" FROM effects WHERE source_id = ? ORDER BY created_at, id", sourceID)
}

func (s *SQLiteStore) effects(ctx context.Context, query string, args ...any) ([]model.ActiveEffect, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query effects: %w", err)
	}
	defer rows.Close()
	out := make([]model.ActiveEffect, 0)
	for rows.Next() {
		e, err := scanEffect(rows)
		if err != nil {
			return nil, fmt.Errorf("scan effect: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CloseEffect implements EffectStore.
func (s *SQLiteStore) CloseEffect(ctx context.Context, id string, at time.Time) (model.ActiveEffect, error) {
	if _, err := s.db.ExecContext(ctx, `UPDATE effects SET closed_at = ? WHERE id = ? AND closed_at IS NULL`, at.UnixNano(), id); err != nil {
		return model.ActiveEffect{}, fmt.Errorf("close effect: %w", err)
	}
	return s.Effect(ctx, id)
}

// CloseExpired implements EffectStore.
func (s *SQLiteStore) CloseExpired(ctx context.Context, asOf time.Time) (_ []model.ActiveEffect, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin sweep: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, "SELECT id FROM effects WHERE closed_at IS NULL AND expires_at IS NOT NULL AND expires_at <= ?", asOf.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query expired: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan expired: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Close(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		err = tx.Commit()
		return []model.ActiveEffect{}, err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, asOf.UnixNano())
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err = tx.ExecContext(ctx, "UPDATE effects SET closed_at = ? WHERE id IN ("+placeholders+")", args...); err != nil {
		return nil, fmt.Errorf("close expired: %w", err)
	}
	rows, err = tx.QueryContext(ctx, "SELECT "+effectColumns+" FROM effects WHERE id IN ("+placeholders+") ORDER BY created_at, id", args[1:]...)
	if err != nil {
		return nil, fmt.Errorf("read swept: %w", err)
	}
	out := make([]model.ActiveEffect, 0, len(ids))
	for rows.Next() {
		var e model.ActiveEffect
		if e, err = scanEffect(rows); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan swept: %w", err)
		}
		out = append(out, e)
	}
	if err = rows.Close(); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit sweep: %w", err)
	}
	return out, nil
}

const activationColumns = "id, session_id, category, type, activator_team_id, target_team_id, target_location_id, params, duration_minutes, expires_at, status, created_at"

// CreateActivation implements ActivationStore.
func (s *SQLiteStore) CreateActivation(ctx context.Context, a model.Activation) error {
	params, err := json.Marshal(a.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	var duration any
	if a.DurationMinutes != nil {
		duration = *a.DurationMinutes
	}
	_, err = s.db.ExecContext(ctx, "INSERT INTO activations("+activationColumns+") VALUES(?,?,?,?,?,?,?,?,?,?,?,?)",
		a.ID, a.SessionID, string(a.Category), a.Type, a.ActivatorTeamID, a.TargetTeamID, a.TargetLocationID,
		string(params), duration, nullTime(a.ExpiresAt), string(a.Status), a.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert activation: %w", err)
	}
	return nil
}

// Activation implements ActivationStore.
func (s *SQLiteStore) Activation(ctx context.Context, id string) (model.Activation, error) {
	var (
		a                 model.Activation
		category, status  string
		params            sql.NullString
		duration, expires sql.NullInt64
		created           int64
	)
	err := s.db.QueryRowContext(ctx, "SELECT "+activationColumns+" FROM activations WHERE id = ?", id).Scan(
		&a.ID, &a.SessionID, &category, &a.Type, &a.ActivatorTeamID, &a.TargetTeamID, &a.TargetLocationID,
		&params, &duration, &expires, &status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Activation{}, fmt.Errorf("activation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Activation{}, fmt.Errorf("read activation: %w", err)
	}
	a.Category = model.ActivationCategory(category)
	a.Status = model.ActivationStatus(status)
	if params.Valid && params.String != "" {
		if err := json.Unmarshal([]byte(params.String), &a.Params); err != nil {
			return model.Activation{}, fmt.Errorf("decode params: %w", err)
		}
	}
	if duration.Valid {
		d := int(duration.Int64)
		a.DurationMinutes = &d
	}
	a.ExpiresAt = fromNullNanos(expires)
	a.CreatedAt = fromNanos(created)
	return a, nil
}

// SetActivationStatus implements ActivationStore.
func (s *SQLiteStore) SetActivationStatus(ctx context.Context, id string, status model.ActivationStatus) (model.Activation, error) {
	if _, err := s.db.ExecContext(ctx, "UPDATE activations SET status = ? WHERE id = ?", string(status), id); err != nil {
		return model.Activation{}, fmt.Errorf("update activation: %w", err)
	}
	return s.Activation(ctx, id)
}

// ChangeLogs implements LogStore.
func (s *SQLiteStore) ChangeLogs(ctx context.Context, q LogQuery) ([]model.ChangeLogEntry, int, error) {
	start := time.Now()
	defer observeQuery(start)

	var (
		where []string
		args  []any
	)
	for col, v := range map[string]string{
		"session_id":  q.SessionID,
		"team_id":     q.TeamID,
		"location_id": q.LocationID,
		"source":      string(q.Source),
	} {
		if v != "" {
			where = append(where, col+" = ?")
			args = append(args, v)
		}
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM change_logs"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count change logs: %w", err)
	}

	query := "SELECT id, session_id, actor_id, team_id, location_id, old_stars, new_stars, change, requested, factors, source, created_at FROM change_logs" +
		clause + " ORDER BY seq DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query change logs: %w", err)
	}
	defer rows.Close()

	out := make([]model.ChangeLogEntry, 0)
	for rows.Next() {
		var (
			e         model.ChangeLogEntry
			requested sql.NullFloat64
			factors   sql.NullString
			source    string
			created   int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.ActorID, &e.TeamID, &e.LocationID, &e.OldStars, &e.NewStars, &e.Change,
			&requested, &factors, &source, &created); err != nil {
			return nil, 0, fmt.Errorf("scan change log: %w", err)
		}
		if requested.Valid {
			e.Requested = model.Float(requested.Float64)
		}
		if factors.Valid && factors.String != "" && factors.String != "null" {
			if err := json.Unmarshal([]byte(factors.String), &e.Factors); err != nil {
				return nil, 0, fmt.Errorf("decode factors: %w", err)
			}
		}
		e.Source = model.ChangeSource(source)
		e.CreatedAt = fromNanos(created)
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// PutSession implements RosterStore.
func (s *SQLiteStore) PutSession(ctx context.Context, sess model.Session) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions(id, name, status, created_at) VALUES(?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, status = excluded.status`,
		sess.ID, sess.Name, string(sess.Status), sess.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// Session implements RosterStore.
func (s *SQLiteStore) Session(ctx context.Context, id string) (model.Session, error) {
	var (
		sess    model.Session
		status  string
		created int64
	)
	err := s.db.QueryRowContext(ctx, "SELECT id, name, status, created_at FROM sessions WHERE id = ?", id).Scan(&sess.ID, &sess.Name, &status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("read session: %w", err)
	}
	sess.Status = model.SessionStatus(status)
	sess.CreatedAt = fromNanos(created)
	return sess, nil
}

// PutTeam implements RosterStore.
func (s *SQLiteStore) PutTeam(ctx context.Context, t model.Team) error {
	return s.inTx(ctx, "put team", func(tx *sql.Tx) error {
		if err := sessionExists(ctx, tx, t.SessionID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO teams(id, session_id, name, color, display_order) VALUES(?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, color = excluded.color, display_order = excluded.display_order`,
			t.ID, t.SessionID, t.Name, t.Color, t.DisplayOrder); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO cells(team_id, location_id, session_id)
SELECT ?, id, session_id FROM locations WHERE session_id = ?`, t.ID, t.SessionID)
		return err
	})
}

// PutLocation implements RosterStore.
func (s *SQLiteStore) PutLocation(ctx context.Context, l model.Location) error {
	return s.inTx(ctx, "put location", func(tx *sql.Tx) error {
		if err := sessionExists(ctx, tx, l.SessionID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO locations(id, session_id, name, display_order) VALUES(?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, display_order = excluded.display_order`,
			l.ID, l.SessionID, l.Name, l.DisplayOrder); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO cells(team_id, location_id, session_id)
SELECT id, ?, session_id FROM teams WHERE session_id = ?`, l.ID, l.SessionID)
		return err
	})
}

// DeleteTeam implements RosterStore.
func (s *SQLiteStore) DeleteTeam(ctx context.Context, id string) error {
	return s.inTx(ctx, "delete team", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM teams WHERE id = ?", id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("team %s: %w", id, ErrNotFound)
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM cells WHERE team_id = ?", id)
		return err
	})
}

// DeleteLocation implements RosterStore.
func (s *SQLiteStore) DeleteLocation(ctx context.Context, id string) error {
	return s.inTx(ctx, "delete location", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM locations WHERE id = ?", id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("location %s: %w", id, ErrNotFound)
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM cells WHERE location_id = ?", id)
		return err
	})
}

// Team implements RosterStore.
func (s *SQLiteStore) Team(ctx context.Context, id string) (model.Team, error) {
	var t model.Team
	err := s.db.QueryRowContext(ctx, "SELECT id, session_id, name, color, display_order FROM teams WHERE id = ?", id).
		Scan(&t.ID, &t.SessionID, &t.Name, &t.Color, &t.DisplayOrder)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Team{}, fmt.Errorf("team %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Team{}, fmt.Errorf("read team: %w", err)
	}
	return t, nil
}

// Location implements RosterStore.
func (s *SQLiteStore) Location(ctx context.Context, id string) (model.Location, error) {
	var l model.Location
	err := s.db.QueryRowContext(ctx, "SELECT id, session_id, name, display_order FROM locations WHERE id = ?", id).
		Scan(&l.ID, &l.SessionID, &l.Name, &l.DisplayOrder)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Location{}, fmt.Errorf("location %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Location{}, fmt.Errorf("read location: %w", err)
	}
	return l, nil
}

// Teams implements RosterStore.
func (s *SQLiteStore) Teams(ctx context.Context, sessionID string) ([]model.Team, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, session_id, name, color, display_order FROM teams WHERE session_id = ? ORDER BY display_order, id", sessionID)
	if err != nil {
		return nil, fmt.Errorf("query teams: %w", err)
	}
	defer rows.Close()
	out := make([]model.Team, 0)
	for rows.Next() {
		var t model.Team
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Name, &t.Color, &t.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Locations implements RosterStore.
func (s *SQLiteStore) Locations(ctx context.Context, sessionID string) ([]model.Location, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, session_id, name, display_order FROM locations WHERE session_id = ? ORDER BY display_order, id", sessionID)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()
	out := make([]model.Location, 0)
	for rows.Next() {
		var l model.Location
		if err := rows.Scan(&l.ID, &l.SessionID, &l.Name, &l.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func sessionExists(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM sessions WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return err
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}
