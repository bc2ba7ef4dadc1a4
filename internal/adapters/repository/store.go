// Package repository defines the persistence interfaces of the engine and
// their in-memory and SQLite implementations.
package repository

import (
	"context"
	"time"

	"github.com/okian/starboard/internal/domain/model"
)

// Commit is one compare-and-set star write together with its audit entry.
type Commit struct {
	Key      model.CellKey
	Expected float64 // stars observed when the change was computed
	Stars    float64
	Entry    model.ChangeLogEntry
}

// LogQuery filters change log listings. Empty fields match everything.
type LogQuery struct {
	SessionID  string
	TeamID     string
	LocationID string
	Source     model.ChangeSource
	Limit      int
}

// CellStore holds star cells.
type CellStore interface {
	// Cell returns one cell or ErrNotFound.
	Cell(ctx context.Context, key model.CellKey) (model.StarCell, error)
	// CellsAt returns every cell at a location ordered by team id.
	CellsAt(ctx context.Context, locationID string) ([]model.StarCell, error)
	// SessionCells returns every cell of a session.
	SessionCells(ctx context.Context, sessionID string) ([]model.StarCell, error)
	// CommitStars applies all commits and appends their entries atomically.
	// It fails with ErrConflict when any cell no longer holds Expected and
	// with ErrNotFound when any cell is missing; nothing is written then.
	CommitStars(ctx context.Context, at time.Time, commits ...Commit) ([]model.StarCell, error)
	// SetPoints stores ranking points for the given teams at a location.
	SetPoints(ctx context.Context, locationID string, points map[string]int) error
}

// EffectStore holds effects.
type EffectStore interface {
	CreateEffect(ctx context.Context, e model.ActiveEffect) error
	// Effect returns one effect or ErrNotFound.
	Effect(ctx context.Context, id string) (model.ActiveEffect, error)
	// OpenEffects returns effects not yet closed, expired ones included,
	// ordered by creation. An empty session id lists every session.
	OpenEffects(ctx context.Context, sessionID string) ([]model.ActiveEffect, error)
	// EffectsBySource returns the effects produced by an activation.
	EffectsBySource(ctx context.Context, sourceID string) ([]model.ActiveEffect, error)
	// CloseEffect marks an effect closed at the given time. Closing a closed
	// effect returns it unchanged.
	CloseEffect(ctx context.Context, id string, at time.Time) (model.ActiveEffect, error)
	// CloseExpired closes every open effect whose expiry is at or before asOf
	// and returns them.
	CloseExpired(ctx context.Context, asOf time.Time) ([]model.ActiveEffect, error)
}

// ActivationStore holds card and event provenance records.
type ActivationStore interface {
	CreateActivation(ctx context.Context, a model.Activation) error
	Activation(ctx context.Context, id string) (model.Activation, error)
	SetActivationStatus(ctx context.Context, id string, status model.ActivationStatus) (model.Activation, error)
}

// LogStore reads the change log written by CommitStars.
type LogStore interface {
	// ChangeLogs returns matching entries in reverse commit order, whatever
	// their CreatedAt, and the total number of matches.
	ChangeLogs(ctx context.Context, q LogQuery) ([]model.ChangeLogEntry, int, error)
}

// RosterStore holds sessions, teams and locations. Adding a team or a
// location materializes the missing cells of the session's cross product;
// deleting one removes its cells.
type RosterStore interface {
	PutSession(ctx context.Context, s model.Session) error
	Session(ctx context.Context, id string) (model.Session, error)
	PutTeam(ctx context.Context, t model.Team) error
	PutLocation(ctx context.Context, l model.Location) error
	DeleteTeam(ctx context.Context, id string) error
	DeleteLocation(ctx context.Context, id string) error
	Team(ctx context.Context, id string) (model.Team, error)
	Location(ctx context.Context, id string) (model.Location, error)
	Teams(ctx context.Context, sessionID string) ([]model.Team, error)
	Locations(ctx context.Context, sessionID string) ([]model.Location, error)
}

// Store is the full persistence surface used by the engine.
type Store interface {
	CellStore
	EffectStore
	ActivationStore
	LogStore
	RosterStore
	Close() error
}
