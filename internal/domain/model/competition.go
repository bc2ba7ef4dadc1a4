// Package model contains domain models passed between layers.
package model

import "time"

// SessionStatus gates visibility of a competition to non-privileged viewers.
type SessionStatus string

// Session statuses.
const (
	SessionOffline SessionStatus = "offline"
	SessionOnline  SessionStatus = "online"
)

// Session is one competition instance grouping teams, locations, cells and effects.
type Session struct {
	ID        string
	Name      string
	Status    SessionStatus
	CreatedAt time.Time
}

// Team is a competitor within a session.
type Team struct {
	ID           string
	SessionID    string
	Name         string
	Color        string
	DisplayOrder int
}

// Location is a map point where teams collect stars.
type Location struct {
	ID           string
	SessionID    string
	Name         string
	DisplayOrder int
}

// CellKey identifies the (team, location) pair of a star cell.
type CellKey struct {
	TeamID     string
	LocationID string
}

// StarCell holds the stars and ranking points of one team at one location.
type StarCell struct {
	SessionID string
	CellKey
	Stars     float64 // never negative
	Points    int     // derived from the ranking of Stars at the location
	UpdatedAt time.Time
}
