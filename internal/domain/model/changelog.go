package model

import "time"

// ChangeSource names what produced a change log entry.
type ChangeSource string

// Change sources.
const (
	SourceDelta          ChangeSource = "delta"
	SourceAlliance       ChangeSource = "alliance"
	SourceSpecialMission ChangeSource = "special_mission"
	SourceTransfer       ChangeSource = "transfer"
	SourceSwap           ChangeSource = "swap"
)

// ChangeLogEntry is the immutable audit record of one realized star mutation.
type ChangeLogEntry struct {
	ID         string
	SessionID  string
	ActorID    string
	TeamID     string
	LocationID string
	OldStars   float64
	NewStars   float64
	Change     float64  // NewStars - OldStars, after clamping
	Requested  *float64 // pre-multiplier change when one applies
	Factors    []float64
	Source     ChangeSource
	CreatedAt  time.Time
}
