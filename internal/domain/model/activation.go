package model

import "time"

// ActivationStatus tracks the provenance record lifecycle.
type ActivationStatus string

// Activation statuses.
const (
	ActivationActive    ActivationStatus = "active"
	ActivationExpired   ActivationStatus = "expired"
	ActivationCancelled ActivationStatus = "cancelled"
)

// ActivationCategory separates skill cards played by teams from random events.
type ActivationCategory string

// Activation categories.
const (
	CategoryCard  ActivationCategory = "card"
	CategoryEvent ActivationCategory = "event"
)

// Allocation is one slice of an instant star transfer.
type Allocation struct {
	TeamID     string  `json:"team_id"`
	LocationID string  `json:"location_id"`
	Amount     float64 `json:"amount"`
}

// ActivationParams carries kind-specific activation parameters.
type ActivationParams struct {
	Allocations []Allocation `json:"allocations,omitempty"`
	Pairs       []Pair       `json:"pairs,omitempty"`
	PairNames   string       `json:"pair_names,omitempty"`
	SwapTeamIDs []string     `json:"swap_team_ids,omitempty"`
}

// Activation records a card play or random event and is the provenance of
// the effects it creates.
type Activation struct {
	ID               string
	SessionID        string
	Category         ActivationCategory
	Type             string
	ActivatorTeamID  string
	TargetTeamID     string
	TargetLocationID string
	Params           ActivationParams
	DurationMinutes  *int
	ExpiresAt        *time.Time
	Status           ActivationStatus
	CreatedAt        time.Time
}
