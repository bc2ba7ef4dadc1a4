// Package types contains read shapes shared by the service and the HTTP API.
package types

// Standing is one team's row in a session-wide score table.
type Standing struct {
	Rank     int     `json:"rank"`
	TeamID   string  `json:"team_id"`
	TeamName string  `json:"team_name"`
	Color    string  `json:"color"`
	Points   int     `json:"points"`
	Stars    float64 `json:"stars"`
}

// CellView is a star cell as exposed to callers.
type CellView struct {
	TeamID     string  `json:"team_id"`
	LocationID string  `json:"location_id"`
	Stars      float64 `json:"stars"`
	Points     int     `json:"points"`
}
