package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("cell changed concurrently")
)
