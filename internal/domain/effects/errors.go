package effects

import "errors"

// Sentinel kinds for effect errors.
var (
	ErrInvalidScope = errors.New("invalid effect scope")
	ErrUnknownCard  = errors.New("unknown skill card")
	ErrUnknownEvent = errors.New("unknown random event")
)
