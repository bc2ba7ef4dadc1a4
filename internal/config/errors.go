package config

import (
	"errors"
	"fmt"
)

// Sentinel errors. ErrUnknownStore and ErrShareRatio also match
// ErrInvalidConfig.
var (
	ErrInvalidConfig = errors.New("invalid starboard config")
	ErrLoadConfig    = errors.New("load starboard config")

	// ErrUnknownStore rejects a store backend other than memory or sqlite.
	ErrUnknownStore = fmt.Errorf("%w: unknown store", ErrInvalidConfig)
	// ErrShareRatio rejects a partner share ratio outside (0, 1].
	ErrShareRatio = fmt.Errorf("%w: share ratio out of range", ErrInvalidConfig)
)
