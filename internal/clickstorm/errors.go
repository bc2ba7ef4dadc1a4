package clickstorm

import "errors"

// Sentinel errors.
var (
	// ErrStatus wraps non-2xx responses.
	ErrStatus = errors.New("unexpected status")
	// ErrVerification is returned when a storm leaves the cell inconsistent.
	ErrVerification = errors.New("storm verification failed")
	// ErrInvalidConfig rejects storm settings that cannot run.
	ErrInvalidConfig = errors.New("invalid storm config")
)
