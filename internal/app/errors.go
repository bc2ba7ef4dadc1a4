package service

import (
	"errors"

	"github.com/okian/starboard/internal/adapters/repository"
	"github.com/okian/starboard/internal/domain/effects"
)

// Error kinds returned by the engine. Match them with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidScope        = errors.New("invalid scope")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrStorage             = errors.New("storage error")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrSkillBlocked        = errors.New("skill blocked")
)

// Error is a failed engine operation tagged with its kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the error kind as well as the wrapped chain.
func (e *Error) Is(target error) bool { return target == e.Kind }

func fail(op string, kind error, msg string) error {
	return &Error{Op: op, Kind: kind, Err: errors.New(msg)}
}

// wrap classifies a lower layer error. Errors that already carry a kind
// pass through unchanged; anything unrecognized, timeouts included, is a
// storage error.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ee *Error
	if errors.As(err, &ee) {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return &Error{Op: op, Kind: ErrNotFound, Err: err}
	case errors.Is(err, repository.ErrConflict):
		return &Error{Op: op, Kind: ErrConcurrencyConflict, Err: err}
	case errors.Is(err, effects.ErrInvalidScope):
		return &Error{Op: op, Kind: ErrInvalidScope, Err: err}
	case errors.Is(err, effects.ErrUnknownCard), errors.Is(err, effects.ErrUnknownEvent):
		return &Error{Op: op, Kind: ErrInvalidArgument, Err: err}
	default:
		return &Error{Op: op, Kind: ErrStorage, Err: err}
	}
}

// outcome names an error kind for metrics labels.
func outcome(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrInvalidScope):
		return "invalid"
	case errors.Is(err, ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, ErrSkillBlocked):
		return "blocked"
	default:
		return "error"
	}
}
