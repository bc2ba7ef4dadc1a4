package api

import (
	"errors"
	"net/http"

	service "github.com/okian/starboard/internal/app"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrLimitExceeded = errors.New("limit exceeded")
)

// statusFor maps an engine error kind to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrLimitExceeded):
		return http.StatusBadRequest, "limit_exceeded"
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrInvalidScope):
		return http.StatusBadRequest, "invalid_scope"
	case errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrConcurrencyConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, service.ErrSkillBlocked):
		return http.StatusForbidden, "skill_blocked"
	case errors.Is(err, service.ErrStorage):
		return http.StatusServiceUnavailable, "storage_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func badRequest(msg string) error {
	return &requestError{kind: ErrBadRequest, msg: msg}
}

type requestError struct {
	kind error
	msg  string
}

func (e *requestError) Error() string        { return e.msg }
func (e *requestError) Is(target error) bool { return target == e.kind }
