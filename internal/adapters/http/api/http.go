// Package api exposes the engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/starboard/internal/adapters/repository"
	service "github.com/okian/starboard/internal/app"
	"github.com/okian/starboard/internal/domain/model"
	"github.com/okian/starboard/internal/domain/types"
	"github.com/okian/starboard/pkg/logger"
)

// Dependencies required by HTTP handlers. *service.Engine implements it.
type Dependencies interface {
	StarsDependencies
	EffectsDependencies
	ActivationsDependencies
	LocationsDependencies
	ReportsDependencies
}

// StarsDependencies covers star mutations.
type StarsDependencies interface {
	ApplyDelta(ctx context.Context, req service.DeltaRequest) (service.DeltaResult, error)
}

// EffectsDependencies covers the effect lifecycle.
type EffectsDependencies interface {
	Activate(ctx context.Context, req service.EffectRequest) (model.ActiveEffect, error)
	ActiveEffects(ctx context.Context, q service.EffectQuery) ([]model.ActiveEffect, error)
	Close(ctx context.Context, id string) (model.ActiveEffect, error)
	SweepExpired(ctx context.Context, asOf time.Time) (int, error)
}

// ActivationsDependencies covers cards and events.
type ActivationsDependencies interface {
	PlayCard(ctx context.Context, req service.CardRequest) (service.ActivationResult, error)
	TriggerEvent(ctx context.Context, req service.EventRequest) (service.ActivationResult, error)
	CloseActivation(ctx context.Context, id string) (service.ActivationResult, error)
}

// LocationsDependencies covers per-location reads and recomputes.
type LocationsDependencies interface {
	Recompute(ctx context.Context, locationID string) error
	Cells(ctx context.Context, locationID string) ([]types.CellView, error)
}

// ReportsDependencies covers standings and the change log.
type ReportsDependencies interface {
	Standings(ctx context.Context, sessionID string, limit int) ([]types.Standing, error)
	ChangeLogs(ctx context.Context, q repository.LogQuery) ([]model.ChangeLogEntry, int, error)
}

// Server wires HTTP routes for the engine API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	starsHandler       *StarsHandler
	effectsHandler     *EffectsHandler
	activationsHandler *ActivationsHandler
	locationsHandler   *LocationsHandler
	reportsHandler     *ReportsHandler
}

// Option configures a Server.
type Option func(*settings)

type settings struct {
	maxLogLimit       int
	maxStandingsLimit int
	logger            logger.Logger
}

// WithMaxLogLimit caps GET /logs?limit.
func WithMaxLogLimit(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxLogLimit = n
		}
	}
}

// WithMaxStandingsLimit caps GET /sessions/{id}/standings?limit.
func WithMaxStandingsLimit(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxStandingsLimit = n
		}
	}
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	cfg := settings{maxLogLimit: 500, maxStandingsLimit: 100}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logger.Nop()
	}
	errs := errorWriter{logger: cfg.logger}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		starsHandler:       &StarsHandler{deps: deps, errs: errs},
		effectsHandler:     &EffectsHandler{deps: deps, errs: errs},
		activationsHandler: &ActivationsHandler{deps: deps, errs: errs},
		locationsHandler:   &LocationsHandler{deps: deps, errs: errs},
		reportsHandler:     &ReportsHandler{deps: deps, errs: errs, maxLogLimit: cfg.maxLogLimit, maxStandingsLimit: cfg.maxStandingsLimit},
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(h, endpoint))
	}
	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /stats", "stats", s.statsHandler.HandleStats)

	route("POST /stars", "stars", s.starsHandler.HandleApplyDelta)

	route("POST /effects", "effects", s.effectsHandler.HandleActivate)
	route("GET /effects", "effects", s.effectsHandler.HandleList)
	route("POST /effects/sweep", "effects_sweep", s.effectsHandler.HandleSweep)
	route("POST /effects/{id}/close", "effects_close", s.effectsHandler.HandleClose)

	route("POST /cards", "cards", s.activationsHandler.HandlePlayCard)
	route("POST /events", "events", s.activationsHandler.HandleTriggerEvent)
	route("POST /activations/{id}/close", "activations_close", s.activationsHandler.HandleClose)

	route("POST /locations/{id}/recompute", "recompute", s.locationsHandler.HandleRecompute)
	route("GET /locations/{id}/cells", "cells", s.locationsHandler.HandleCells)

	route("GET /sessions/{id}/standings", "standings", s.reportsHandler.HandleStandings)
	route("GET /logs", "logs", s.reportsHandler.HandleLogs)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// errorWriter maps errors to responses and logs server-side failures.
type errorWriter struct {
	logger logger.Logger
}

func (e errorWriter) write(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		e.logger.Error(r.Context(), "request failed",
			logger.String("op", op),
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
	}
	writeError(w, status, code, err)
}
