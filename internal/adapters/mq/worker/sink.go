package worker

import (
	"context"

	"github.com/okian/starboard/internal/domain/model"
	"github.com/okian/starboard/pkg/logger"
	"github.com/okian/starboard/pkg/metrics"
)

// Sink receives every committed change log entry.
type Sink interface {
	Name() string
	Handle(ctx context.Context, e model.ChangeLogEntry) error
}

// MetricsSink counts entries by source.
type MetricsSink struct{}

// Name implements Sink.
func (MetricsSink) Name() string { return "metrics" }

// Handle implements Sink.
func (MetricsSink) Handle(_ context.Context, e model.ChangeLogEntry) error { //nolint:gocritic // hugeParam: entries travel by value
	metrics.RecordFeedEntry(string(e.Source))
	return nil
}

// LogSink writes each entry as one structured log line.
type LogSink struct {
	Logger logger.Logger
}

// Name implements Sink.
func (LogSink) Name() string { return "log" }

// Handle implements Sink.
func (s LogSink) Handle(ctx context.Context, e model.ChangeLogEntry) error { //nolint:gocritic // hugeParam: entries travel by value
	fields := []logger.Field{
		logger.String("entry_id", e.ID),
		logger.String("session_id", e.SessionID),
		logger.String("actor_id", e.ActorID),
		logger.String("team_id", e.TeamID),
		logger.String("location_id", e.LocationID),
		logger.String("change_source", string(e.Source)),
		logger.Float64("old_stars", e.OldStars),
		logger.Float64("new_stars", e.NewStars),
		logger.Float64("change", e.Change),
		logger.Any("factors", e.Factors),
	}
	if e.Requested != nil {
		fields = append(fields, logger.Float64("requested", *e.Requested))
	}
	s.Logger.Info(ctx, "star change", fields...)
	return nil
}
