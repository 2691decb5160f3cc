package emitter

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/yairfalse/awsexport/pkg/snapshot"
)

// LogEmitter writes one structured log event per task.
type LogEmitter struct {
	logger zerolog.Logger
}

// NewLogEmitter creates a log emitter.
func NewLogEmitter(logger zerolog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

// Emit logs the task result. Tolerated failures keep their cause so a
// missing file can be told apart from a permissions problem after the fact.
func (e *LogEmitter) Emit(ctx context.Context, result snapshot.Result) error {
	var event *zerolog.Event
	switch outcome(result) {
	case "written":
		event = e.logger.Debug().
			Str("path", result.Path).
			Int("bytes", result.Bytes)
	case "tolerated":
		event = e.logger.Warn().Err(result.Err)
	default:
		event = e.logger.Error().Err(result.Err)
	}

	event.
		Ctx(ctx).
		Str("task", result.Task.Name).
		Str("tier", string(result.Task.Tier)).
		Str("outcome", outcome(result)).
		Dur("duration", result.Duration).
		Msg("export task finished")

	return nil
}

// Close is a no-op for the log emitter.
func (e *LogEmitter) Close() error {
	return nil
}
