// Package exporter runs the export task sequence for one session.
package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/awsexport/internal/emitter"
	"github.com/yairfalse/awsexport/internal/telemetry"
	"github.com/yairfalse/awsexport/pkg/snapshot"
)

// ErrAborted wraps the error of a hard-tier task that stopped the run.
var ErrAborted = errors.New("export aborted")

// Exporter writes one JSON snapshot per task into a fresh session directory.
type Exporter struct {
	root    string
	tasks   []snapshot.Task
	out     io.Writer
	emitter emitter.Emitter
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithOutput sets where progress lines are printed. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(e *Exporter) { e.out = w }
}

// WithEmitter sets the emitter notified after every task.
func WithEmitter(em emitter.Emitter) Option {
	return func(e *Exporter) { e.emitter = em }
}

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Exporter) { e.tracer = t }
}

// WithClock overrides time.Now, which names the session directory.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// New creates an exporter that runs tasks in order under root.
func New(root string, tasks []snapshot.Task, opts ...Option) *Exporter {
	e := &Exporter{
		root:   root,
		tasks:  tasks,
		out:    os.Stdout,
		tracer: otel.Tracer(telemetry.InstrumentationName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the task sequence once. A hard-tier failure stops the run
// and returns an error wrapping ErrAborted. Files already written are left
// in place.
func (e *Exporter) Run(ctx context.Context) (snapshot.Report, error) {
	begin := time.Now()
	session := snapshot.NewSession(e.root, e.now())
	report := snapshot.Report{Session: session, State: snapshot.StateAborted}

	ctx, span := e.tracer.Start(ctx, "export",
		trace.WithAttributes(
			attribute.String("session.id", session.ID),
			attribute.String("session.dir", session.Dir),
			attribute.Int("tasks", len(e.tasks)),
		),
	)
	defer span.End()

	logger := log.With().Str("session", session.ID).Str("dir", session.Dir).Logger()
	logger.Info().Int("tasks", len(e.tasks)).Msg("export starting")

	if err := os.MkdirAll(session.Dir, 0o755); err != nil {
		span.SetStatus(codes.Error, "create export directory")
		return report, fmt.Errorf("create export directory: %w", err)
	}

	for _, task := range e.tasks {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(begin)
			span.SetStatus(codes.Error, "cancelled")
			return report, fmt.Errorf("%w: %w", ErrAborted, err)
		}

		fmt.Fprintf(e.out, "Exporting %s...\n", task.Label)

		result := e.runTask(ctx, session, task)
		report.Results = append(report.Results, result)
		e.emit(ctx, result)

		// A query cut short by cancellation aborts whatever its tier.
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(begin)
			span.SetStatus(codes.Error, "cancelled")
			return report, fmt.Errorf("%w: %w", ErrAborted, err)
		}

		if result.OK() {
			continue
		}
		if task.Tier == snapshot.TierSoft {
			fmt.Fprintln(e.out, task.Fallback)
			continue
		}

		report.Duration = time.Since(begin)
		span.SetStatus(codes.Error, "hard task failed")
		logger.Error().Err(result.Err).Str("task", task.Name).Msg("export aborted")
		return report, fmt.Errorf("%w: export %s: %w", ErrAborted, task.File, result.Err)
	}

	report.State = snapshot.StateCompleted
	report.Duration = time.Since(begin)
	fmt.Fprintf(e.out, "Export completed: %s\n", session.Dir)

	logger.Info().
		Int("written", report.Written()).
		Int("tolerated", len(report.SoftFailures())).
		Dur("duration", report.Duration).
		Msg("export complete")

	return report, nil
}

// runTask issues the task's query once and writes the response on success.
// Nothing is written when the query fails.
func (e *Exporter) runTask(ctx context.Context, session snapshot.Session, task snapshot.Task) snapshot.Result {
	ctx, span := e.tracer.Start(ctx, "export."+task.Name,
		trace.WithAttributes(
			attribute.String("task.file", task.FileName()),
			attribute.String("task.tier", string(task.Tier)),
		),
	)
	defer span.End()

	start := time.Now()
	result := snapshot.Result{Task: task}

	path := filepath.Join(session.Dir, task.FileName())
	n, err := writeSnapshot(ctx, path, task.Query)
	result.Duration = time.Since(start)
	if err != nil {
		result.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result
	}

	result.Path = path
	result.Bytes = n
	span.SetAttributes(attribute.Int("snapshot.bytes", n))
	return result
}

func writeSnapshot(ctx context.Context, path string, query snapshot.Query) (int, error) {
	doc, err := query(ctx)
	if err != nil {
		return 0, err
	}

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return 0, fmt.Errorf("encode snapshot: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("write snapshot: %w", err)
	}
	return len(data), nil
}

func (e *Exporter) emit(ctx context.Context, result snapshot.Result) {
	if e.emitter == nil {
		return
	}
	if err := e.emitter.Emit(ctx, result); err != nil {
		log.Warn().Ctx(ctx).Err(err).Str("task", result.Task.Name).Msg("emit failed")
	}
}
