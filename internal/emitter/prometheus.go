package emitter

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/awsexport/pkg/snapshot"
)

// PrometheusEmitter records task metrics via OTEL and, on Close, writes the
// gathered registry to a node_exporter textfile.
type PrometheusEmitter struct {
	gatherer prometheus.Gatherer
	textfile string

	// Metrics
	taskDuration  metric.Float64Histogram
	tasksTotal    metric.Int64Counter
	snapshotBytes metric.Int64Counter
}

// NewPrometheusEmitter creates a Prometheus emitter. The meter must be
// backed by a reader registered on gatherer. An empty textfile disables the
// write on Close.
func NewPrometheusEmitter(meter metric.Meter, gatherer prometheus.Gatherer, textfile string) (*PrometheusEmitter, error) {
	e := &PrometheusEmitter{
		gatherer: gatherer,
		textfile: textfile,
	}

	if err := e.initMetrics(meter); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return e, nil
}

func (e *PrometheusEmitter) initMetrics(meter metric.Meter) error {
	var err error

	e.taskDuration, err = meter.Float64Histogram(
		"awsexport_task_duration_seconds",
		metric.WithDescription("Time taken by each export query"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create task_duration histogram: %w", err)
	}

	e.tasksTotal, err = meter.Int64Counter(
		"awsexport_tasks_total",
		metric.WithDescription("Export tasks run, by tier and outcome"),
	)
	if err != nil {
		return fmt.Errorf("create tasks counter: %w", err)
	}

	e.snapshotBytes, err = meter.Int64Counter(
		"awsexport_snapshot_bytes_total",
		metric.WithDescription("Bytes written to snapshot files"),
	)
	if err != nil {
		return fmt.Errorf("create snapshot_bytes counter: %w", err)
	}

	return nil
}

// Emit records the task result as metrics.
func (e *PrometheusEmitter) Emit(ctx context.Context, result snapshot.Result) error {
	attrs := []attribute.KeyValue{
		attribute.String("task", result.Task.Name),
		attribute.String("tier", string(result.Task.Tier)),
	}

	e.taskDuration.Record(ctx, result.Duration.Seconds(), metric.WithAttributes(attrs...))
	e.tasksTotal.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String("outcome", outcome(result)))...))
	if result.OK() {
		e.snapshotBytes.Add(ctx, int64(result.Bytes), metric.WithAttributes(attrs...))
	}

	return nil
}

// Close writes the textfile, if one is configured.
func (e *PrometheusEmitter) Close() error {
	if e.textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(e.textfile, e.gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	log.Debug().Str("path", e.textfile).Msg("metrics textfile written")
	return nil
}
