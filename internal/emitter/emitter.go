// Package emitter defines the observers notified after each export task.
package emitter

import (
	"context"

	"github.com/yairfalse/awsexport/pkg/snapshot"
)

// Emitter records task results to a backend.
type Emitter interface {
	// Emit records the outcome of one task.
	Emit(ctx context.Context, result snapshot.Result) error

	// Close flushes and cleans up resources.
	Close() error
}

// MultiEmitter fans out to multiple emitters.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates an emitter that sends to multiple backends.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit sends to all emitters, returns first error.
func (m *MultiEmitter) Emit(ctx context.Context, result snapshot.Result) error {
	for _, e := range m.emitters {
		if err := e.Emit(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all emitters.
func (m *MultiEmitter) Close() error {
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			return err
		}
	}
	return nil
}

// outcome classifies a result for logs and metric labels.
func outcome(r snapshot.Result) string {
	switch {
	case r.OK():
		return "written"
	case r.Task.Tier == snapshot.TierSoft:
		return "tolerated"
	default:
		return "failed"
	}
}
