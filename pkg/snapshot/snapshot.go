// Package snapshot defines the export session model for awsexport.
package snapshot

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// DirPrefix is prepended to the session timestamp to name the export directory.
const DirPrefix = "aws-infrastructure-export-"

// TimestampLayout formats the session start time (YYYYMMDD-HHMMSS).
const TimestampLayout = "20060102-150405"

// Tier decides what happens when a task's query fails.
type Tier string

const (
	// TierHard aborts the whole run on failure.
	TierHard Tier = "hard"
	// TierSoft prints a fallback message and moves on.
	TierSoft Tier = "soft"
)

// Query performs one read-only call and returns a JSON-encodable document.
type Query func(ctx context.Context) (any, error)

// Task is one resource type in the export sequence.
type Task struct {
	Name     string // Short identifier (e.g., "ec2_instances")
	Label    string // Human-readable label used in progress output
	File     string // Output file name without extension
	Tier     Tier
	Fallback string // Printed instead of failing (soft tier only)
	Query    Query
}

// FileName returns the on-disk name of the task's snapshot.
func (t Task) FileName() string {
	return t.File + ".json"
}

// Result is the outcome of running a single task.
type Result struct {
	Task     Task
	Path     string // Empty when nothing was written
	Bytes    int
	Duration time.Duration
	Err      error
}

// OK reports whether the task produced a snapshot file.
func (r Result) OK() bool {
	return r.Err == nil
}

// State is the terminal state of an export session.
type State string

const (
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

// Session identifies one export run.
type Session struct {
	ID        string
	StartedAt time.Time
	Dir       string
}

// NewSession names a session under root using the given start time.
func NewSession(root string, startedAt time.Time) Session {
	return Session{
		ID:        uuid.NewString(),
		StartedAt: startedAt,
		Dir:       filepath.Join(root, DirName(startedAt)),
	}
}

// DirName returns the export directory name for a start time.
func DirName(t time.Time) string {
	return DirPrefix + t.Format(TimestampLayout)
}

// Report summarises a finished (or aborted) session.
type Report struct {
	Session  Session
	Results  []Result
	State    State
	Duration time.Duration
}

// Written returns the number of snapshot files produced.
func (r Report) Written() int {
	n := 0
	for _, res := range r.Results {
		if res.OK() {
			n++
		}
	}
	return n
}

// SoftFailures returns the tasks that failed and were tolerated.
func (r Report) SoftFailures() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.OK() && res.Task.Tier == TierSoft {
			out = append(out, res)
		}
	}
	return out
}
