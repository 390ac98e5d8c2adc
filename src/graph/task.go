// Package graph models the build as a directed acyclic graph of
// tasks and executes it: validation (duplicates, unresolved
// dependencies, cycles), deterministic parallel scheduling, failure
// cascade, and per-file resource serialization for tasks that patch
// the same configuration file.
package graph

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Status is the execution state of a task.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusSkipped   // never ran: an upstream dependency failed
	StatusCancelled // never ran: the run was cancelled first
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusSkipped || s == StatusCancelled
}

// Runner is the unit of work a task performs.
type Runner interface {
	Run(ctx context.Context, t *Task) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, t *Task) error

func (f RunnerFunc) Run(ctx context.Context, t *Task) error { return f(ctx, t) }

// Task is one unit of build work. Fields are declared at graph-build
// time; status is mutated only by the executor and retained after the
// run for reporting.
type Task struct {
	// ID uniquely names the task within its graph.
	ID string

	// Deps lists task or artifact identifiers that must succeed
	// before this task may start.
	Deps []string

	// Inputs and Outputs declare the files this task consumes and
	// produces. They feed the up-to-date check and the report.
	Inputs  []string
	Outputs []string

	// Resources lists files this task needs exclusive access to,
	// typically configuration files the credential injector patches.
	// The executor serializes tasks sharing a resource.
	Resources []string

	// Backend selects a build strategy for tasks that build images.
	Backend string

	// UpToDate, when set and returning true at dispatch time, lets
	// the task pass straight to succeeded without running.
	UpToDate func() bool

	// Runner does the actual work.
	Runner Runner

	index int // insertion order, the deterministic tie-break

	status   Status
	cached   bool
	err      error
	duration time.Duration

	logMu sync.Mutex
	log   bytes.Buffer
}

// Status returns the task's current execution state.
func (t *Task) Status() Status { return t.status }

// Err returns the failure recorded for the task, if any.
func (t *Task) Err() error { return t.err }

// Duration returns how long the task ran.
func (t *Task) Duration() time.Duration { return t.duration }

// Cached reports whether the task succeeded via its up-to-date check
// without running.
func (t *Task) Cached() bool { return t.cached }

// Logf appends a formatted line to the task's captured output.
func (t *Task) Logf(format string, args ...any) {
	t.logMu.Lock()
	fmt.Fprintf(&t.log, format+"\n", args...)
	t.logMu.Unlock()
}

// LogWriter returns a writer into the task's captured output, for
// mirroring backend process output.
func (t *Task) LogWriter() io.Writer { return taskLogWriter{t} }

// Output returns everything the task logged.
func (t *Task) Output() string {
	t.logMu.Lock()
	defer t.logMu.Unlock()
	return t.log.String()
}

type taskLogWriter struct{ t *Task }

func (w taskLogWriter) Write(p []byte) (int, error) {
	w.t.logMu.Lock()
	defer w.t.logMu.Unlock()
	return w.t.log.Write(p)
}
