package graph

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/conveyorbuild/conveyor/src/auth"
)

// Options configures an Executor.
type Options struct {
	// Parallelism bounds the number of concurrently running tasks.
	// Defaults to the CPU count.
	Parallelism int

	// IsFatal decides whether a task error aborts the whole run
	// instead of only cascading to dependents. Defaults to treating
	// credential-restore failures as fatal.
	IsFatal func(error) bool
}

// Executor walks a validated graph and drives every task to a
// terminal status.
type Executor struct {
	g       *Graph
	par     int
	isFatal func(error) bool

	// locks serialize tasks that declare the same resource file, so
	// two credential patches never overlap on one path.
	locks map[string]*sync.Mutex
}

// NewExecutor prepares an executor for a validated graph.
func NewExecutor(g *Graph, opts Options) (*Executor, error) {
	if !g.validated {
		return nil, fmt.Errorf("graph: validate before executing")
	}

	par := opts.Parallelism
	if par <= 0 {
		par = runtime.NumCPU()
	}
	isFatal := opts.IsFatal
	if isFatal == nil {
		isFatal = func(err error) bool {
			var re *auth.RestoreError
			return errors.As(err, &re)
		}
	}

	locks := map[string]*sync.Mutex{}
	for _, t := range g.Tasks() {
		for _, res := range t.Resources {
			if _, ok := locks[res]; !ok {
				locks[res] = &sync.Mutex{}
			}
		}
	}

	return &Executor{g: g, par: par, isFatal: isFatal, locks: locks}, nil
}

type completion struct {
	t   *Task
	err error
	dur time.Duration
}

// Run executes the graph. Per-task failures are recorded in the
// report and cascade to dependents as skipped; the returned error is
// non-nil only for fatal aborts (credential-restore failures), which
// cancel everything still pending.
//
// Cancelling ctx lets in-flight tasks finish their current scope
// (a credential patch is never abandoned mid-flight) and moves
// not-yet-started tasks to cancelled.
func (e *Executor) Run(ctx context.Context) (*Report, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	total := len(e.g.order)
	remaining := make(map[string]int, total)
	for _, id := range e.g.order {
		remaining[id] = e.g.taskDepCount(id)
	}

	var ready []*Task
	for _, id := range e.g.order {
		if remaining[id] == 0 {
			ready = append(ready, e.g.tasks[id])
		}
	}

	var (
		terminal  int
		inflight  int
		cancelled bool
		fatal     error
	)
	done := make(chan completion)
	sem := semaphore.NewWeighted(int64(e.par))

	markTerminal := func(t *Task, s Status) {
		t.status = s
		terminal++
	}

	// skipDependents transitively marks pending dependents skipped.
	var skipDependents func(t *Task)
	skipDependents = func(t *Task) {
		for _, id := range e.g.dependents[t.ID] {
			dep := e.g.tasks[id]
			if dep.status != StatusPending {
				continue
			}
			markTerminal(dep, StatusSkipped)
			dep.err = fmt.Errorf("skipped: dependency %q failed", t.ID)
			skipDependents(dep)
		}
	}

	// unlockDependents feeds newly eligible tasks into the ready
	// queue, keeping insertion order as the deterministic tie-break.
	unlockDependents := func(t *Task) {
		for _, id := range e.g.dependents[t.ID] {
			dep := e.g.tasks[id]
			remaining[id]--
			if remaining[id] == 0 && dep.status == StatusPending {
				ready = insertTaskByIndex(ready, dep)
			}
		}
	}

	cancelPending := func() {
		for _, id := range e.g.order {
			t := e.g.tasks[id]
			if t.status == StatusPending {
				markTerminal(t, StatusCancelled)
			}
		}
		ready = nil
	}

	for terminal < total {
		if !cancelled && (fatal != nil || ctx.Err() != nil) {
			cancelled = true
			cancel()
			cancelPending()
			continue
		}

		// Dispatch in queue order while workers are free.
		if !cancelled && len(ready) > 0 && sem.TryAcquire(1) {
			t := ready[0]
			ready = ready[1:]

			if t.UpToDate != nil && t.UpToDate() {
				// Outputs are current: succeed without running. No
				// runner call, no resource lock, no credential patch.
				sem.Release(1)
				t.cached = true
				markTerminal(t, StatusSucceeded)
				unlockDependents(t)
				continue
			}

			t.status = StatusRunning
			inflight++
			go e.runTask(runCtx, t, done)
			continue
		}

		if inflight == 0 {
			if cancelled {
				break
			}
			// Validated graphs always make progress; anything left
			// unfinished here is a scheduling bug.
			return nil, fmt.Errorf("graph: executor stalled with %d/%d tasks terminal", terminal, total)
		}

		var c completion
		if cancelled {
			c = <-done
		} else {
			select {
			case c = <-done:
			case <-ctx.Done():
				continue // handled at the top of the loop
			}
		}

		sem.Release(1)
		inflight--
		c.t.duration = c.dur

		if c.err == nil {
			markTerminal(c.t, StatusSucceeded)
			unlockDependents(c.t)
			continue
		}

		if cancelled && errors.Is(c.err, context.Canceled) {
			// The task was interrupted by the run's own teardown, not
			// by a failure of its own.
			c.t.err = c.err
			markTerminal(c.t, StatusCancelled)
			continue
		}

		c.t.err = c.err
		markTerminal(c.t, StatusFailed)
		skipDependents(c.t)
		if fatal == nil && e.isFatal(c.err) {
			fatal = c.err
		}
	}

	report := e.buildReport(fatal)
	return report, fatal
}

// runTask takes the task's resource locks in sorted order, runs it,
// and reports completion. Lock order is fixed across all tasks so
// shared-file serialization cannot deadlock.
func (e *Executor) runTask(ctx context.Context, t *Task, done chan<- completion) {
	paths := append([]string{}, t.Resources...)
	sort.Strings(paths)
	var held []*sync.Mutex
	seen := map[string]bool{}
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		l := e.locks[p]
		l.Lock()
		held = append(held, l)
	}

	start := time.Now()
	err := t.Runner.Run(ctx, t)
	dur := time.Since(start)

	for i := len(held) - 1; i >= 0; i-- {
		held[i].Unlock()
	}
	done <- completion{t: t, err: err, dur: dur}
}

func insertTaskByIndex(ready []*Task, t *Task) []*Task {
	pos := len(ready)
	for i, r := range ready {
		if r.index > t.index {
			pos = i
			break
		}
	}
	ready = append(ready, nil)
	copy(ready[pos+1:], ready[pos:])
	ready[pos] = t
	return ready
}
