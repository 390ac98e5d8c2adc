package graph

import "time"

// TaskReport is the terminal record of one task.
type TaskReport struct {
	ID       string
	Status   Status
	Cached   bool
	Duration time.Duration
	Output   string
	Err      error
}

// Report aggregates the outcome of a whole run for the reporting
// layer. Tasks appear in insertion order.
type Report struct {
	Tasks []TaskReport
	Fatal error
}

func (e *Executor) buildReport(fatal error) *Report {
	r := &Report{Fatal: fatal}
	for _, t := range e.g.Tasks() {
		r.Tasks = append(r.Tasks, TaskReport{
			ID:       t.ID,
			Status:   t.status,
			Cached:   t.cached,
			Duration: t.duration,
			Output:   t.Output(),
			Err:      t.err,
		})
	}
	return r
}

// OK reports overall success: no task failed and the run was not
// fatally aborted.
func (r *Report) OK() bool {
	if r.Fatal != nil {
		return false
	}
	for _, t := range r.Tasks {
		if t.Status == StatusFailed {
			return false
		}
	}
	return true
}

// Failed returns the ids of failed tasks, in insertion order.
func (r *Report) Failed() []string {
	var out []string
	for _, t := range r.Tasks {
		if t.Status == StatusFailed {
			out = append(out, t.ID)
		}
	}
	return out
}

// Counts tallies tasks per terminal status.
func (r *Report) Counts() map[Status]int {
	counts := map[Status]int{}
	for _, t := range r.Tasks {
		counts[t.Status]++
	}
	return counts
}
