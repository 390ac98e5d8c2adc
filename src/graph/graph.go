package graph

import "fmt"

// Graph is a DAG over task identifiers. Tasks and external artifacts
// are added during assembly; after Validate succeeds the topology is
// fixed and the graph can be handed to an Executor.
type Graph struct {
	tasks     map[string]*Task
	order     []string
	artifacts map[string]struct{}

	// dependents is the reverse adjacency, filled in by Validate.
	// Slices preserve insertion order of the depending tasks.
	dependents map[string][]string

	validated bool
}

// New returns an empty task graph.
func New() *Graph {
	return &Graph{
		tasks:      map[string]*Task{},
		artifacts:  map[string]struct{}{},
		dependents: map[string][]string{},
	}
}

// AddTask registers a task. Task ids are unique; re-adding an id
// fails with DuplicateTaskError.
func (g *Graph) AddTask(t *Task) error {
	if g.validated {
		return fmt.Errorf("graph: topology is fixed after validation")
	}
	if t.ID == "" {
		return fmt.Errorf("graph: task has no id")
	}
	if t.Runner == nil {
		return fmt.Errorf("graph: task %q has no runner", t.ID)
	}
	if _, exists := g.tasks[t.ID]; exists {
		return &DuplicateTaskError{ID: t.ID}
	}
	t.index = len(g.order)
	t.status = StatusPending
	g.tasks[t.ID] = t
	g.order = append(g.order, t.ID)
	return nil
}

// AddArtifact declares an external artifact identifier (for example a
// file produced outside the graph) that tasks may list as a
// dependency. Artifacts are considered always up to date.
func (g *Graph) AddArtifact(id string) {
	g.artifacts[id] = struct{}{}
}

// Task returns the task registered under id.
func (g *Graph) Task(id string) (*Task, bool) {
	t, ok := g.tasks[id]
	return t, ok
}

// Tasks returns all tasks in insertion order.
func (g *Graph) Tasks() []*Task {
	out := make([]*Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.tasks[id])
	}
	return out
}

// Validate checks that every dependency resolves and that the graph
// is acyclic. After it returns nil the topology is immutable.
func (g *Graph) Validate() error {
	g.dependents = map[string][]string{}

	for _, id := range g.order {
		t := g.tasks[id]
		for _, dep := range t.Deps {
			if dep == id {
				return &CycleError{Members: []string{id, id}}
			}
			if _, ok := g.tasks[dep]; ok {
				g.dependents[dep] = append(g.dependents[dep], id)
				continue
			}
			if _, ok := g.artifacts[dep]; ok {
				continue
			}
			return &UnresolvedDependencyError{TaskID: id, Dependency: dep}
		}
	}

	if err := g.detectCycle(); err != nil {
		return err
	}

	g.validated = true
	return nil
}

// detectCycle runs a depth-first search with a white/grey/black
// coloring. On hitting a grey node the current path suffix is the
// cycle.
func (g *Graph) detectCycle() error {
	const (
		white = 0 // unvisited
		grey  = 1 // on the current path
		black = 2 // fully explored
	)
	color := make(map[string]int, len(g.tasks))
	var path []string

	var visit func(id string) *CycleError
	visit = func(id string) *CycleError {
		color[id] = grey
		path = append(path, id)

		for _, dep := range g.tasks[id].Deps {
			if _, ok := g.tasks[dep]; !ok {
				continue // external artifact
			}
			switch color[dep] {
			case grey:
				// Slice the cycle out of the current path.
				start := 0
				for i, p := range path {
					if p == dep {
						start = i
						break
					}
				}
				members := append(append([]string{}, path[start:]...), dep)
				return &CycleError{Members: members}
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	for _, id := range g.order {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// TopologicalOrder returns task ids in a valid execution order, with
// ties broken by insertion order. Requires a validated graph.
func (g *Graph) TopologicalOrder() ([]string, error) {
	if !g.validated {
		return nil, fmt.Errorf("graph: not validated")
	}

	remaining := make(map[string]int, len(g.tasks))
	for _, id := range g.order {
		remaining[id] = g.taskDepCount(id)
	}

	var out, ready []string
	for _, id := range g.order {
		if remaining[id] == 0 {
			ready = append(ready, id)
		}
	}

	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		out = append(out, id)
		for _, dep := range g.dependents[id] {
			remaining[dep]--
			if remaining[dep] == 0 {
				ready = insertByIndex(g, ready, dep)
			}
		}
	}
	return out, nil
}

// taskDepCount counts dependencies that are tasks (artifacts are
// always satisfied).
func (g *Graph) taskDepCount(id string) int {
	n := 0
	for _, dep := range g.tasks[id].Deps {
		if _, ok := g.tasks[dep]; ok {
			n++
		}
	}
	return n
}

// insertByIndex inserts id into ready keeping insertion-order sort.
func insertByIndex(g *Graph, ready []string, id string) []string {
	idx := g.tasks[id].index
	pos := len(ready)
	for i, r := range ready {
		if g.tasks[r].index > idx {
			pos = i
			break
		}
	}
	ready = append(ready, "")
	copy(ready[pos+1:], ready[pos:])
	ready[pos] = id
	return ready
}
