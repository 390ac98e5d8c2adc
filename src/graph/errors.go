package graph

import (
	"fmt"
	"strings"
)

// DuplicateTaskError reports a second AddTask with an existing id.
type DuplicateTaskError struct {
	ID string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("graph: task %q is already defined", e.ID)
}

// UnresolvedDependencyError reports a dependency identifier that
// names neither a task nor a declared external artifact.
type UnresolvedDependencyError struct {
	TaskID     string
	Dependency string
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("graph: task %q depends on unknown %q", e.TaskID, e.Dependency)
}

// CycleError reports a dependency cycle. Members holds the tasks on
// the detected cycle in dependency order.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("graph: dependency cycle: %s", strings.Join(e.Members, " -> "))
}
