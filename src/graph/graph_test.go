package graph

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"
)

func noopRunner() Runner {
	return RunnerFunc(func(ctx context.Context, t *Task) error { return nil })
}

func mustAdd(t *testing.T, g *Graph, id string, deps ...string) {
	t.Helper()
	if err := g.AddTask(&Task{ID: id, Deps: deps, Runner: noopRunner()}); err != nil {
		t.Fatalf("AddTask(%s): %v", id, err)
	}
}

func TestAddTaskDuplicate(t *testing.T) {
	g := New()
	mustAdd(t, g, "build")

	err := g.AddTask(&Task{ID: "build", Runner: noopRunner()})
	var dup *DuplicateTaskError
	if !errors.As(err, &dup) {
		t.Fatalf("err = %v, want DuplicateTaskError", err)
	}
	if dup.ID != "build" {
		t.Errorf("DuplicateTaskError.ID = %q", dup.ID)
	}
}

func TestValidateUnresolvedDependency(t *testing.T) {
	g := New()
	mustAdd(t, g, "publish", "build")

	err := g.Validate()
	var unres *UnresolvedDependencyError
	if !errors.As(err, &unres) {
		t.Fatalf("err = %v, want UnresolvedDependencyError", err)
	}
	if unres.TaskID != "publish" || unres.Dependency != "build" {
		t.Errorf("unexpected error detail: %+v", unres)
	}
}

func TestValidateExternalArtifact(t *testing.T) {
	g := New()
	g.AddArtifact("dist/app.tar")
	mustAdd(t, g, "publish", "dist/app.tar")

	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateCycleNamesMembers(t *testing.T) {
	g := New()
	mustAdd(t, g, "a", "c")
	mustAdd(t, g, "b", "a")
	mustAdd(t, g, "c", "b")

	err := g.Validate()
	var cyc *CycleError
	if !errors.As(err, &cyc) {
		t.Fatalf("err = %v, want CycleError", err)
	}
	if len(cyc.Members) < 2 {
		t.Fatalf("CycleError.Members = %v, want at least one task named", cyc.Members)
	}
	onCycle := map[string]bool{"a": true, "b": true, "c": true}
	for _, m := range cyc.Members {
		if !onCycle[m] {
			t.Errorf("member %q is not on the cycle", m)
		}
	}
}

func TestValidateSelfDependency(t *testing.T) {
	g := New()
	mustAdd(t, g, "a", "a")

	var cyc *CycleError
	if err := g.Validate(); !errors.As(err, &cyc) {
		t.Fatalf("err = %v, want CycleError", err)
	}
}

func TestTopologyFixedAfterValidate(t *testing.T) {
	g := New()
	mustAdd(t, g, "a")
	if err := g.Validate(); err != nil {
		t.Fatal(err)
	}
	if err := g.AddTask(&Task{ID: "b", Runner: noopRunner()}); err == nil {
		t.Error("AddTask after Validate should fail")
	}
}

func TestTopologicalOrderDeterministic(t *testing.T) {
	build := func() *Graph {
		g := New()
		mustAdd(t, g, "lint")
		mustAdd(t, g, "build")
		mustAdd(t, g, "test", "build")
		mustAdd(t, g, "publish", "build", "test", "lint")
		if err := g.Validate(); err != nil {
			t.Fatal(err)
		}
		return g
	}

	first, err := build().TopologicalOrder()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"lint", "build", "test", "publish"}
	if !reflect.DeepEqual(first, want) {
		t.Fatalf("order = %v, want %v", first, want)
	}
	for i := 0; i < 10; i++ {
		again, _ := build().TopologicalOrder()
		if !reflect.DeepEqual(again, first) {
			t.Fatalf("order not reproducible: %v vs %v", again, first)
		}
	}
}

// randomDAG builds an acyclic graph by only allowing edges from later
// to earlier tasks.
func randomDAG(t *testing.T, rng *rand.Rand, n int) *Graph {
	t.Helper()
	g := New()
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("t%02d", i)
		var deps []string
		for j := 0; j < i; j++ {
			if rng.Intn(3) == 0 {
				deps = append(deps, ids[j])
			}
		}
		mustAdd(t, g, ids[i], deps...)
	}
	return g
}

func TestValidateAcceptsRandomAcyclicGraphs(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 50; trial++ {
		g := randomDAG(t, rng, 2+rng.Intn(20))
		if err := g.Validate(); err != nil {
			t.Fatalf("trial %d: Validate rejected an acyclic graph: %v", trial, err)
		}
	}
}

func TestValidateRejectsRandomGraphsWithInjectedCycle(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for trial := 0; trial < 50; trial++ {
		n := 3 + rng.Intn(15)
		g := randomDAG(t, rng, n)

		// Close a cycle: make an early task depend on a later one.
		from := rng.Intn(n - 1)
		to := from + 1 + rng.Intn(n-from-1)
		early := g.tasks[fmt.Sprintf("t%02d", from)]
		late := fmt.Sprintf("t%02d", to)
		early.Deps = append(early.Deps, late)
		late2 := g.tasks[late]
		late2.Deps = append(late2.Deps, early.ID)

		var cyc *CycleError
		if err := g.Validate(); !errors.As(err, &cyc) {
			t.Fatalf("trial %d: Validate = %v, want CycleError", trial, err)
		} else if len(cyc.Members) == 0 {
			t.Fatalf("trial %d: cycle error names no tasks", trial)
		}
	}
}
