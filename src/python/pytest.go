package python

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/conveyorbuild/conveyor/src/graph"
	"github.com/conveyorbuild/conveyor/src/proc"
)

// pytest exits with 5 when it collected no tests.
const pytestExitNoTests = 5

// TestOptions tune a pytest invocation.
type TestOptions struct {
	// IgnoreDirs are project-relative directories excluded from
	// collection.
	IgnoreDirs []string

	// AllowNoTests treats an empty test collection as success.
	AllowNoTests bool
}

// NewPytestTask returns a task running pytest over the project's
// tests directory.
func NewPytestTask(runner proc.Runner, settings *Settings, opts TestOptions, deps ...string) (*graph.Task, error) {
	if settings.TestsDir == "" && !opts.AllowNoTests {
		return nil, fmt.Errorf("python: no tests directory configured and none could be detected in %s", settings.Dir)
	}

	return &graph.Task{
		ID:   "pytest",
		Deps: deps,
		Runner: graph.RunnerFunc(func(ctx context.Context, task *graph.Task) error {
			if settings.TestsDir == "" {
				task.Logf("no tests directory, skipping collection")
				return nil
			}
			argv := []string{"pytest", "-vv", filepath.Join(settings.Dir, settings.TestsDir)}
			for _, dir := range opts.IgnoreDirs {
				argv = append(argv, "--ignore", filepath.Join(settings.Dir, dir))
			}

			var okExit []int
			if opts.AllowNoTests {
				okExit = append(okExit, pytestExitNoTests)
			}
			res, err := proc.RunStep(ctx, runner, task, proc.Command{Argv: argv, Dir: settings.Dir}, okExit...)
			if err != nil {
				return err
			}
			if res.ExitCode == pytestExitNoTests {
				task.Logf("pytest collected no tests")
			}
			return nil
		}),
	}, nil
}
