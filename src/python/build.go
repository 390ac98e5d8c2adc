package python

import (
	"context"
	"fmt"

	"github.com/conveyorbuild/conveyor/src/graph"
	"github.com/conveyorbuild/conveyor/src/proc"
)

// BuildOptions tune a distribution build.
type BuildOptions struct {
	// OutputDir receives the built distributions. Defaults to dist/
	// inside the project directory.
	OutputDir string

	// AsVersion rewrites the project version before building.
	AsVersion string
}

// NewBuildTask returns a task building the project's distributions
// with its detected build system.
func NewBuildTask(runner proc.Runner, settings *Settings, opts BuildOptions, deps ...string) (*graph.Task, error) {
	var steps [][]string
	switch settings.BuildSystem {
	case BuildSystemPoetry:
		if opts.AsVersion != "" {
			steps = append(steps, []string{"poetry", "version", opts.AsVersion})
		}
		steps = append(steps, []string{"poetry", "build"})
	case BuildSystemSlap:
		if opts.AsVersion != "" {
			steps = append(steps, []string{"slap", "release", opts.AsVersion})
		}
		out := opts.OutputDir
		if out == "" {
			out = "dist"
		}
		steps = append(steps, []string{"slap", "publish", "--dry", "-b", out})
	default:
		return nil, fmt.Errorf("python: unsupported build system %q", settings.BuildSystem)
	}

	return &graph.Task{
		ID:     "pythonBuild",
		Deps:   deps,
		Inputs: []string{"pyproject.toml"},
		Runner: graph.RunnerFunc(func(ctx context.Context, task *graph.Task) error {
			for _, argv := range steps {
				if _, err := proc.RunStep(ctx, runner, task, proc.Command{Argv: argv, Dir: settings.Dir}); err != nil {
					return err
				}
			}
			return nil
		}),
	}, nil
}
