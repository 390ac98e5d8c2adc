package cargo

import (
	"context"

	"github.com/conveyorbuild/conveyor/src/graph"
	"github.com/conveyorbuild/conveyor/src/proc"
)

// BuildOptions tune a cargo build invocation.
type BuildOptions struct {
	Release     bool
	Incremental *bool // nil = cargo default
	Args        []string
}

// NewBuildTask returns a task running `cargo build` in dir.
func NewBuildTask(runner proc.Runner, dir string, opts BuildOptions, deps ...string) *graph.Task {
	return &graph.Task{
		ID:     "cargoBuild",
		Deps:   deps,
		Inputs: []string{"Cargo.toml"},
		Runner: graph.RunnerFunc(func(ctx context.Context, task *graph.Task) error {
			argv := []string{"cargo", "build"}
			if opts.Release {
				argv = append(argv, "--release")
			}
			argv = append(argv, opts.Args...)

			env := map[string]string{}
			if opts.Incremental != nil {
				env["CARGO_INCREMENTAL"] = "0"
				if *opts.Incremental {
					env["CARGO_INCREMENTAL"] = "1"
				}
			}
			_, err := proc.RunStep(ctx, runner, task, proc.Command{Argv: argv, Env: env, Dir: dir})
			return err
		}),
	}
}
