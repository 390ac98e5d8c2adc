package cargo

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/conveyorbuild/conveyor/src/auth"
	"github.com/conveyorbuild/conveyor/src/graph"
	"github.com/conveyorbuild/conveyor/src/proc"
	"github.com/conveyorbuild/conveyor/src/settings"
)

// PublishOptions tune a cargo publish invocation.
type PublishOptions struct {
	NoVerify   bool
	AllowDirty bool
	Args       []string
}

// NewPublishTask returns a task publishing the crate in dir to the
// named registry. The registry's token is injected into
// .cargo/config.toml only for the span of the publish command; the
// config file is declared as an exclusive resource.
func NewPublishTask(store *settings.Store, inj *auth.Injector, runner proc.Runner, dir, registryName string, opts PublishOptions, deps ...string) (*graph.Task, error) {
	reg, err := store.Resolve(registryName)
	if err != nil {
		return nil, err
	}
	if reg.PublishToken == "" {
		return nil, &settings.ConfigurationError{Reason: fmt.Sprintf("registry %q has no publish token", registryName)}
	}

	configPath := filepath.Join(dir, ConfigFile)
	return &graph.Task{
		ID:        "cargoPublish",
		Deps:      deps,
		Resources: []string{configPath},
		Runner: graph.RunnerFunc(func(ctx context.Context, task *graph.Task) error {
			argv := []string{"cargo", "publish", "--registry", reg.Name}
			if opts.NoVerify {
				argv = append(argv, "--no-verify")
			}
			if opts.AllowDirty {
				argv = append(argv, "--allow-dirty")
			}
			argv = append(argv, opts.Args...)

			// The token reaches cargo through the injected config,
			// never through the argument list.
			return inj.WithInjectedAuth(configPath, reg, auth.MergeCargoConfig, func() error {
				_, err := proc.RunStep(ctx, runner, task, proc.Command{Argv: argv, Dir: dir})
				return err
			})
		}),
	}, nil
}
