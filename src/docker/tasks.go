package docker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/conveyorbuild/conveyor/src/auth"
	"github.com/conveyorbuild/conveyor/src/graph"
	"github.com/conveyorbuild/conveyor/src/proc"
	"github.com/conveyorbuild/conveyor/src/settings"
)

// TaskOptions declares one image-build task.
type TaskOptions struct {
	ID      string
	Deps    []string
	Backend string // native, buildx, kaniko (default buildx)
	Spec    BuildSpec

	// Registry names the settings registry pushed to. Required when
	// Spec.Push is set.
	Registry string

	// ConfigPath is the docker config file patched for file-auth
	// backends. Defaults to ~/.docker/config.json.
	ConfigPath string
}

// DefaultConfigPath returns the standard docker client config path.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".docker", "config.json")
	}
	return filepath.Join(home, ".docker", "config.json")
}

// NewBuildTask assembles a graph task that builds (and optionally
// pushes) an image through the selected backend. Pushes through
// file-auth backends run inside a credential injection on the docker
// config, and the config path is declared as an exclusive resource so
// concurrent builds against it serialize.
func NewBuildTask(store *settings.Store, inj *auth.Injector, runner proc.Runner, opts TaskOptions) (*graph.Task, error) {
	backend := opts.Backend
	if backend == "" {
		backend = "buildx"
	}
	builder, err := Get(backend)
	if err != nil {
		return nil, err
	}

	spec := opts.Spec
	var reg *settings.Registry
	if spec.Push {
		if opts.Registry == "" {
			return nil, &settings.ConfigurationError{Reason: fmt.Sprintf("task %q pushes but names no registry", opts.ID)}
		}
		reg, err = store.Resolve(opts.Registry)
		if err != nil {
			return nil, err
		}
		if reg.ReadCredentials != nil {
			if spec.Auth == nil {
				spec.Auth = map[string]settings.Credentials{}
			}
			spec.Auth[reg.Host()] = *reg.ReadCredentials
		}
	}

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = DefaultConfigPath()
	}

	injected := spec.Push && builder.FileAuth()

	t := &graph.Task{
		ID:      opts.ID,
		Deps:    opts.Deps,
		Inputs:  []string{spec.Dockerfile},
		Outputs: spec.Tags,
		Backend: backend,
		Runner: graph.RunnerFunc(func(ctx context.Context, task *graph.Task) error {
			build := func() error {
				result, err := builder.Build(ctx, runner, spec)
				if err != nil {
					return err
				}
				for _, ref := range result.ImageRefs {
					task.Logf("image: %s", ref)
				}
				return nil
			}
			if !injected {
				return build()
			}
			return inj.WithInjectedAuth(configPath, reg, auth.MergeDockerConfig, build)
		}),
	}
	if injected {
		t.Resources = append(t.Resources, configPath)
	}
	return t, nil
}
