package python

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

// PublishOptions tune a twine upload.
type PublishOptions struct {
	// SkipExisting tolerates distributions already present on the
	// index.
	SkipExisting bool

	// PypircPath is the config file patched for the upload. Defaults
	// to ~/.pypirc.
	PypircPath string
}

// DefaultPypircPath returns the standard .pypirc location.
func DefaultPypircPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pypirc"
	}
	return filepath.Join(home, ".pypirc")
}

// NewPublishTask returns a task uploading distributions to the named
// index with twine. The index credentials live in .pypirc only for
// the span of the upload, and the file is declared as an exclusive
// resource.
func NewPublishTask(store *settings.Store, inj *auth.Injector, runner proc.Runner, registryName string, distributions []string, opts PublishOptions, deps ...string) (*graph.Task, error) {
	reg, err := store.Resolve(registryName)
	if err != nil {
		return nil, err
	}
	if reg.ReadCredentials == nil && reg.PublishToken == "" {
		return nil, &settings.ConfigurationError{Reason: fmt.Sprintf("registry %q has no credentials for uploading", registryName)}
	}
	if len(distributions) == 0 {
		return nil, fmt.Errorf("python: no distributions to publish")
	}

	pypircPath := opts.PypircPath
	if pypircPath == "" {
		pypircPath = DefaultPypircPath()
	}

	return &graph.Task{
		ID:        "pythonPublish",
		Deps:      deps,
		Inputs:    distributions,
		Resources: []string{pypircPath},
		Runner: graph.RunnerFunc(func(ctx context.Context, task *graph.Task) error {
			argv := []string{"twine", "upload", "--non-interactive", "--repository", reg.Name}
			if opts.SkipExisting {
				argv = append(argv, "--skip-existing")
			}
			argv = append(argv, distributions...)

			upload := func() error {
				cmd := proc.Command{
					Argv: argv,
					Env:  map[string]string{"TWINE_CONFIG_FILE": pypircPath},
				}
				_, err := proc.RunStep(ctx, runner, task, cmd)
				return err
			}
			return inj.WithInjectedAuth(pypircPath, reg, auth.MergePypirc, upload)
		}),
	}, nil
}
