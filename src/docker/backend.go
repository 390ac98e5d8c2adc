// Package docker provides the image-build capability behind a closed
// set of pluggable strategies: native docker build, buildx, and
// kaniko. A task selects a strategy by name without changing its own
// declared inputs or outputs.
package docker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/conveyorbuild/conveyor/src/proc"
	"github.com/conveyorbuild/conveyor/src/settings"
)

// BuildSpec is the resolved input of one image build.
type BuildSpec struct {
	ContextDir string
	Dockerfile string
	Target     string
	Platforms  []string
	BuildArgs  map[string]string

	// Secrets maps secret ids to their values. How they reach the
	// build differs per backend: buildx passes them through the
	// environment, native mounts them from temporary files, kaniko
	// receives them inside its container.
	Secrets map[string]string

	Tags      []string
	Cache     bool
	CacheRepo string
	Push      bool
	Load      bool

	// Auth maps registry hosts to credentials for backends that
	// carry their own auth material (kaniko renders it into the
	// container's docker config).
	Auth map[string]settings.Credentials
}

// BuildResult reports what a build produced.
type BuildResult struct {
	ImageRefs []string
}

// BuildError reports a backend build that exited nonzero.
type BuildError struct {
	Backend  string
	ExitCode int
	Stderr   string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("docker: %s build exited with code %d", e.Backend, e.ExitCode)
}

// Builder is the capability contract every build strategy satisfies.
type Builder interface {
	Name() string

	// FileAuth reports whether pushes through this backend read
	// registry credentials from the docker config file, requiring
	// the credential injector around the build.
	FileAuth() bool

	Build(ctx context.Context, runner proc.Runner, spec BuildSpec) (*BuildResult, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Builder{}
)

// Register adds a builder constructor to the global registry.
// Called from init() in each strategy file.
func Register(name string, constructor func() Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("docker: duplicate builder registration: %s", name))
	}
	registry[name] = constructor
}

// Get returns a new instance of the named builder.
func Get(name string) (Builder, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("docker: unknown build backend: %s", name)
	}
	return ctor(), nil
}

// All returns sorted names of all registered builders.
func All() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
