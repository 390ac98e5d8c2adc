package docker

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/conveyorbuild/conveyor/src/proc"
)

func init() {
	Register("buildx", func() Builder { return &Buildx{} })
}

// Buildx builds with `docker buildx build`. Secrets travel through
// the process environment and first-class --secret mounts; multi-arch
// output and registry cache export come for free.
type Buildx struct{}

func (b *Buildx) Name() string   { return "buildx" }
func (b *Buildx) FileAuth() bool { return true }

func (b *Buildx) Build(ctx context.Context, runner proc.Runner, spec BuildSpec) (*BuildResult, error) {
	args := []string{"buildx", "build", contextDir(spec)}
	if spec.Dockerfile != "" {
		args = append(args, "-f", spec.Dockerfile)
	}
	if len(spec.Platforms) > 0 {
		args = append(args, "--platform", strings.Join(spec.Platforms, ","))
	}
	args = append(args, buildArgFlags(spec)...)
	for _, id := range sortedKeys(spec.Secrets) {
		// Buildx resolves the value from the environment.
		args = append(args, "--secret", "id="+id)
	}
	if spec.CacheRepo != "" {
		args = append(args, "--cache-to", "type=registry,ref="+spec.CacheRepo)
	}
	if !spec.Cache {
		args = append(args, "--no-cache")
	}
	for _, tag := range spec.Tags {
		args = append(args, "--tag", tag)
	}
	if spec.Target != "" {
		args = append(args, "--target", spec.Target)
	}
	switch {
	case spec.Push:
		args = append(args, "--push")
	default:
		// Buildx discards the result without one of --push/--load.
		args = append(args, "--load")
	}

	env := map[string]string{}
	for id, value := range spec.Secrets {
		env[id] = value
	}

	res, err := runner.Run(ctx, proc.Command{Argv: append([]string{"docker"}, args...), Env: env, Dir: spec.ContextDir})
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, &BuildError{Backend: b.Name(), ExitCode: res.ExitCode, Stderr: string(res.Stderr)}
	}
	return &BuildResult{ImageRefs: spec.Tags}, nil
}

func contextDir(spec BuildSpec) string {
	if spec.ContextDir == "" {
		return "."
	}
	return spec.ContextDir
}

func buildArgFlags(spec BuildSpec) []string {
	var out []string
	for _, k := range sortedKeys(spec.BuildArgs) {
		out = append(out, "--build-arg", fmt.Sprintf("%s=%s", k, spec.BuildArgs[k]))
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
