package docker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/conveyorbuild/conveyor/src/proc"
)

func init() {
	Register("native", func() Builder { return &Native{UseBuildkit: true} })
}

// Native builds with the plain `docker build` command. Secrets are
// materialized as temporary files and mounted with --secret; pushing
// happens as a separate `docker push` per tag.
type Native struct {
	UseBuildkit bool
}

func (n *Native) Name() string   { return "native" }
func (n *Native) FileAuth() bool { return true }

func (n *Native) Build(ctx context.Context, runner proc.Runner, spec BuildSpec) (*BuildResult, error) {
	args := []string{"build", contextDir(spec)}
	if spec.Dockerfile != "" {
		args = append(args, "-f", spec.Dockerfile)
	}
	if len(spec.Platforms) > 0 {
		args = append(args, "--platform", strings.Join(spec.Platforms, ","))
	}
	args = append(args, buildArgFlags(spec)...)
	if !spec.Cache {
		args = append(args, "--no-cache")
	}
	for _, tag := range spec.Tags {
		args = append(args, "--tag", tag)
	}
	if spec.Target != "" {
		args = append(args, "--target", spec.Target)
	}

	// Secret mounts need files on disk; they live only for the span
	// of the build invocation.
	if len(spec.Secrets) > 0 {
		dir, err := os.MkdirTemp("", "conveyor-secrets-")
		if err != nil {
			return nil, fmt.Errorf("docker: staging secrets: %w", err)
		}
		defer os.RemoveAll(dir)
		for _, id := range sortedKeys(spec.Secrets) {
			path := filepath.Join(dir, id)
			if err := os.WriteFile(path, []byte(spec.Secrets[id]), 0o600); err != nil {
				return nil, fmt.Errorf("docker: staging secret %s: %w", id, err)
			}
			args = append(args, "--secret", fmt.Sprintf("id=%s,src=%s", id, path))
		}
	}

	env := map[string]string{"DOCKER_BUILDKIT": "0"}
	if n.UseBuildkit {
		env["DOCKER_BUILDKIT"] = "1"
	}

	res, err := runner.Run(ctx, proc.Command{Argv: append([]string{"docker"}, args...), Env: env, Dir: spec.ContextDir})
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, &BuildError{Backend: n.Name(), ExitCode: res.ExitCode, Stderr: string(res.Stderr)}
	}

	if spec.Push {
		for _, tag := range spec.Tags {
			res, err := runner.Run(ctx, proc.Command{Argv: []string{"docker", "push", tag}, Dir: spec.ContextDir})
			if err != nil {
				return nil, err
			}
			if res.ExitCode != 0 {
				return nil, &BuildError{Backend: n.Name(), ExitCode: res.ExitCode, Stderr: string(res.Stderr)}
			}
		}
	}

	return &BuildResult{ImageRefs: spec.Tags}, nil
}
