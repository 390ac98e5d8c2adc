package docker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/conveyorbuild/conveyor/src/proc"
)

const defaultKanikoImage = "gcr.io/kaniko-project/executor:debug"

func init() {
	Register("kaniko", func() Builder {
		return &Kaniko{
			Image:          defaultKanikoImage,
			WorkspaceMount: "/workspace",
			SecretsDir:     "/run/secrets",
		}
	})
}

// Kaniko builds inside a container, for daemonless environments like
// CI runners. Registry auth is rendered into the container's own
// docker config, so no credential file on the host is patched.
type Kaniko struct {
	Image          string
	WorkspaceMount string
	SecretsDir     string
}

func (k *Kaniko) Name() string   { return "kaniko" }
func (k *Kaniko) FileAuth() bool { return false }

func (k *Kaniko) Build(ctx context.Context, runner proc.Runner, spec BuildSpec) (*BuildResult, error) {
	if spec.CacheRepo != "" && strings.Contains(spec.CacheRepo, ":") {
		return nil, fmt.Errorf("docker: kaniko cache repo cannot contain a tag: %q", spec.CacheRepo)
	}

	script, err := k.renderScript(spec)
	if err != nil {
		return nil, err
	}

	args := []string{
		"run", "--rm", "-i",
		"--volume", contextDir(spec) + ":" + k.WorkspaceMount,
		"--entrypoint", "sh",
		k.Image,
		"-c", script,
	}

	res, err := runner.Run(ctx, proc.Command{Argv: append([]string{"docker"}, args...), Dir: spec.ContextDir})
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, &BuildError{Backend: k.Name(), ExitCode: res.ExitCode, Stderr: string(res.Stderr)}
	}
	return &BuildResult{ImageRefs: spec.Tags}, nil
}

// renderAuthFile produces the /kaniko/.docker/config.json content.
func (k *Kaniko) renderAuthFile(spec BuildSpec) (string, error) {
	auths := map[string]map[string]string{}
	for host, creds := range spec.Auth {
		pair := creds.Username + ":" + creds.Password
		auths[host] = map[string]string{
			"auth": base64.StdEncoding.EncodeToString([]byte(pair)),
		}
	}
	out, err := json.MarshalIndent(map[string]any{"auths": auths}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("docker: rendering kaniko auth file: %w", err)
	}
	return string(out), nil
}

// renderScript produces the shell script run inside the kaniko
// container: write the auth file, stage secrets, run the executor.
func (k *Kaniko) renderScript(spec BuildSpec) (string, error) {
	authFile, err := k.renderAuthFile(spec)
	if err != nil {
		return "", err
	}

	executor := []string{"/kaniko/executor", "--context", k.WorkspaceMount}
	if spec.Dockerfile != "" {
		executor = append(executor, "--dockerfile", spec.Dockerfile)
	}
	for _, arg := range sortedKeys(spec.BuildArgs) {
		executor = append(executor, "--build-arg", fmt.Sprintf("%s=%s", arg, spec.BuildArgs[arg]))
	}
	for _, tag := range spec.Tags {
		executor = append(executor, "--destination", tag)
	}
	if spec.Target != "" {
		executor = append(executor, "--target", spec.Target)
	}
	if spec.Cache {
		executor = append(executor, "--cache=true")
		if spec.CacheRepo != "" {
			executor = append(executor, "--cache-repo", spec.CacheRepo)
		}
	}
	if !spec.Push {
		executor = append(executor, "--no-push")
	}

	var script []string
	script = append(script,
		"set -e",
		"mkdir -p /kaniko/.docker",
		"cat << 'EOF' > /kaniko/.docker/config.json",
		authFile,
		"EOF",
	)
	if len(spec.Secrets) > 0 {
		script = append(script, "mkdir -p "+k.SecretsDir)
		for _, id := range sortedKeys(spec.Secrets) {
			script = append(script,
				fmt.Sprintf("cat << 'EOF' > %s/%s", k.SecretsDir, id),
				spec.Secrets[id],
				"EOF",
			)
		}
	}
	script = append(script, strings.Join(executor, " "))
	return strings.Join(script, "\n"), nil
}
