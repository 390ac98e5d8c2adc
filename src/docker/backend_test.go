package docker

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/conveyorbuild/conveyor/src/proc"
	"github.com/conveyorbuild/conveyor/src/settings"
)

// fakeRunner records commands and plays back scripted results.
type fakeRunner struct {
	commands []proc.Command
	results  []proc.Result
	err      error
	onRun    func() // observes filesystem state mid-invocation
}

func (f *fakeRunner) Run(ctx context.Context, cmd proc.Command) (proc.Result, error) {
	f.commands = append(f.commands, cmd)
	if f.onRun != nil {
		f.onRun()
	}
	if f.err != nil {
		return proc.Result{}, f.err
	}
	if len(f.results) == 0 {
		return proc.Result{}, nil
	}
	res := f.results[0]
	f.results = f.results[1:]
	return res, nil
}

func TestRegistryKnowsAllBackends(t *testing.T) {
	want := []string{"buildx", "kaniko", "native"}
	if got := All(); !reflect.DeepEqual(got, want) {
		t.Errorf("All() = %v, want %v", got, want)
	}
	if _, err := Get("podman"); err == nil {
		t.Error("Get(podman) should fail")
	}
}

func TestBuildxArgs(t *testing.T) {
	f := &fakeRunner{}
	b := &Buildx{}

	_, err := b.Build(context.Background(), f, BuildSpec{
		ContextDir: "/src/app",
		Dockerfile: "Dockerfile.release",
		Platforms:  []string{"linux/amd64", "linux/arm64"},
		BuildArgs:  map[string]string{"VERSION": "1.2.3"},
		Secrets:    map[string]string{"CARGO_TOKEN": "tok"},
		Tags:       []string{"example.com/app:1.2.3"},
		Cache:      true,
		CacheRepo:  "example.com/app/cache",
		Push:       true,
		Target:     "runtime",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(f.commands) != 1 {
		t.Fatalf("ran %d commands", len(f.commands))
	}
	line := strings.Join(f.commands[0].Argv, " ")

	for _, want := range []string{
		"docker buildx build /src/app",
		"-f Dockerfile.release",
		"--platform linux/amd64,linux/arm64",
		"--build-arg VERSION=1.2.3",
		"--secret id=CARGO_TOKEN",
		"--cache-to type=registry,ref=example.com/app/cache",
		"--tag example.com/app:1.2.3",
		"--target runtime",
		"--push",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("command missing %q:\n%s", want, line)
		}
	}
	if strings.Contains(line, "tok") {
		t.Error("secret value leaked into the argument list")
	}
	if f.commands[0].Env["CARGO_TOKEN"] != "tok" {
		t.Error("secret not passed through the environment")
	}
	if strings.Contains(line, "--load") {
		t.Error("--load must not accompany --push")
	}
}

func TestBuildxLoadsWithoutPush(t *testing.T) {
	f := &fakeRunner{}
	b := &Buildx{}
	if _, err := b.Build(context.Background(), f, BuildSpec{Cache: true, Tags: []string{"app:dev"}}); err != nil {
		t.Fatal(err)
	}
	line := strings.Join(f.commands[0].Argv, " ")
	if !strings.Contains(line, "--load") {
		t.Errorf("command missing --load:\n%s", line)
	}
}

func TestNativeBuildPushesEachTag(t *testing.T) {
	f := &fakeRunner{}
	n := &Native{UseBuildkit: true}

	_, err := n.Build(context.Background(), f, BuildSpec{
		ContextDir: "/src/app",
		Tags:       []string{"app:1", "app:latest"},
		Cache:      true,
		Push:       true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(f.commands) != 3 {
		t.Fatalf("ran %d commands, want build + 2 pushes", len(f.commands))
	}
	if f.commands[0].Env["DOCKER_BUILDKIT"] != "1" {
		t.Error("buildkit not enabled")
	}
	if got := strings.Join(f.commands[1].Argv, " "); got != "docker push app:1" {
		t.Errorf("second command = %q", got)
	}
	if got := strings.Join(f.commands[2].Argv, " "); got != "docker push app:latest" {
		t.Errorf("third command = %q", got)
	}
}

func TestNativeBuildErrorCarriesExitCodeAndStderr(t *testing.T) {
	f := &fakeRunner{results: []proc.Result{{ExitCode: 1, Stderr: []byte("no such file")}}}
	n := &Native{}

	_, err := n.Build(context.Background(), f, BuildSpec{Cache: true})
	var be *BuildError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want BuildError", err)
	}
	if be.ExitCode != 1 || !strings.Contains(be.Stderr, "no such file") {
		t.Errorf("BuildError = %+v", be)
	}
}

func TestKanikoScriptRendersAuthAndSecrets(t *testing.T) {
	k := &Kaniko{Image: defaultKanikoImage, WorkspaceMount: "/workspace", SecretsDir: "/run/secrets"}

	script, err := k.renderScript(BuildSpec{
		Dockerfile: "Dockerfile",
		Tags:       []string{"example.jfrog.io/app:1.0.0"},
		Secrets:    map[string]string{"NPM_TOKEN": "npmtok"},
		Auth: map[string]settings.Credentials{
			"example.jfrog.io": {Username: "deployer", Password: "pw"},
		},
		Cache:     true,
		CacheRepo: "example.jfrog.io/app/cache",
		Push:      true,
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"/kaniko/.docker/config.json",
		"ZGVwbG95ZXI6cHc=", // base64("deployer:pw")
		"/run/secrets/NPM_TOKEN",
		"--destination example.jfrog.io/app:1.0.0",
		"--cache-repo example.jfrog.io/app/cache",
	} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q:\n%s", want, script)
		}
	}
	if strings.Contains(script, "--no-push") {
		t.Error("push build rendered --no-push")
	}
}

func TestKanikoRejectsTaggedCacheRepo(t *testing.T) {
	k := &Kaniko{Image: defaultKanikoImage}
	f := &fakeRunner{}
	if _, err := k.Build(context.Background(), f, BuildSpec{CacheRepo: "repo:tag"}); err == nil {
		t.Error("expected error for cache repo with tag")
	}
}
