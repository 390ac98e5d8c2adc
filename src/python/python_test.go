package python

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conveyorbuild/conveyor/src/auth"
	"github.com/conveyorbuild/conveyor/src/proc"
	"github.com/conveyorbuild/conveyor/src/settings"
)

type fakeRunner struct {
	commands  []proc.Command
	exitCodes []int
	onRun     func()
}

func (f *fakeRunner) Run(ctx context.Context, cmd proc.Command) (proc.Result, error) {
	f.commands = append(f.commands, cmd)
	if f.onRun != nil {
		f.onRun()
	}
	if len(f.exitCodes) == 0 {
		return proc.Result{}, nil
	}
	code := f.exitCodes[0]
	f.exitCodes = f.exitCodes[1:]
	return proc.Result{ExitCode: code}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const poetryPyproject = `
[build-system]
requires = ["poetry-core"]
build-backend = "poetry.core.masonry.api"

[tool.poetry]
name = "conveyor-demo"
version = "0.1.0"
`

const slapPyproject = `
[build-system]
requires = ["flit_core"]

[tool.slap]
typed = true
`

func TestDetectBuildSystem(t *testing.T) {
	tests := []struct {
		name      string
		pyproject string
		want      BuildSystem
		wantErr   bool
	}{
		{"poetry", poetryPyproject, BuildSystemPoetry, false},
		{"slap", slapPyproject, BuildSystemSlap, false},
		{"unknown", "[build-system]\nrequires = [\"setuptools\"]\n", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, "pyproject.toml"), tt.pyproject)
			got, err := DetectBuildSystem(dir)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("build system = %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := DetectBuildSystem(t.TempDir()); err == nil {
		t.Error("expected error without pyproject.toml")
	}
}

func TestNewSettingsDetectsTestsDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pyproject.toml"), poetryPyproject)
	if err := os.MkdirAll(filepath.Join(dir, "src", "tests"), 0o755); err != nil {
		t.Fatal(err)
	}

	s, err := NewSettings(dir)
	if err != nil {
		t.Fatal(err)
	}
	if s.TestsDir != "src/tests" {
		t.Errorf("tests dir = %q", s.TestsDir)
	}
	if s.BuildSystem != BuildSystemPoetry {
		t.Errorf("build system = %q", s.BuildSystem)
	}
}

func TestBuildTaskPoetrySteps(t *testing.T) {
	f := &fakeRunner{}
	s := &Settings{Dir: "/proj", BuildSystem: BuildSystemPoetry}
	task, err := NewBuildTask(f, s, BuildOptions{AsVersion: "1.2.0"})
	if err != nil {
		t.Fatal(err)
	}
	if err := task.Runner.Run(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	if len(f.commands) != 2 {
		t.Fatalf("ran %d commands", len(f.commands))
	}
	if got := strings.Join(f.commands[0].Argv, " "); got != "poetry version 1.2.0" {
		t.Errorf("first command = %q", got)
	}
	if got := strings.Join(f.commands[1].Argv, " "); got != "poetry build" {
		t.Errorf("second command = %q", got)
	}
	if f.commands[1].Dir != "/proj" {
		t.Errorf("dir = %q", f.commands[1].Dir)
	}
}

func TestBuildTaskSlapSteps(t *testing.T) {
	f := &fakeRunner{}
	s := &Settings{Dir: "/proj", BuildSystem: BuildSystemSlap}
	task, err := NewBuildTask(f, s, BuildOptions{OutputDir: "build/dist"})
	if err != nil {
		t.Fatal(err)
	}
	if err := task.Runner.Run(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(f.commands[0].Argv, " "); got != "slap publish --dry -b build/dist" {
		t.Errorf("command = %q", got)
	}
}

func TestBuildTaskStopsOnFailedStep(t *testing.T) {
	f := &fakeRunner{exitCodes: []int{1}}
	s := &Settings{Dir: "/proj", BuildSystem: BuildSystemPoetry}
	task, err := NewBuildTask(f, s, BuildOptions{AsVersion: "1.2.0"})
	if err != nil {
		t.Fatal(err)
	}
	if err := task.Runner.Run(context.Background(), task); err == nil {
		t.Fatal("expected error")
	}
	if len(f.commands) != 1 {
		t.Errorf("ran %d commands after failed step", len(f.commands))
	}
}

func TestPublishTaskInjectsPypirc(t *testing.T) {
	pypirc := filepath.Join(t.TempDir(), ".pypirc")
	writeFile(t, pypirc, "[distutils]\nindex-servers =\n  pypi\n\n[pypi]\nrepository = https://upload.pypi.org/legacy/\n")
	before, _ := os.ReadFile(pypirc)

	store := settings.NewStore()
	if _, err := store.AddRegistry("internal", "https://pypi.example.com/simple", settings.RegistryOpts{
		Ecosystem:    settings.EcosystemPython,
		PublishToken: "pypi-AgEIcH...",
	}); err != nil {
		t.Fatal(err)
	}

	inj := auth.NewInjector()
	var saw string
	f := &fakeRunner{}
	f.onRun = func() {
		data, err := os.ReadFile(pypirc)
		if err != nil {
			t.Fatal(err)
		}
		saw = string(data)
	}

	dists := []string{"dist/conveyor_demo-0.1.0-py3-none-any.whl"}
	task, err := NewPublishTask(store, inj, f, "internal", dists, PublishOptions{SkipExisting: true, PypircPath: pypirc})
	if err != nil {
		t.Fatal(err)
	}
	if err := task.Runner.Run(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"internal", "__token__", "pypi-AgEIcH..."} {
		if !strings.Contains(saw, want) {
			t.Errorf(".pypirc during upload missing %q:\n%s", want, saw)
		}
	}
	if !strings.Contains(saw, "pypi") {
		t.Error("pre-existing index server dropped during upload")
	}
	after, _ := os.ReadFile(pypirc)
	if string(after) != string(before) {
		t.Errorf(".pypirc not restored:\n%s", after)
	}

	cmd := f.commands[0]
	line := strings.Join(cmd.Argv, " ")
	for _, want := range []string{"twine upload", "--repository internal", "--skip-existing", dists[0]} {
		if !strings.Contains(line, want) {
			t.Errorf("command missing %q:\n%s", want, line)
		}
	}
	if strings.Contains(line, "pypi-AgEIcH") {
		t.Error("token leaked into the argument list")
	}
	if cmd.Env["TWINE_CONFIG_FILE"] != pypirc {
		t.Errorf("TWINE_CONFIG_FILE = %q", cmd.Env["TWINE_CONFIG_FILE"])
	}
	if len(task.Resources) != 1 || task.Resources[0] != pypirc {
		t.Errorf("resources = %v", task.Resources)
	}
}

func TestPublishTaskRequiresCredentialsAndDistributions(t *testing.T) {
	store := settings.NewStore()
	if _, err := store.AddRegistry("internal", "https://pypi.example.com/simple", settings.RegistryOpts{
		Ecosystem: settings.EcosystemPython,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := NewPublishTask(store, auth.NewInjector(), &fakeRunner{}, "internal", []string{"a.whl"}, PublishOptions{}); err == nil {
		t.Error("expected error for credentialless registry")
	}

	if _, err := store.AddRegistry("tokened", "https://pypi.example.com/simple", settings.RegistryOpts{
		Ecosystem:    settings.EcosystemPython,
		PublishToken: "tok",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := NewPublishTask(store, auth.NewInjector(), &fakeRunner{}, "tokened", nil, PublishOptions{}); err == nil {
		t.Error("expected error for empty distribution list")
	}
}

func TestPytestTaskArgs(t *testing.T) {
	f := &fakeRunner{}
	s := &Settings{Dir: "/proj", TestsDir: "tests"}
	task, err := NewPytestTask(f, s, TestOptions{IgnoreDirs: []string{"tests/slow"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := task.Runner.Run(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	want := "pytest -vv /proj/tests --ignore /proj/tests/slow"
	if got := strings.Join(f.commands[0].Argv, " "); got != want {
		t.Errorf("argv = %q, want %q", got, want)
	}
}

func TestPytestTaskNoTests(t *testing.T) {
	s := &Settings{Dir: "/proj"}
	if _, err := NewPytestTask(&fakeRunner{}, s, TestOptions{}); err == nil {
		t.Error("expected error without tests directory")
	}

	f := &fakeRunner{}
	task, err := NewPytestTask(f, s, TestOptions{AllowNoTests: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := task.Runner.Run(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	if len(f.commands) != 0 {
		t.Errorf("pytest invoked despite missing tests directory")
	}
}

func TestPytestTaskTreatsEmptyCollectionPerOption(t *testing.T) {
	s := &Settings{Dir: "/proj", TestsDir: "tests"}

	f := &fakeRunner{exitCodes: []int{pytestExitNoTests}}
	task, err := NewPytestTask(f, s, TestOptions{AllowNoTests: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := task.Runner.Run(context.Background(), task); err != nil {
		t.Errorf("empty collection should pass with AllowNoTests: %v", err)
	}

	f = &fakeRunner{exitCodes: []int{pytestExitNoTests}}
	task, err = NewPytestTask(f, s, TestOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := task.Runner.Run(context.Background(), task); err == nil {
		t.Error("empty collection should fail without AllowNoTests")
	}
}
