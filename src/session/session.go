// Package session assembles a configured build run: it turns a
// loaded config into a settings store, a credential injector, and a
// validated task graph, then executes the graph and audits every file
// the injector touched.
package session

import (
	"context"
	"fmt"
	"os"

	"github.com/conveyorbuild/conveyor/src/audit"
	"github.com/conveyorbuild/conveyor/src/auth"
	"github.com/conveyorbuild/conveyor/src/cargo"
	"github.com/conveyorbuild/conveyor/src/config"
	"github.com/conveyorbuild/conveyor/src/docker"
	"github.com/conveyorbuild/conveyor/src/gitver"
	"github.com/conveyorbuild/conveyor/src/graph"
	"github.com/conveyorbuild/conveyor/src/helm"
	"github.com/conveyorbuild/conveyor/src/proc"
	"github.com/conveyorbuild/conveyor/src/python"
	"github.com/conveyorbuild/conveyor/src/settings"
)

// Session holds everything a run needs.
type Session struct {
	Config   *config.Config
	Store    *settings.Store
	Injector *auth.Injector
	Graph    *graph.Graph

	// Version is the git-derived version info, nil when the working
	// directory is not a repository.
	Version *gitver.VersionInfo

	rootDir string
	runner  proc.Runner
}

// New assembles a session from a validated config. rootDir anchors
// relative task directories and the git version lookup.
func New(cfg *config.Config, rootDir string, runner proc.Runner) (*Session, error) {
	s := &Session{
		Config:   cfg,
		Store:    settings.NewStore(),
		Injector: auth.NewInjector(),
		Graph:    graph.New(),
		rootDir:  rootDir,
		runner:   runner,
	}

	if err := s.populateStore(); err != nil {
		return nil, err
	}

	// Version info is best-effort: outside a git repository the tag
	// templates pass through unresolved.
	if v, err := gitver.DetectVersion(rootDir); err == nil {
		s.Version = v
	}

	for _, a := range cfg.Artifacts {
		s.Graph.AddArtifact(a)
	}

	for _, tc := range cfg.Tasks {
		task, err := s.buildTask(tc)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", tc.EffectiveID(), err)
		}
		task.ID = tc.EffectiveID()
		if err := s.Graph.AddTask(task); err != nil {
			return nil, err
		}
	}

	if err := s.Graph.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Run seals the store, executes the graph, and scans every injected
// file for leftover credentials. Findings are returned even when the
// run itself failed; a dirty config file after a failed build is
// exactly the case the audit exists for.
func (s *Session) Run(ctx context.Context) (*graph.Report, []audit.Finding, error) {
	s.Store.Seal()

	exec, err := graph.NewExecutor(s.Graph, graph.Options{Parallelism: s.Config.Parallelism})
	if err != nil {
		return nil, nil, err
	}
	report, runErr := exec.Run(ctx)

	findings, auditErr := s.auditTouched(ctx)
	if runErr != nil {
		return report, findings, runErr
	}
	return report, findings, auditErr
}

func (s *Session) auditTouched(ctx context.Context) ([]audit.Finding, error) {
	touched := s.Injector.Touched()
	if len(touched) == 0 {
		return nil, nil
	}
	scanner, err := audit.NewScanner()
	if err != nil {
		return nil, err
	}
	return scanner.ScanFiles(ctx, touched)
}

func (s *Session) populateStore() error {
	for _, rc := range s.Config.Registries {
		user, pass, token := config.ResolveCredentials(rc.Credentials)
		opts := settings.RegistryOpts{
			Ecosystem:    settings.Ecosystem(rc.Ecosystem),
			PublishToken: token,
		}
		if user != "" || pass != "" {
			opts.ReadCredentials = &settings.Credentials{Username: user, Password: pass}
		}
		if _, err := s.Store.AddRegistry(rc.Name, rc.URL, opts); err != nil {
			return err
		}
	}
	for _, ac := range s.Config.Auth {
		user, pass, _ := config.ResolveCredentials(ac.Credentials)
		if err := s.Store.AddAuth(ac.Host, user, pass); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) dirOf(tc config.TaskConfig) string {
	if tc.Dir == "" {
		return s.rootDir
	}
	return tc.Dir
}

func (s *Session) buildTask(tc config.TaskConfig) (*graph.Task, error) {
	dir := s.dirOf(tc)

	switch tc.Type {
	case config.TaskDockerBuild:
		return s.buildDockerTask(tc)

	case config.TaskCargoSyncConfig:
		return cargo.NewSyncConfigTask(s.Store, dir, tc.Deps...), nil

	case config.TaskCargoBuild:
		opts := cargo.BuildOptions{Release: tc.Release, Incremental: tc.Incremental, Args: tc.Args}
		return cargo.NewBuildTask(s.runner, dir, opts, tc.Deps...), nil

	case config.TaskCargoPublish:
		opts := cargo.PublishOptions{NoVerify: tc.NoVerify, AllowDirty: tc.AllowDirty}
		return cargo.NewPublishTask(s.Store, s.Injector, s.runner, dir, tc.Registry, opts, tc.Deps...)

	case config.TaskCargoBump:
		version := gitver.ResolveTemplate(tc.Version, s.Version)
		return cargo.NewBumpVersionTask(dir, version, tc.Deps...)

	case config.TaskHelmPackage:
		opts := helm.PackageOptions{Version: gitver.ResolveTemplate(tc.Version, s.Version)}
		return helm.NewPackageTask(s.runner, dir, s.outputDirOf(tc), opts, tc.Deps...)

	case config.TaskHelmPush:
		chart, err := helm.ReadChart(dir)
		if err != nil {
			return nil, err
		}
		version := gitver.ResolveTemplate(tc.Version, s.Version)
		if version == "" {
			version = chart.Version
		}
		tarball := helm.TarballPath(s.outputDirOf(tc), chart.Name, version)
		return helm.NewPushTask(s.Store, s.Injector, s.runner, tarball, tc.Registry, helm.PushOptions{}, tc.Deps...)

	case config.TaskPythonBuild:
		ps, err := python.NewSettings(dir)
		if err != nil {
			return nil, err
		}
		opts := python.BuildOptions{
			OutputDir: tc.OutputDir,
			AsVersion: gitver.ResolveTemplate(tc.Version, s.Version),
		}
		return python.NewBuildTask(s.runner, ps, opts, tc.Deps...)

	case config.TaskPythonPublish:
		opts := python.PublishOptions{SkipExisting: tc.SkipExisting}
		return python.NewPublishTask(s.Store, s.Injector, s.runner, tc.Registry, tc.Distributions, opts, tc.Deps...)

	case config.TaskPytest:
		ps, err := python.NewSettings(dir)
		if err != nil {
			return nil, err
		}
		opts := python.TestOptions{IgnoreDirs: tc.IgnoreDirs, AllowNoTests: tc.AllowNoTests}
		return python.NewPytestTask(s.runner, ps, opts, tc.Deps...)
	}
	return nil, fmt.Errorf("unknown task type %q", tc.Type)
}

func (s *Session) outputDirOf(tc config.TaskConfig) string {
	if tc.OutputDir != "" {
		return tc.OutputDir
	}
	return "build"
}

func (s *Session) buildDockerTask(tc config.TaskConfig) (*graph.Task, error) {
	tags := gitver.ResolveTags(tc.Tags, s.Version)
	refs := make([]string, 0, len(tags))
	for _, tag := range tags {
		refs = append(refs, tc.Image+":"+tag)
	}

	secrets := map[string]string{}
	for id, envName := range tc.SecretsEnv {
		secrets[id] = os.Getenv(envName)
	}

	spec := docker.BuildSpec{
		ContextDir: s.dirOf(tc),
		Dockerfile: tc.Dockerfile,
		Target:     tc.Target,
		Platforms:  tc.Platforms,
		BuildArgs:  tc.BuildArgs,
		Secrets:    secrets,
		Tags:       refs,
		Cache:      tc.Cache == nil || *tc.Cache,
		CacheRepo:  tc.CacheRepo,
		Push:       tc.Push,
	}
	return docker.NewBuildTask(s.Store, s.Injector, s.runner, docker.TaskOptions{
		ID:       tc.EffectiveID(),
		Deps:     tc.Deps,
		Backend:  tc.Backend,
		Spec:     spec,
		Registry: tc.Registry,
	})
}
