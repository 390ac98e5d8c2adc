package helm

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/conveyorbuild/conveyor/src/graph"
	"github.com/conveyorbuild/conveyor/src/proc"
)

// PackageOptions tune a helm package invocation.
type PackageOptions struct {
	// Version overrides the chart version from Chart.yaml.
	Version string
	// AppVersion overrides the appVersion from Chart.yaml.
	AppVersion string
}

// NewPackageTask returns a task packaging the chart in chartDir into
// outputDir. The tarball path is registered as the task output so
// push tasks can depend on it.
func NewPackageTask(runner proc.Runner, chartDir, outputDir string, opts PackageOptions, deps ...string) (*graph.Task, error) {
	chart, err := ReadChart(chartDir)
	if err != nil {
		return nil, err
	}
	version := opts.Version
	if version == "" {
		version = chart.Version
	}
	if version == "" {
		return nil, fmt.Errorf("helm: chart %q has no version and none was given", chart.Name)
	}
	tarball := filepath.Join(outputDir, fmt.Sprintf("%s-%s.tgz", chart.Name, version))

	return &graph.Task{
		ID:      "helmPackage",
		Deps:    deps,
		Inputs:  []string{filepath.Join(chartDir, "Chart.yaml")},
		Outputs: []string{tarball},
		Runner: graph.RunnerFunc(func(ctx context.Context, task *graph.Task) error {
			argv := []string{"helm", "package", chartDir, "--destination", outputDir}
			if opts.Version != "" {
				argv = append(argv, "--version", opts.Version)
			}
			if opts.AppVersion != "" {
				argv = append(argv, "--app-version", opts.AppVersion)
			}
			if _, err := proc.RunStep(ctx, runner, task, proc.Command{Argv: argv}); err != nil {
				return err
			}
			task.Logf("chart: %s", tarball)
			return nil
		}),
	}, nil
}

// TarballPath computes the tarball a package task produces, for
// callers wiring artifact dependencies by hand.
func TarballPath(outputDir, name, version string) string {
	return filepath.Join(outputDir, fmt.Sprintf("%s-%s.tgz", name, version))
}
