package helm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/conveyorbuild/conveyor/src/auth"
	"github.com/conveyorbuild/conveyor/src/graph"
	"github.com/conveyorbuild/conveyor/src/proc"
	"github.com/conveyorbuild/conveyor/src/settings"
)

// PushOptions tune a chart push.
type PushOptions struct {
	// ConfigPath is the Helm registry config patched for OCI pushes.
	// Defaults to ~/.config/helm/registry/config.json.
	ConfigPath string

	// Client performs HTTP chart uploads. Defaults to
	// http.DefaultClient.
	Client *http.Client
}

// DefaultRegistryConfigPath returns the standard Helm OCI registry
// config path.
func DefaultRegistryConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "helm", "registry", "config.json")
	}
	return filepath.Join(home, ".config", "helm", "registry", "config.json")
}

// NewPushTask returns a task pushing a packaged chart tarball to the
// named registry. An oci:// registry goes through `helm push` with
// credentials injected into the registry config for the duration of
// the command; any other URL is uploaded with an HTTP PUT.
func NewPushTask(store *settings.Store, inj *auth.Injector, runner proc.Runner, tarball, registryName string, opts PushOptions, deps ...string) (*graph.Task, error) {
	reg, err := store.Resolve(registryName)
	if err != nil {
		return nil, err
	}
	if reg.ReadCredentials == nil && reg.PublishToken == "" {
		return nil, &settings.ConfigurationError{Reason: fmt.Sprintf("registry %q has no credentials for pushing charts", registryName)}
	}

	oci := strings.HasPrefix(reg.URL, "oci://")
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = DefaultRegistryConfigPath()
	}

	t := &graph.Task{
		ID:     "helmPush",
		Deps:   deps,
		Inputs: []string{tarball},
		Runner: graph.RunnerFunc(func(ctx context.Context, task *graph.Task) error {
			if oci {
				push := func() error {
					cmd := proc.Command{
						Argv: []string{"helm", "push", tarball, reg.URL},
						Env:  map[string]string{"HELM_REGISTRY_CONFIG": configPath},
					}
					_, err := proc.RunStep(ctx, runner, task, cmd)
					return err
				}
				return inj.WithInjectedAuth(configPath, reg, auth.MergeDockerConfig, push)
			}
			return httpPush(ctx, opts.Client, reg, tarball, task)
		}),
	}
	if oci {
		t.Resources = append(t.Resources, configPath)
	}
	return t, nil
}

// httpPush uploads the tarball to <registry URL>/<filename>, the
// convention chart museums and Artifactory Helm repositories accept.
func httpPush(ctx context.Context, client *http.Client, reg *settings.Registry, tarball string, task *graph.Task) error {
	if client == nil {
		client = http.DefaultClient
	}

	f, err := os.Open(tarball)
	if err != nil {
		return err
	}
	defer f.Close()

	target := strings.TrimSuffix(reg.URL, "/") + "/" + filepath.Base(tarball)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, f)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/gzip")
	switch {
	case reg.ReadCredentials != nil:
		req.SetBasicAuth(reg.ReadCredentials.Username, reg.ReadCredentials.Password)
	case reg.PublishToken != "":
		req.Header.Set("Authorization", reg.PublishToken)
	}

	task.Logf("upload: PUT %s", target)
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("helm: upload to %s failed with status %s: %s", target, resp.Status, body)
	}
	return nil
}
