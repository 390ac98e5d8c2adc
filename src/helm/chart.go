// Package helm defines tasks that package Helm charts and push the
// resulting tarballs to OCI or HTTP chart registries.
package helm

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Chart is the subset of Chart.yaml the tasks care about.
type Chart struct {
	Name       string `yaml:"name"`
	Version    string `yaml:"version"`
	AppVersion string `yaml:"appVersion,omitempty"`
}

// ReadChart parses <dir>/Chart.yaml.
func ReadChart(dir string) (*Chart, error) {
	path := filepath.Join(dir, "Chart.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("helm: reading %s: %w", path, err)
	}
	var c Chart
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("helm: parsing %s: %w", path, err)
	}
	if c.Name == "" {
		return nil, fmt.Errorf("helm: %s has no chart name", path)
	}
	return &c, nil
}
