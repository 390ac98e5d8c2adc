// Package config loads the .conveyor.yml session file describing
// registries, auth entries, and the task graph to run.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

const defaultConfigFile = ".conveyor.yml"

// Config is the top-level session configuration.
type Config struct {
	Version     int              `yaml:"version"`
	Parallelism int              `yaml:"parallelism"`
	Registries  []RegistryConfig `yaml:"registries"`
	Auth        []AuthConfig     `yaml:"auth"`

	// Artifacts declares files produced outside the graph that tasks
	// may list as dependencies. They are considered always present.
	Artifacts []string `yaml:"artifacts"`

	Tasks []TaskConfig `yaml:"tasks"`
}

// Load reads configuration from a YAML file. If path is empty, the
// default file is tried; a missing default file yields defaults.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = defaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return defaults(), nil
		}
		return nil, err
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Version:     1,
		Parallelism: 4,
	}
}
