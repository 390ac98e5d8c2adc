// Package cargo defines tasks for Rust projects: registry config
// sync, build, publish with scoped credential injection, and version
// bumping.
package cargo

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// ConfigFile is the workspace-relative Cargo configuration path.
const ConfigFile = ".cargo/config.toml"

// Manifest is the subset of Cargo.toml the tasks care about.
type Manifest struct {
	Package struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"package"`
	Bin []struct {
		Name string `toml:"name"`
		Path string `toml:"path,omitempty"`
	} `toml:"bin,omitempty"`
}

// ReadManifest parses <dir>/Cargo.toml.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "Cargo.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cargo: reading %s: %w", path, err)
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("cargo: parsing %s: %w", path, err)
	}
	return &m, nil
}
