// Package python defines tasks for Python projects built with Poetry
// or Slap: distribution builds, index publishing through an injected
// .pypirc, and pytest runs.
package python

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// BuildSystem identifies the tool that builds the project's
// distributions.
type BuildSystem string

const (
	BuildSystemPoetry BuildSystem = "poetry"
	BuildSystemSlap   BuildSystem = "slap"
)

// Settings describe the layout of a Python project.
type Settings struct {
	Dir         string
	SourceDir   string
	TestsDir    string
	BuildSystem BuildSystem
}

// NewSettings resolves the project layout in dir. The tests directory
// and build system are autodetected unless set afterwards.
func NewSettings(dir string) (*Settings, error) {
	s := &Settings{Dir: dir, SourceDir: "src"}
	s.TestsDir = detectTestsDir(dir)

	bs, err := DetectBuildSystem(dir)
	if err != nil {
		return nil, err
	}
	s.BuildSystem = bs
	return s, nil
}

// detectTestsDir returns the first conventional tests directory that
// exists under dir, or "".
func detectTestsDir(dir string) string {
	for _, candidate := range []string{"test", "tests", "src/test", "src/tests"} {
		info, err := os.Stat(filepath.Join(dir, candidate))
		if err == nil && info.IsDir() {
			return candidate
		}
	}
	return ""
}

// pyproject is the subset of pyproject.toml used for build system
// detection.
type pyproject struct {
	Tool map[string]any `toml:"tool"`

	BuildSystem struct {
		Requires []string `toml:"requires"`
	} `toml:"build-system"`
}

// DetectBuildSystem inspects <dir>/pyproject.toml. A [tool.slap]
// table selects Slap; a poetry-core build requirement selects Poetry.
func DetectBuildSystem(dir string) (BuildSystem, error) {
	path := filepath.Join(dir, "pyproject.toml")
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("python: %s has no pyproject.toml", dir)
	}
	if err != nil {
		return "", err
	}

	var p pyproject
	if err := toml.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("python: parsing %s: %w", path, err)
	}

	if _, ok := p.Tool["slap"]; ok {
		return BuildSystemSlap, nil
	}
	for _, req := range p.BuildSystem.Requires {
		if strings.Contains(req, "poetry-core") {
			return BuildSystemPoetry, nil
		}
	}
	if _, ok := p.Tool["poetry"]; ok {
		return BuildSystemPoetry, nil
	}
	return "", fmt.Errorf("python: cannot detect build system from %s", path)
}
