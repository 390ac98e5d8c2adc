package cargo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/conveyorbuild/conveyor/src/graph"
)

// NewBumpVersionTask returns a task that rewrites the package version
// in <dir>/Cargo.toml. The version must parse as semver; every other
// manifest entry is carried through untouched.
func NewBumpVersionTask(dir, version string, deps ...string) (*graph.Task, error) {
	if _, err := semver.StrictNewVersion(version); err != nil {
		return nil, fmt.Errorf("cargo: invalid version %q: %w", version, err)
	}

	manifestPath := filepath.Join(dir, "Cargo.toml")
	return &graph.Task{
		ID:        "cargoBumpVersion",
		Deps:      deps,
		Outputs:   []string{manifestPath},
		Resources: []string{manifestPath},
		Runner: graph.RunnerFunc(func(ctx context.Context, task *graph.Task) error {
			data, err := os.ReadFile(manifestPath)
			if err != nil {
				return err
			}
			rewritten, previous, err := rewriteVersion(data, version)
			if err != nil {
				return fmt.Errorf("cargo: %s: %w", manifestPath, err)
			}
			if err := os.WriteFile(manifestPath, rewritten, 0o644); err != nil {
				return err
			}
			task.Logf("bumped version %s -> %s", previous, version)
			return nil
		}),
	}, nil
}

func rewriteVersion(manifest []byte, version string) (rewritten []byte, previous string, err error) {
	doc := map[string]any{}
	if err := toml.Unmarshal(manifest, &doc); err != nil {
		return nil, "", err
	}
	pkg, ok := doc["package"].(map[string]any)
	if !ok {
		return nil, "", fmt.Errorf("manifest has no [package] section")
	}
	previous, _ = pkg["version"].(string)
	pkg["version"] = version
	doc["package"] = pkg

	rewritten, err = toml.Marshal(doc)
	return rewritten, previous, err
}
