package cargo

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/conveyorbuild/conveyor/src/graph"
	"github.com/conveyorbuild/conveyor/src/settings"
)

// NewSyncConfigTask returns a task that keeps .cargo/config.toml in
// sync with the cargo registries in the store. Only the registry
// index URLs are persisted; tokens stay off disk and are injected per
// publish.
func NewSyncConfigTask(store *settings.Store, dir string, deps ...string) *graph.Task {
	configPath := filepath.Join(dir, ConfigFile)
	return &graph.Task{
		ID:        "cargoSyncConfig",
		Deps:      deps,
		Outputs:   []string{configPath},
		Resources: []string{configPath},
		Runner: graph.RunnerFunc(func(ctx context.Context, task *graph.Task) error {
			existing, err := os.ReadFile(configPath)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			merged, err := syncRegistries(existing, store.Registries())
			if err != nil {
				return err
			}

			if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(configPath, merged, 0o644); err != nil {
				return err
			}
			task.Logf("synced %s", configPath)
			return nil
		}),
	}
}

// syncRegistries merges index entries for every cargo registry into
// the config document, leaving other sections alone.
func syncRegistries(existing []byte, regs []*settings.Registry) ([]byte, error) {
	doc := map[string]any{}
	if len(existing) > 0 {
		if err := toml.Unmarshal(existing, &doc); err != nil {
			return nil, err
		}
	}

	registries, ok := doc["registries"].(map[string]any)
	if !ok {
		registries = map[string]any{}
	}
	for _, reg := range regs {
		if reg.Ecosystem != settings.EcosystemCargo {
			continue
		}
		registries[reg.Name] = map[string]any{"index": reg.URL}
	}
	if len(registries) > 0 {
		doc["registries"] = registries
	}

	return toml.Marshal(doc)
}
