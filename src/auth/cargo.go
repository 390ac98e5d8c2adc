package auth

import (
	"fmt"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/conveyorbuild/conveyor/src/settings"
)

// MergeCargoConfig injects a registry entry into a .cargo/config.toml
// document. The merge is section-level: other registries and
// unrelated tables ([http], [net], ...) survive untouched.
func MergeCargoConfig(existing []byte, reg *settings.Registry) ([]byte, error) {
	doc := map[string]any{}
	if len(existing) > 0 {
		if err := toml.Unmarshal(existing, &doc); err != nil {
			return nil, fmt.Errorf("parse cargo config: %w", err)
		}
	}

	registries, ok := doc["registries"].(map[string]any)
	if !ok {
		registries = map[string]any{}
		doc["registries"] = registries
	}

	entry := map[string]any{"index": reg.URL}
	if reg.PublishToken != "" {
		entry["token"] = reg.PublishToken
	}
	registries[reg.Name] = entry

	out, err := toml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("serialize cargo config: %w", err)
	}
	return out, nil
}
