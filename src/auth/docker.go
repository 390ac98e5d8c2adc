package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/conveyorbuild/conveyor/src/settings"
)

// MergeDockerConfig injects an auths entry for the registry's host
// into a Docker-style config.json. Helm's OCI registry file uses the
// same format. Existing auths for other hosts and unrelated top-level
// keys (credHelpers, HttpHeaders, ...) are preserved.
func MergeDockerConfig(existing []byte, reg *settings.Registry) ([]byte, error) {
	doc := map[string]any{}
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &doc); err != nil {
			return nil, fmt.Errorf("parse docker config: %w", err)
		}
	}

	auths, ok := doc["auths"].(map[string]any)
	if !ok {
		auths = map[string]any{}
		doc["auths"] = auths
	}

	entry := map[string]any{}
	switch {
	case reg.ReadCredentials != nil:
		pair := reg.ReadCredentials.Username + ":" + reg.ReadCredentials.Password
		entry["auth"] = base64.StdEncoding.EncodeToString([]byte(pair))
	case reg.PublishToken != "":
		entry["identitytoken"] = reg.PublishToken
	default:
		return nil, fmt.Errorf("registry %q has no credentials to inject", reg.Name)
	}
	auths[reg.Host()] = entry

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serialize docker config: %w", err)
	}
	return append(out, '\n'), nil
}
