package config

import "os"

// RegistryConfig declares a named registry the tasks can resolve.
type RegistryConfig struct {
	Name      string `yaml:"name"`
	URL       string `yaml:"url"`
	Ecosystem string `yaml:"ecosystem"` // cargo, docker, helm, python

	// Credentials is an environment variable prefix for auth:
	//
	//	credentials: "CRATES" → CRATES_USER / CRATES_PASS / CRATES_TOKEN
	//
	// USER and PASS form read credentials, TOKEN becomes the publish
	// token. Secrets never live in the config file itself.
	Credentials string `yaml:"credentials"`
}

// AuthConfig declares a host-level credential outside any registry.
type AuthConfig struct {
	Host        string `yaml:"host"`
	Credentials string `yaml:"credentials"` // env var prefix, same scheme as registries
}

// ResolveCredentials reads the environment variables behind a prefix.
func ResolveCredentials(prefix string) (user, pass, token string) {
	if prefix == "" {
		return "", "", ""
	}
	return os.Getenv(prefix + "_USER"), os.Getenv(prefix + "_PASS"), os.Getenv(prefix + "_TOKEN")
}
