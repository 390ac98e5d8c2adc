package config

import (
	"fmt"
	"strings"
)

var validEcosystems = map[string]bool{
	"cargo":  true,
	"docker": true,
	"helm":   true,
	"python": true,
}

// Validate checks structural invariants of a loaded Config. Returns
// warnings (soft issues) and a hard error if the config is invalid.
// Dependency resolution and cycle detection happen later, when the
// graph is assembled.
func Validate(cfg *Config) (warnings []string, err error) {
	var errs []string

	if cfg.Version != 1 {
		errs = append(errs, fmt.Sprintf("version: must be 1, got %d", cfg.Version))
	}
	if cfg.Parallelism < 1 {
		errs = append(errs, fmt.Sprintf("parallelism: must be at least 1, got %d", cfg.Parallelism))
	}

	registryNames := make(map[string]bool)
	for i, r := range cfg.Registries {
		rpath := fmt.Sprintf("registries[%d]", i)
		if r.Name == "" {
			errs = append(errs, rpath+": name is required")
		} else if registryNames[r.Name] {
			warnings = append(warnings, fmt.Sprintf("%s: registry %q declared twice, the later entry wins", rpath, r.Name))
		} else {
			registryNames[r.Name] = true
		}
		if r.URL == "" {
			errs = append(errs, rpath+": url is required")
		}
		if r.Ecosystem != "" && !validEcosystems[r.Ecosystem] {
			errs = append(errs, fmt.Sprintf("%s: unknown ecosystem %q (supported: cargo, docker, helm, python)", rpath, r.Ecosystem))
		}
	}

	for i, a := range cfg.Auth {
		apath := fmt.Sprintf("auth[%d]", i)
		if a.Host == "" {
			errs = append(errs, apath+": host is required")
		}
		if a.Credentials == "" {
			errs = append(errs, apath+": credentials prefix is required")
		}
	}

	for i, a := range cfg.Artifacts {
		if a == "" {
			errs = append(errs, fmt.Sprintf("artifacts[%d]: path is required", i))
		}
	}

	taskIDs := make(map[string]bool)
	for i, t := range cfg.Tasks {
		tpath := fmt.Sprintf("tasks[%d]", i)

		if t.Type == "" {
			errs = append(errs, tpath+": type is required")
			continue
		}
		if _, ok := defaultTaskIDs[t.Type]; !ok {
			errs = append(errs, fmt.Sprintf("%s: unknown task type %q", tpath, t.Type))
			continue
		}

		id := t.EffectiveID()
		if taskIDs[id] {
			errs = append(errs, fmt.Sprintf("%s: duplicate task id %q", tpath, id))
		}
		taskIDs[id] = true

		errs = append(errs, validateTask(t, tpath, registryNames)...)
	}

	if len(errs) > 0 {
		return warnings, fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return warnings, nil
}

func validateTask(t TaskConfig, tpath string, registries map[string]bool) []string {
	var errs []string

	requireRegistry := func() {
		if t.Registry == "" {
			errs = append(errs, fmt.Sprintf("%s: %s requires a registry", tpath, t.Type))
		} else if !registries[t.Registry] {
			errs = append(errs, fmt.Sprintf("%s: references unknown registry %q", tpath, t.Registry))
		}
	}

	switch t.Type {
	case TaskDockerBuild:
		if len(t.Tags) == 0 {
			errs = append(errs, tpath+": docker-build requires at least one tag")
		}
		if t.Image == "" {
			errs = append(errs, tpath+": docker-build requires an image repository")
		}
		if t.Push {
			requireRegistry()
		}
	case TaskCargoPublish, TaskHelmPush, TaskPythonPublish:
		requireRegistry()
	case TaskCargoBump:
		if t.Version == "" {
			errs = append(errs, tpath+": cargo-bump requires a version")
		}
	}
	return errs
}
