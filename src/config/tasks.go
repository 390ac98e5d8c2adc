package config

// Task types accepted in the tasks list.
const (
	TaskDockerBuild     = "docker-build"
	TaskCargoSyncConfig = "cargo-sync-config"
	TaskCargoBuild      = "cargo-build"
	TaskCargoPublish    = "cargo-publish"
	TaskCargoBump       = "cargo-bump"
	TaskHelmPackage     = "helm-package"
	TaskHelmPush        = "helm-push"
	TaskPythonBuild     = "python-build"
	TaskPythonPublish   = "python-publish"
	TaskPytest          = "pytest"
)

// TaskConfig declares one task in the graph. Type selects which
// fields apply; unknown fields for a type are ignored.
type TaskConfig struct {
	ID   string   `yaml:"id"` // defaults to the conventional name for the type
	Type string   `yaml:"type"`
	Deps []string `yaml:"deps"`

	// Dir is the project or chart directory the task operates in.
	Dir string `yaml:"dir"`

	// Registry names a registry from the registries list. Required
	// for publish and push tasks and for docker builds that push.
	Registry string `yaml:"registry"`

	// docker-build
	Backend    string            `yaml:"backend"` // native, buildx, kaniko
	Dockerfile string            `yaml:"dockerfile"`
	Target     string            `yaml:"target"`
	Platforms  []string          `yaml:"platforms"`
	BuildArgs  map[string]string `yaml:"build_args"`
	SecretsEnv map[string]string `yaml:"secrets_env"` // secret id → env var name
	Tags       []string          `yaml:"tags"`        // tag templates, resolved against git version info
	Image      string            `yaml:"image"`       // repository the tags attach to
	Push       bool              `yaml:"push"`
	Cache      *bool             `yaml:"cache"`
	CacheRepo  string            `yaml:"cache_repo"`

	// cargo-build
	Release     bool     `yaml:"release"`
	Incremental *bool    `yaml:"incremental"`
	Args        []string `yaml:"args"`

	// cargo-publish
	NoVerify   bool `yaml:"no_verify"`
	AllowDirty bool `yaml:"allow_dirty"`

	// cargo-bump, helm-package
	Version string `yaml:"version"` // version template for bump or chart override

	// helm-package, python-build
	OutputDir string `yaml:"output_dir"`

	// python-publish
	Distributions []string `yaml:"distributions"`
	SkipExisting  bool     `yaml:"skip_existing"`

	// pytest
	IgnoreDirs   []string `yaml:"ignore_dirs"`
	AllowNoTests bool     `yaml:"allow_no_tests"`
}

// defaultTaskIDs maps each type to its conventional task id.
var defaultTaskIDs = map[string]string{
	TaskDockerBuild:     "dockerBuild",
	TaskCargoSyncConfig: "cargoSyncConfig",
	TaskCargoBuild:      "cargoBuild",
	TaskCargoPublish:    "cargoPublish",
	TaskCargoBump:       "cargoBumpVersion",
	TaskHelmPackage:     "helmPackage",
	TaskHelmPush:        "helmPush",
	TaskPythonBuild:     "pythonBuild",
	TaskPythonPublish:   "pythonPublish",
	TaskPytest:          "pytest",
}

// EffectiveID returns the task's id, falling back to the conventional
// name for its type.
func (t TaskConfig) EffectiveID() string {
	if t.ID != "" {
		return t.ID
	}
	return defaultTaskIDs[t.Type]
}
