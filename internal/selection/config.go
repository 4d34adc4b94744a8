// Package selection resolves dbt-style selectors into the node names they select.
//
// Two resolvers are provided:
//   - StaticResolver answers from a project graph and named selectors declared in
//     .alertmon.yaml, without touching dbt.
//   - DbtResolver shells out to `dbt ls` inside a dbt project.
//
// Both satisfy filters.NodeResolver.
package selection

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/correlator-io/alertmon/internal/config"
)

// DefaultConfigPath is the default location of the alertmon configuration file.
const DefaultConfigPath = ".alertmon.yaml"

// ConfigPathEnvVar is the environment variable name for a custom config path.
const ConfigPathEnvVar = "ALERTMON_CONFIG_PATH"

type (
	// Config holds selector resolution settings loaded from .alertmon.yaml.
	//
	// Example:
	//
	//	selectors:
	//	  finance_daily: [orders, payments]
	//	nodes:
	//	  orders:
	//	    depends_on: [stg_orders]
	//	    tags: [finance]
	//	    owner: dana
	//	dbt:
	//	  project_dir: ./jaffle_shop
	//	  target: prod
	Config struct {
		// Selectors maps a selector name to the node names it selects.
		Selectors map[string][]string `yaml:"selectors"`

		// Nodes is the project graph keyed by node name.
		Nodes map[string]Node `yaml:"nodes"`

		Dbt DbtConfig `yaml:"dbt"`
	}

	// Node is one model, source or test of the project graph.
	Node struct {
		//nolint:tagliatelle // snake_case is intentional for YAML config files
		DependsOn []string `yaml:"depends_on"`
		Tags      []string `yaml:"tags"`
		Owner     string   `yaml:"owner"`
	}

	// DbtConfig locates the dbt project used by DbtResolver.
	DbtConfig struct {
		//nolint:tagliatelle // snake_case is intentional for YAML config files
		ProjectDir string `yaml:"project_dir"`
		//nolint:tagliatelle // snake_case is intentional for YAML config files
		ProfilesDir string `yaml:"profiles_dir"`
		Target      string `yaml:"target"`
		// Executable defaults to "dbt".
		Executable string `yaml:"executable"`
	}
)

func emptyConfig() *Config {
	return &Config{
		Selectors: make(map[string][]string),
		Nodes:     make(map[string]Node),
	}
}

// LoadConfig loads selection configuration from a YAML file at the given path.
//
// Behavior:
//   - Returns empty config (not error) if file doesn't exist - selectors are optional
//   - Returns empty config + logs warning if YAML is invalid
//   - Returns populated config on success
func LoadConfig(path string) (*Config, error) {
	cfg := emptyConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Config file not found, continuing without selectors",
				slog.String("path", path))

			return cfg, nil
		}

		slog.Warn("Failed to read config file, continuing without selectors",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return cfg, nil
	}

	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Warn("Failed to parse config file, continuing without selectors",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return emptyConfig(), nil
	}

	if cfg.Selectors == nil {
		cfg.Selectors = make(map[string][]string)
	}

	if cfg.Nodes == nil {
		cfg.Nodes = make(map[string]Node)
	}

	return cfg, nil
}

// LoadConfigFromEnv loads config from the path in ALERTMON_CONFIG_PATH.
// Falls back to ".alertmon.yaml" in the current directory if not set.
func LoadConfigFromEnv() (*Config, error) {
	path := config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath)

	return LoadConfig(path)
}
