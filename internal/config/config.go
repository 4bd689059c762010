// Package config handles configuration loading for the evaluation
// harness. It supports XDG config paths, project-level overrides, and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/oIoTShipTalk/convex-evals/internal/backend"
)

// Config holds all configuration for the harness.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Evals     EvalsConfig     `mapstructure:"evals"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Lint      LintConfig      `mapstructure:"lint"`
	History   HistoryConfig   `mapstructure:"history"`
}

// AnthropicConfig holds generation API settings.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key; ${VAR} references are expanded.
	APIKey string `mapstructure:"api_key"`
	// Model is the Claude model used for generation.
	Model string `mapstructure:"model"`
	// UseBedrock routes generation through AWS Bedrock.
	UseBedrock bool `mapstructure:"use_bedrock"`
	// AWSRegion is the Bedrock region.
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the optional AWS profile name.
	AWSProfile string `mapstructure:"aws_profile"`
}

// EvalsConfig holds test case and output locations.
type EvalsConfig struct {
	// Root is the directory of <category>/<test> test cases.
	Root string `mapstructure:"root"`
	// OutputDir receives generated projects and backend storage.
	OutputDir string `mapstructure:"output_dir"`
	// Concurrency caps parallel generation calls.
	Concurrency int `mapstructure:"concurrency"`
}

// BackendConfig holds local backend settings for the deploy stage.
type BackendConfig struct {
	Binary       string        `mapstructure:"binary"`
	Port         int           `mapstructure:"port"`
	SitePort     int           `mapstructure:"site_port"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// LintConfig holds linter settings.
type LintConfig struct {
	// ESLintConfig is the fixed lint configuration path.
	ESLintConfig string `mapstructure:"eslint_config"`
}

// HistoryConfig holds run-history persistence settings.
type HistoryConfig struct {
	// DBPath is the SQLite history database; empty disables history.
	DBPath string `mapstructure:"db_path"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables.
// Precedence (highest to lowest):
//  1. Environment variables (ANTHROPIC_API_KEY)
//  2. Project config (.convex-evals.yaml in current directory or parent)
//  3. User config (~/.config/convex-evals/config.yaml)
//  4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.use_bedrock", false)

	v.SetDefault("evals.root", "evals")
	v.SetDefault("evals.output_dir", "")
	v.SetDefault("evals.concurrency", 4)

	v.SetDefault("backend.binary", backend.DefaultBinary)
	v.SetDefault("backend.port", backend.DefaultPort)
	v.SetDefault("backend.site_port", backend.DefaultSitePort)
	v.SetDefault("backend.probe_timeout", backend.DefaultProbeTimeout.String())

	v.SetDefault("lint.eslint_config", "eslint.config.mjs")
	v.SetDefault("history.db_path", "")
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// getUserConfigDir returns the XDG config directory for the harness.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "convex-evals")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "convex-evals")
	}
	return filepath.Join(home, ".config", "convex-evals")
}

// findProjectConfig searches for .convex-evals.yaml in the current
// directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".convex-evals.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-20250514",
		},
		Evals: EvalsConfig{
			Root:        "evals",
			Concurrency: 4,
		},
		Backend: BackendConfig{
			Binary:       backend.DefaultBinary,
			Port:         backend.DefaultPort,
			SitePort:     backend.DefaultSitePort,
			ProbeTimeout: backend.DefaultProbeTimeout,
		},
		Lint: LintConfig{
			ESLintConfig: "eslint.config.mjs",
		},
	}
}
