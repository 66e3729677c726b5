package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mythos-linux/mythos/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

// AppConfigFile is the settings file looked up under the repository root.
const AppConfigFile = "mythos.yaml"

// Environment variables that override the settings file.
const (
	EnvRoot     = "MYTHOS_ROOT"
	EnvTheme    = "MYTHOS_THEME"
	EnvPolicy   = "MYTHOS_POLICY"
	EnvHistory  = "MYTHOS_HISTORY"
	EnvLogLevel = "MYTHOS_LOG_LEVEL"
)

// Policy names accepted by AppConfig.Policy.
const (
	PolicyPrompt   = "prompt"
	PolicyContinue = "continue"
	PolicyAbort    = "abort"
	PolicyRego     = "rego"
)

// AppConfig holds the CLI settings. Precedence, lowest first: defaults,
// mythos.yaml, environment, flags (applied by the caller).
type AppConfig struct {
	// Root is the repository root holding profiles/, traits/, bootstrap/ and pillars/.
	Root string `yaml:"root" validate:"required"`

	// Theme is the display theme used when the profile does not set one.
	Theme string `yaml:"theme"`

	// Policy selects the failure policy.
	Policy string `yaml:"policy" validate:"oneof=prompt continue abort rego"`

	// PolicyFile is a Rego module replacing the built-in failure policy.
	PolicyFile string `yaml:"policy_file"`

	// Bootstrap is the name of the bootstrap script under <root>/bootstrap.
	Bootstrap string `yaml:"bootstrap" validate:"required,excludesall=/\\"`

	// StepTimeout bounds each step; zero disables the limit.
	StepTimeout time.Duration `yaml:"step_timeout" validate:"gte=0"`

	// EvalTimeout bounds Starlark document evaluation.
	EvalTimeout time.Duration `yaml:"eval_timeout" validate:"gte=0"`

	// History configures the run journal.
	History HistoryConfig `yaml:"history"`

	// Telemetry configures logs, traces and metrics.
	Telemetry telemetry.Config `yaml:"telemetry"`

	// Remote configures provisioning over SSH.
	Remote RemoteConfig `yaml:"remote"`
}

// HistoryConfig configures the SQLite run journal.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`
}

// RemoteConfig describes the SSH target for remote runs.
type RemoteConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port" validate:"gte=0,lte=65535"`
	User           string        `yaml:"user" validate:"required_with=Host"`
	KeyPath        string        `yaml:"key_path"`
	KnownHosts     string        `yaml:"known_hosts"`
	Insecure       bool          `yaml:"insecure"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	WorkDir        string        `yaml:"work_dir"`
}

// DefaultAppConfig returns the settings used when nothing is configured.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Root:        ".",
		Policy:      PolicyPrompt,
		Bootstrap:   "arch",
		EvalTimeout: 5 * time.Second,
		History: HistoryConfig{
			Path: DefaultHistoryPath(),
		},
		Telemetry: *telemetry.DefaultConfig(),
		Remote: RemoteConfig{
			Port:           22,
			ConnectTimeout: 30 * time.Second,
			WorkDir:        "/tmp/mythos",
		},
	}
}

// DefaultHistoryPath returns $XDG_STATE_HOME/mythos/history.db, falling back
// to ~/.local/state.
func DefaultHistoryPath() string {
	state := os.Getenv("XDG_STATE_HOME")
	if state == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "mythos", "history.db")
		}
		state = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(state, "mythos", "history.db")
}

// FindAppConfig returns <root>/mythos.yaml when it exists, otherwise "".
func FindAppConfig(root string) string {
	path := filepath.Join(root, AppConfigFile)
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path
	}
	return ""
}

// LoadAppConfig builds the settings from defaults, the file at path (skipped
// when path is empty) and the environment, then validates them.
func LoadAppConfig(path string) (*AppConfig, error) {
	cfg := DefaultAppConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("settings file not found: %s", path)
			}
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		// A relative root is relative to the settings file.
		if !filepath.IsAbs(cfg.Root) {
			cfg.Root = filepath.Join(filepath.Dir(path), cfg.Root)
		}
	}

	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides settings from environment variables.
func (c *AppConfig) applyEnv(getenv func(string) string) {
	if v := getenv(EnvRoot); v != "" {
		c.Root = v
	}
	if v := getenv(EnvTheme); v != "" {
		c.Theme = v
	}
	if v := getenv(EnvPolicy); v != "" {
		c.Policy = strings.ToLower(v)
	}
	if v := getenv(EnvHistory); v != "" {
		switch strings.ToLower(v) {
		case "0", "false", "off", "no":
			c.History.Enabled = false
		case "1", "true", "on", "yes":
			c.History.Enabled = true
		default:
			c.History.Enabled = true
			c.History.Path = v
		}
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Telemetry.Logging.Level = strings.ToLower(v)
	}
}

// Validate checks the settings, including the telemetry section.
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid settings: %w", formatValidationErrors(err))
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry settings: %w", err)
	}
	return nil
}

// StoreConfig returns the FileStore configuration for these settings.
func (c *AppConfig) StoreConfig() StoreConfig {
	return StoreConfig{Root: c.Root, EvalTimeout: c.EvalTimeout}
}
