// Package config handles configuration loading and management for Vigil.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/vigil/pkg/models"
)

// Config holds all configuration for Vigil.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Gates     GatesConfig     `mapstructure:"gates"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	Layers    LayersConfig    `mapstructure:"layers"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Database  DatabaseConfig  `mapstructure:"database"`
	TUI       TUIConfig       `mapstructure:"tui"`
}

// AnthropicConfig holds Anthropic API settings for the review layer.
type AnthropicConfig struct {
	APIKey        string `mapstructure:"api_key"`
	Model         string `mapstructure:"model"`
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// SchedulerConfig holds worker pool and timeout settings.
type SchedulerConfig struct {
	// MaxConcurrent is the validation session worker budget.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// MaxAttempts is the validation attempt limit per job.
	MaxAttempts int `mapstructure:"max_attempts"`
	// SessionTimeout is the heartbeat deadline before a session is
	// forcibly terminated.
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
	// WatchdogInterval is how often stalled sessions are checked.
	WatchdogInterval time.Duration `mapstructure:"watchdog_interval"`
	// WorkDir is the checkout the layer executors run against.
	WorkDir string `mapstructure:"work_dir"`
}

// GatesConfig holds quality gate thresholds.
type GatesConfig struct {
	// MinCoveragePercent fails the gate when measured coverage falls
	// below it. Zero disables the gate.
	MinCoveragePercent float64 `mapstructure:"min_coverage_percent"`
	// MaxPerfRegressionPercent fails the gate when a measured
	// regression exceeds it. Zero disables the gate.
	MaxPerfRegressionPercent float64 `mapstructure:"max_perf_regression_percent"`
	// SecurityScanRequired fails the gate when no layer ran a passing
	// security scan.
	SecurityScanRequired bool `mapstructure:"security_scan_required"`
}

// DetectorConfig holds bug detector settings.
type DetectorConfig struct {
	// RulesFile is the optional YAML severity rules file.
	RulesFile string `mapstructure:"rules_file"`
	// MinSeverity is the threshold above which findings from passing
	// reports still produce bugs.
	MinSeverity string `mapstructure:"min_severity"`
}

// LayerCommand is one named shell check within a layer.
type LayerCommand struct {
	Name    string `mapstructure:"name"`
	Command string `mapstructure:"command"`
}

// LayersConfig holds the commands each validation layer runs.
type LayersConfig struct {
	CodeQuality []LayerCommand `mapstructure:"code_quality"`
	Functional  []LayerCommand `mapstructure:"functional"`
	Integration []LayerCommand `mapstructure:"integration"`
	// SecurityScan is the optional security scan command attached to
	// the code-quality layer.
	SecurityScan string `mapstructure:"security_scan"`
	// Timeout is the per-layer command timeout.
	Timeout time.Duration `mapstructure:"timeout"`
}

// PolicyConfig holds permission settings for autonomous actions.
type PolicyConfig struct {
	// AutoScheduleBacklog permits scheduling re-validation for new
	// critical/high bugs without approval.
	AutoScheduleBacklog bool `mapstructure:"auto_schedule_backlog"`
	// AutoEscalateTerminalFailures permits escalating terminally
	// failed jobs to the backlog without approval.
	AutoEscalateTerminalFailures bool `mapstructure:"auto_escalate_terminal_failures"`
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	// Path overrides the default database location.
	Path string `mapstructure:"path"`
}

// TUIConfig holds watch dashboard settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.vigil.yaml in current directory or parent)
// 3. User config (~/.config/vigil/config.yaml)
// 4. Built-in defaults
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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against the recognized option
// ranges.
func (c *Config) Validate() error {
	if c.Scheduler.MaxConcurrent < 1 {
		return fmt.Errorf("scheduler.max_concurrent must be at least 1, got %d", c.Scheduler.MaxConcurrent)
	}
	if c.Scheduler.MaxAttempts < 1 {
		return fmt.Errorf("scheduler.max_attempts must be at least 1, got %d", c.Scheduler.MaxAttempts)
	}
	if c.Scheduler.SessionTimeout <= 0 {
		return fmt.Errorf("scheduler.session_timeout must be positive, got %s", c.Scheduler.SessionTimeout)
	}
	if c.Scheduler.WatchdogInterval <= 0 {
		return fmt.Errorf("scheduler.watchdog_interval must be positive, got %s", c.Scheduler.WatchdogInterval)
	}
	if c.Gates.MinCoveragePercent < 0 || c.Gates.MinCoveragePercent > 100 {
		return fmt.Errorf("gates.min_coverage_percent must be between 0 and 100, got %v", c.Gates.MinCoveragePercent)
	}
	if c.Gates.MaxPerfRegressionPercent < 0 {
		return fmt.Errorf("gates.max_perf_regression_percent must not be negative, got %v", c.Gates.MaxPerfRegressionPercent)
	}
	if c.Detector.MinSeverity != "" && !models.Severity(c.Detector.MinSeverity).Valid() {
		return fmt.Errorf("detector.min_severity %q is not a recognized severity", c.Detector.MinSeverity)
	}
	if c.Layers.Timeout <= 0 {
		return fmt.Errorf("layers.timeout must be positive, got %s", c.Layers.Timeout)
	}
	return nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("scheduler.max_concurrent", cfg.Scheduler.MaxConcurrent)
	v.Set("scheduler.max_attempts", cfg.Scheduler.MaxAttempts)
	v.Set("scheduler.session_timeout", cfg.Scheduler.SessionTimeout.String())
	v.Set("scheduler.watchdog_interval", cfg.Scheduler.WatchdogInterval.String())
	v.Set("gates.min_coverage_percent", cfg.Gates.MinCoveragePercent)
	v.Set("gates.max_perf_regression_percent", cfg.Gates.MaxPerfRegressionPercent)
	v.Set("gates.security_scan_required", cfg.Gates.SecurityScanRequired)
	v.Set("detector.rules_file", cfg.Detector.RulesFile)
	v.Set("detector.min_severity", cfg.Detector.MinSeverity)
	v.Set("policy.auto_schedule_backlog", cfg.Policy.AutoScheduleBacklog)
	v.Set("policy.auto_escalate_terminal_failures", cfg.Policy.AutoEscalateTerminalFailures)
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.use_aws_bedrock", false)

	v.SetDefault("scheduler.max_concurrent", 3)
	v.SetDefault("scheduler.max_attempts", 3)
	v.SetDefault("scheduler.session_timeout", "10m")
	v.SetDefault("scheduler.watchdog_interval", "15s")
	v.SetDefault("scheduler.work_dir", ".")

	v.SetDefault("gates.min_coverage_percent", 0)
	v.SetDefault("gates.max_perf_regression_percent", 0)
	v.SetDefault("gates.security_scan_required", false)

	v.SetDefault("detector.rules_file", "")
	v.SetDefault("detector.min_severity", string(models.SeverityHigh))

	v.SetDefault("layers.timeout", "10m")

	v.SetDefault("policy.auto_schedule_backlog", true)
	v.SetDefault("policy.auto_escalate_terminal_failures", true)

	v.SetDefault("database.path", "")

	v.SetDefault("tui.refresh_rate", "1s")
}

// getUserConfigDir returns the XDG config directory for Vigil.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "vigil")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "vigil")
	}
	return filepath.Join(home, ".config", "vigil")
}

// findProjectConfig searches for .vigil.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".vigil.yaml")
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
		Scheduler: SchedulerConfig{
			MaxConcurrent:    3,
			MaxAttempts:      3,
			SessionTimeout:   10 * time.Minute,
			WatchdogInterval: 15 * time.Second,
			WorkDir:          ".",
		},
		Detector: DetectorConfig{
			MinSeverity: string(models.SeverityHigh),
		},
		Layers: LayersConfig{
			Timeout: 10 * time.Minute,
		},
		Policy: PolicyConfig{
			AutoScheduleBacklog:          true,
			AutoEscalateTerminalFailures: true,
		},
		TUI: TUIConfig{
			RefreshRate: time.Second,
		},
	}
}
