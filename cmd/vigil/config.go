package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ShayCichocki/vigil/internal/config"
	"github.com/ShayCichocki/vigil/pkg/models"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify Vigil configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/vigil/config.yaml
Project-specific overrides can be placed in .vigil.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("anthropic.api_key: %s\n", config.MaskAPIKey(cfg.Anthropic.APIKey))
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("scheduler.max_concurrent: %d\n", cfg.Scheduler.MaxConcurrent)
	fmt.Printf("scheduler.max_attempts: %d\n", cfg.Scheduler.MaxAttempts)
	fmt.Printf("scheduler.session_timeout: %s\n", cfg.Scheduler.SessionTimeout)
	fmt.Printf("scheduler.watchdog_interval: %s\n", cfg.Scheduler.WatchdogInterval)
	fmt.Printf("gates.min_coverage_percent: %g\n", cfg.Gates.MinCoveragePercent)
	fmt.Printf("gates.max_perf_regression_percent: %g\n", cfg.Gates.MaxPerfRegressionPercent)
	fmt.Printf("gates.security_scan_required: %t\n", cfg.Gates.SecurityScanRequired)
	fmt.Printf("detector.min_severity: %s\n", cfg.Detector.MinSeverity)
	fmt.Printf("policy.auto_schedule_backlog: %t\n", cfg.Policy.AutoScheduleBacklog)
	fmt.Printf("policy.auto_escalate_terminal_failures: %t\n", cfg.Policy.AutoEscalateTerminalFailures)
	fmt.Printf("tui.refresh_rate: %s\n", cfg.TUI.RefreshRate)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "scheduler.max_concurrent":
		return strconv.Itoa(cfg.Scheduler.MaxConcurrent), nil
	case "scheduler.max_attempts":
		return strconv.Itoa(cfg.Scheduler.MaxAttempts), nil
	case "scheduler.session_timeout":
		return cfg.Scheduler.SessionTimeout.String(), nil
	case "scheduler.watchdog_interval":
		return cfg.Scheduler.WatchdogInterval.String(), nil
	case "gates.min_coverage_percent":
		return strconv.FormatFloat(cfg.Gates.MinCoveragePercent, 'g', -1, 64), nil
	case "gates.max_perf_regression_percent":
		return strconv.FormatFloat(cfg.Gates.MaxPerfRegressionPercent, 'g', -1, 64), nil
	case "gates.security_scan_required":
		return strconv.FormatBool(cfg.Gates.SecurityScanRequired), nil
	case "detector.min_severity":
		return cfg.Detector.MinSeverity, nil
	case "policy.auto_schedule_backlog":
		return strconv.FormatBool(cfg.Policy.AutoScheduleBacklog), nil
	case "policy.auto_escalate_terminal_failures":
		return strconv.FormatBool(cfg.Policy.AutoEscalateTerminalFailures), nil
	case "tui.refresh_rate":
		return cfg.TUI.RefreshRate.String(), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "scheduler.max_concurrent":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_concurrent: %w", err)
		}
		cfg.Scheduler.MaxConcurrent = n
	case "scheduler.max_attempts":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_attempts: %w", err)
		}
		cfg.Scheduler.MaxAttempts = n
	case "scheduler.session_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for session_timeout: %w", err)
		}
		cfg.Scheduler.SessionTimeout = d
	case "scheduler.watchdog_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for watchdog_interval: %w", err)
		}
		cfg.Scheduler.WatchdogInterval = d
	case "gates.min_coverage_percent":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for min_coverage_percent: %w", err)
		}
		cfg.Gates.MinCoveragePercent = f
	case "gates.max_perf_regression_percent":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for max_perf_regression_percent: %w", err)
		}
		cfg.Gates.MaxPerfRegressionPercent = f
	case "gates.security_scan_required":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for security_scan_required: %w", err)
		}
		cfg.Gates.SecurityScanRequired = b
	case "detector.min_severity":
		if !models.Severity(value).Valid() {
			return fmt.Errorf("invalid severity: %s", value)
		}
		cfg.Detector.MinSeverity = value
	case "policy.auto_schedule_backlog":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for auto_schedule_backlog: %w", err)
		}
		cfg.Policy.AutoScheduleBacklog = b
	case "policy.auto_escalate_terminal_failures":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for auto_escalate_terminal_failures: %w", err)
		}
		cfg.Policy.AutoEscalateTerminalFailures = b
	case "tui.refresh_rate":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for refresh_rate: %w", err)
		}
		cfg.TUI.RefreshRate = d
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	return cfg.Validate()
}
