// Package config loads and validates the agent configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"hostsentry/internal/alert"
	"hostsentry/internal/engine"
	"hostsentry/internal/remediation"
)

// ConfigError describes an invalid configuration value. Any ConfigError is
// fatal at startup; the agent never runs with partial configuration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

// Thresholds holds warning/critical limits per metric, in percent.
type Thresholds struct {
	CPUWarning     float64 `yaml:"cpu_warning"`
	CPUCritical    float64 `yaml:"cpu_critical"`
	MemoryWarning  float64 `yaml:"memory_warning"`
	MemoryCritical float64 `yaml:"memory_critical"`
	DiskWarning    float64 `yaml:"disk_warning"`
	DiskCritical   float64 `yaml:"disk_critical"`
}

// Cooldown configures repeat-firing suppression.
type Cooldown struct {
	DefaultSeconds   int            `yaml:"default_seconds"`
	PerMetricSeconds map[string]int `yaml:"per_metric_seconds,omitempty"`
}

// Collector configures local sampling.
type Collector struct {
	SampleTimeoutSeconds int    `yaml:"sample_timeout_seconds"`
	DiskPath             string `yaml:"disk_path"`
	TopProcesses         int    `yaml:"top_processes"`
}

// Config is the full agent configuration.
type Config struct {
	PollIntervalSeconds   int    `yaml:"poll_interval_seconds"`
	PerHostTimeoutSeconds int    `yaml:"per_host_timeout_seconds"`
	ListenAddr            string `yaml:"listen_addr"`
	AuditDSN              string `yaml:"audit_dsn,omitempty"`
	InventoryPath         string `yaml:"inventory_path,omitempty"`

	Thresholds Thresholds `yaml:"thresholds"`
	Cooldown   Cooldown   `yaml:"cooldown"`
	Collector  Collector  `yaml:"collector"`

	RemediationEnabled bool               `yaml:"remediation_enabled"`
	AlertingEnabled    bool               `yaml:"alerting_enabled"`
	Actions            []remediation.Spec `yaml:"actions,omitempty"`
	SMTP               *alert.SMTPConfig  `yaml:"smtp,omitempty"`
}

// Default returns the configuration used when no file is given.
// Remediation is off by default; nothing gets killed without an explicit
// opt-in.
func Default() Config {
	return Config{
		PollIntervalSeconds:   5,
		PerHostTimeoutSeconds: 10,
		ListenAddr:            ":8090",
		Thresholds: Thresholds{
			CPUWarning:     80,
			CPUCritical:    95,
			MemoryWarning:  85,
			MemoryCritical: 95,
			DiskWarning:    80,
			DiskCritical:   90,
		},
		Cooldown: Cooldown{DefaultSeconds: 300},
		Collector: Collector{
			SampleTimeoutSeconds: 5,
			DiskPath:             "/",
			TopProcesses:         15,
		},
		RemediationEnabled: false,
		AlertingEnabled:    true,
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment overrides, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, &ConfigError{Field: "file", Message: err.Error()}
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, &ConfigError{Field: "file", Message: fmt.Sprintf("parse %s: %v", path, err)}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ListenAddr = getenv("HOSTSENTRY_LISTEN_ADDR", c.ListenAddr)
	c.AuditDSN = getenv("HOSTSENTRY_AUDIT_DSN", c.AuditDSN)
	c.InventoryPath = getenv("HOSTSENTRY_INVENTORY", c.InventoryPath)
	c.PollIntervalSeconds = getenvInt("HOSTSENTRY_POLL_INTERVAL_SECONDS", c.PollIntervalSeconds)
	c.PerHostTimeoutSeconds = getenvInt("HOSTSENTRY_PER_HOST_TIMEOUT_SECONDS", c.PerHostTimeoutSeconds)
	c.RemediationEnabled = getenvBool("HOSTSENTRY_REMEDIATION_ENABLED", c.RemediationEnabled)
	c.AlertingEnabled = getenvBool("HOSTSENTRY_ALERTING_ENABLED", c.AlertingEnabled)
	if c.SMTP != nil {
		c.SMTP.Password = getenv("HOSTSENTRY_SMTP_PASSWORD", c.SMTP.Password)
	}
}

// Validate checks the whole configuration and returns the first problem
// found.
func (c Config) Validate() error {
	if c.PollIntervalSeconds <= 0 {
		return &ConfigError{Field: "poll_interval_seconds", Message: "must be positive"}
	}
	if c.PerHostTimeoutSeconds <= 0 {
		return &ConfigError{Field: "per_host_timeout_seconds", Message: "must be positive"}
	}
	if c.ListenAddr == "" {
		return &ConfigError{Field: "listen_addr", Message: "required"}
	}

	pairs := []struct {
		field             string
		warning, critical float64
	}{
		{"thresholds.cpu", c.Thresholds.CPUWarning, c.Thresholds.CPUCritical},
		{"thresholds.memory", c.Thresholds.MemoryWarning, c.Thresholds.MemoryCritical},
		{"thresholds.disk", c.Thresholds.DiskWarning, c.Thresholds.DiskCritical},
	}
	for _, p := range pairs {
		if p.warning <= 0 || p.warning > 100 {
			return &ConfigError{Field: p.field + "_warning", Message: "must be in (0, 100]"}
		}
		if p.critical <= 0 || p.critical > 100 {
			return &ConfigError{Field: p.field + "_critical", Message: "must be in (0, 100]"}
		}
		if p.warning > p.critical {
			return &ConfigError{Field: p.field + "_warning", Message: "must not exceed the critical limit"}
		}
	}

	if c.Cooldown.DefaultSeconds < 0 {
		return &ConfigError{Field: "cooldown.default_seconds", Message: "must not be negative"}
	}
	for metric, secs := range c.Cooldown.PerMetricSeconds {
		if !engine.MetricKind(metric).Known() {
			return &ConfigError{Field: "cooldown.per_metric_seconds", Message: fmt.Sprintf("unknown metric %q", metric)}
		}
		if secs < 0 {
			return &ConfigError{Field: "cooldown.per_metric_seconds." + metric, Message: "must not be negative"}
		}
	}

	for _, a := range c.Actions {
		if !engine.MetricKind(a.Trigger).Known() {
			return &ConfigError{Field: "actions", Message: fmt.Sprintf("action %q: unknown trigger %q", a.ID, a.Trigger)}
		}
	}

	if c.SMTP != nil {
		if c.SMTP.Host == "" {
			return &ConfigError{Field: "smtp.host", Message: "required when smtp is configured"}
		}
		if c.SMTP.From == "" {
			return &ConfigError{Field: "smtp.from", Message: "required when smtp is configured"}
		}
		if len(c.SMTP.Recipients) == 0 {
			return &ConfigError{Field: "smtp.recipients", Message: "at least one recipient required"}
		}
	}

	if c.Collector.SampleTimeoutSeconds <= 0 {
		return &ConfigError{Field: "collector.sample_timeout_seconds", Message: "must be positive"}
	}
	if c.Collector.TopProcesses < 0 {
		return &ConfigError{Field: "collector.top_processes", Message: "must not be negative"}
	}

	return nil
}

// PollInterval returns the cycle period as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// PerHostTimeout returns the per-host sampling budget as a duration.
func (c Config) PerHostTimeout() time.Duration {
	return time.Duration(c.PerHostTimeoutSeconds) * time.Second
}

// Limits converts the threshold block into the evaluator's form.
func (c Config) Limits() map[engine.MetricKind]engine.Limits {
	return map[engine.MetricKind]engine.Limits{
		engine.MetricCPU:    {Warning: c.Thresholds.CPUWarning, Critical: c.Thresholds.CPUCritical},
		engine.MetricMemory: {Warning: c.Thresholds.MemoryWarning, Critical: c.Thresholds.MemoryCritical},
		engine.MetricDisk:   {Warning: c.Thresholds.DiskWarning, Critical: c.Thresholds.DiskCritical},
	}
}

// CooldownDefault returns the default cooldown window.
func (c Config) CooldownDefault() time.Duration {
	return time.Duration(c.Cooldown.DefaultSeconds) * time.Second
}

// CooldownOverrides returns the per-metric windows.
func (c Config) CooldownOverrides() map[engine.MetricKind]time.Duration {
	if len(c.Cooldown.PerMetricSeconds) == 0 {
		return nil
	}
	out := make(map[engine.MetricKind]time.Duration, len(c.Cooldown.PerMetricSeconds))
	for metric, secs := range c.Cooldown.PerMetricSeconds {
		out[engine.MetricKind(metric)] = time.Duration(secs) * time.Second
	}
	return out
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
