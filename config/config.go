// Package config provides pipeline configuration - limits, intervals and
// file locations. Values come from a YAML file layered over defaults;
// anything infrastructure-specific (model endpoints, tracing collectors)
// stays optional so a bare save directory is enough to run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full pipeline configuration.
type Config struct {
	// Save layout
	SaveDir string `yaml:"save_dir"`

	// Mailbox behavior
	PollIntervalMs int `yaml:"poll_interval_ms"`
	PruneMax       int `yaml:"prune_max"`
	DedupCapacity  int `yaml:"dedup_capacity"`

	// Refinement
	IterationLimit int `yaml:"iteration_limit"`

	// Completion backend
	Completion CompletionConfig `yaml:"completion"`

	// Observability
	LogLevel         string  `yaml:"log_level"`
	TraceEndpoint    string  `yaml:"trace_endpoint"`
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
	MetricsAddr      string  `yaml:"metrics_addr"`
}

// CompletionConfig configures the text-generation backend.
type CompletionConfig struct {
	Model          string  `yaml:"model"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MaxRetries     int     `yaml:"max_retries"`
	Temperature    float64 `yaml:"temperature"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		SaveDir:        "save",
		PollIntervalMs: 250,
		PruneMax:       200,
		DedupCapacity:  512,
		IterationLimit: 5,
		Completion: CompletionConfig{
			Model:          "wyrm-large",
			TimeoutSeconds: 120,
			MaxRetries:     3,
			Temperature:    0.7,
		},
		LogLevel:         "info",
		TraceSampleRatio: 1.0,
		MetricsAddr:      "",
	}
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks limits and intervals.
func (c *Config) Validate() error {
	if c.SaveDir == "" {
		return fmt.Errorf("save_dir must not be empty")
	}
	if c.PollIntervalMs <= 0 {
		return fmt.Errorf("poll_interval_ms must be positive, got %d", c.PollIntervalMs)
	}
	if c.PruneMax <= 0 {
		return fmt.Errorf("prune_max must be positive, got %d", c.PruneMax)
	}
	if c.DedupCapacity <= 0 {
		return fmt.Errorf("dedup_capacity must be positive, got %d", c.DedupCapacity)
	}
	if c.IterationLimit < 1 {
		return fmt.Errorf("iteration_limit must be at least 1, got %d", c.IterationLimit)
	}
	if c.Completion.TimeoutSeconds <= 0 {
		return fmt.Errorf("completion.timeout_seconds must be positive, got %d", c.Completion.TimeoutSeconds)
	}
	if c.Completion.MaxRetries < 0 {
		return fmt.Errorf("completion.max_retries must not be negative, got %d", c.Completion.MaxRetries)
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return fmt.Errorf("trace_sample_ratio must be between 0 and 1, got %g", c.TraceSampleRatio)
	}
	return nil
}

// PollInterval returns the mailbox poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// CompletionTimeout returns the completion call timeout as a duration.
func (c *Config) CompletionTimeout() time.Duration {
	return time.Duration(c.Completion.TimeoutSeconds) * time.Second
}

// MailboxPath returns the mailbox file for a stage within the save.
func (c *Config) MailboxPath(stage string) string {
	return filepath.Join(c.SaveDir, "mailbox", stage+".json")
}

// AuditPath returns the append-only audit log file for the save.
func (c *Config) AuditPath() string {
	return filepath.Join(c.SaveDir, "mailbox", "audit.json")
}

// SessionPath returns the file the running pipeline publishes its session
// id in, so producers in other processes can stamp envelopes it will claim.
func (c *Config) SessionPath() string {
	return filepath.Join(c.SaveDir, "session")
}

// WorldDBPath returns the SQLite world database file for the save.
func (c *Config) WorldDBPath() string {
	return filepath.Join(c.SaveDir, "world.db")
}
