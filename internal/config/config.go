// Package config holds the settings shared by the cloud functions and the
// command line tool.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Models   ModelConfig    `yaml:"models"`
	Cloud    CloudConfig    `yaml:"cloud"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Session  SessionConfig  `yaml:"session"`

	// APIKey is never written back to disk.
	APIKey string `yaml:"-"`
}

// ModelConfig names the model used for each tier.
type ModelConfig struct {
	Fast        string        `yaml:"fast"`
	Advanced    string        `yaml:"advanced"`
	Vision      string        `yaml:"vision"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int32         `yaml:"max_tokens"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// CloudConfig holds project and resource names.
type CloudConfig struct {
	ProjectID           string `yaml:"project_id"`
	Region              string `yaml:"region"`
	IntakeBucket        string `yaml:"intake_bucket"`
	ReportsBucket       string `yaml:"reports_bucket"`
	FirestoreCollection string `yaml:"firestore_collection"`
	WorkflowID          string `yaml:"workflow_id"`
	WorkflowLocation    string `yaml:"workflow_location"`
}

// AnalysisConfig tunes a run.
type AnalysisConfig struct {
	Variant          string `yaml:"variant"`
	ImageConcurrency int    `yaml:"image_concurrency"`
}

// LoggingConfig controls the log output of the command line tool.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// SessionConfig controls how long an idle session is kept.
type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Models: ModelConfig{
			Fast:        "gemini-2.0-flash-lite",
			Advanced:    "gemini-2.5-flash",
			Vision:      "gemini-1.5-flash",
			Temperature: 0.1,
			MaxTokens:   8192,
			CallTimeout: 3 * time.Minute,
		},
		Cloud: CloudConfig{
			Region:              "europe-west1",
			FirestoreCollection: "cases",
			WorkflowLocation:    "europe-west1",
		},
		Analysis: AnalysisConfig{
			Variant:          "repliek",
			ImageConcurrency: 4,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Session: SessionConfig{
			TTL:           2 * time.Hour,
			SweepInterval: 5 * time.Minute,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Models.Fast == "" || c.Models.Advanced == "" || c.Models.Vision == "" {
		return fmt.Errorf("models.fast, models.advanced and models.vision are required")
	}
	if c.Models.Temperature < 0 || c.Models.Temperature > 2 {
		return fmt.Errorf("models.temperature must be between 0 and 2")
	}
	if c.Models.MaxTokens <= 0 {
		return fmt.Errorf("models.max_tokens must be positive")
	}
	if c.Models.CallTimeout <= 0 {
		return fmt.Errorf("models.call_timeout must be positive")
	}
	if c.Analysis.ImageConcurrency <= 0 {
		return fmt.Errorf("analysis.image_concurrency must be positive")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session.sweep_interval must be positive")
	}
	return nil
}

// HasCredentials reports whether a model backend can be reached: either an
// API key or a Vertex project and region.
func (c *Config) HasCredentials() bool {
	return c.APIKey != "" || (c.Cloud.ProjectID != "" && c.Cloud.Region != "")
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// SaveToFile writes the configuration as YAML, creating parent directories.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Merge overlays the non-zero values of other onto c.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	setString(&c.Models.Fast, other.Models.Fast)
	setString(&c.Models.Advanced, other.Models.Advanced)
	setString(&c.Models.Vision, other.Models.Vision)
	if other.Models.Temperature != 0 {
		c.Models.Temperature = other.Models.Temperature
	}
	if other.Models.MaxTokens != 0 {
		c.Models.MaxTokens = other.Models.MaxTokens
	}
	if other.Models.CallTimeout != 0 {
		c.Models.CallTimeout = other.Models.CallTimeout
	}

	setString(&c.Cloud.ProjectID, other.Cloud.ProjectID)
	setString(&c.Cloud.Region, other.Cloud.Region)
	setString(&c.Cloud.IntakeBucket, other.Cloud.IntakeBucket)
	setString(&c.Cloud.ReportsBucket, other.Cloud.ReportsBucket)
	setString(&c.Cloud.FirestoreCollection, other.Cloud.FirestoreCollection)
	setString(&c.Cloud.WorkflowID, other.Cloud.WorkflowID)
	setString(&c.Cloud.WorkflowLocation, other.Cloud.WorkflowLocation)

	setString(&c.Analysis.Variant, other.Analysis.Variant)
	if other.Analysis.ImageConcurrency != 0 {
		c.Analysis.ImageConcurrency = other.Analysis.ImageConcurrency
	}

	setString(&c.Logging.Level, other.Logging.Level)
	setString(&c.Logging.File, other.Logging.File)
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxBackups != 0 {
		c.Logging.MaxBackups = other.Logging.MaxBackups
	}

	if other.Session.TTL != 0 {
		c.Session.TTL = other.Session.TTL
	}
	if other.Session.SweepInterval != 0 {
		c.Session.SweepInterval = other.Session.SweepInterval
	}
	setString(&c.APIKey, other.APIKey)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
