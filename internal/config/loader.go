package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// ProjectConfigFile is read from the working directory when present.
	ProjectConfigFile = "legalflow.yaml"
	// ConfigPathEnv points at an explicit config file.
	ConfigPathEnv = "LEGALFLOW_CONFIG"
)

// Environment variables that override file settings.
const (
	EnvAPIKey           = "GOOGLE_API_KEY"
	EnvProjectID        = "PROJECT_ID"
	EnvRegion           = "VERTEX_AI_REGION"
	EnvReportsBucket    = "REPORTS_BUCKET"
	EnvIntakeBucket     = "INTAKE_BUCKET"
	EnvFirestore        = "FIRESTORE_COLLECTION"
	EnvWorkflowID       = "WORKFLOW_ID"
	EnvWorkflowLocation = "WORKFLOW_LOCATION"
	EnvModelFast        = "LEGALFLOW_MODEL_FAST"
	EnvModelAdvanced    = "LEGALFLOW_MODEL_ADVANCED"
	EnvModelVision      = "LEGALFLOW_MODEL_VISION"
	EnvCallTimeout      = "LEGALFLOW_CALL_TIMEOUT"
)

// GetEnv reads an environment variable or returns fallback.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// Loader layers defaults, a YAML file and the environment.
type Loader struct {
	logger *slog.Logger
	dotenv []string
	path   string
	lookup func(string) (string, bool)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithDotEnv loads the given .env files before reading the environment.
// Missing files are ignored.
func WithDotEnv(paths ...string) LoaderOption {
	return func(l *Loader) { l.dotenv = append(l.dotenv, paths...) }
}

// WithPath reads the config file at path instead of the default locations.
func WithPath(path string) LoaderOption {
	return func(l *Loader) { l.path = path }
}

// WithLookup replaces os.LookupEnv.
func WithLookup(fn func(string) (string, bool)) LoaderOption {
	return func(l *Loader) { l.lookup = fn }
}

// NewLoader creates a new configuration loader.
func NewLoader(logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{logger: logger, lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the merged configuration:
// 1. defaults
// 2. the file named by WithPath, LEGALFLOW_CONFIG or ./legalflow.yaml
// 3. environment variables, after loading any .env files
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, p := range l.dotenv {
		if err := godotenv.Load(p); err != nil {
			l.logger.Debug("No .env file loaded", slog.String("path", p), slog.String("error", err.Error()))
		}
	}

	path, explicit := l.configPath()
	fileCfg, err := LoadFromFile(path)
	switch {
	case err == nil:
		l.logger.Debug("Loaded config file", slog.String("path", path))
		cfg.Merge(fileCfg)
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		l.logger.Debug("No config file found", slog.String("path", path))
	default:
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) configPath() (string, bool) {
	if l.path != "" {
		return l.path, true
	}
	if p, ok := l.lookup(ConfigPathEnv); ok && p != "" {
		return p, true
	}
	return ProjectConfigFile, false
}

func (l *Loader) applyEnv(cfg *Config) error {
	env := &Config{}
	for key, dst := range map[string]*string{
		EnvAPIKey:           &env.APIKey,
		EnvProjectID:        &env.Cloud.ProjectID,
		EnvRegion:           &env.Cloud.Region,
		EnvReportsBucket:    &env.Cloud.ReportsBucket,
		EnvIntakeBucket:     &env.Cloud.IntakeBucket,
		EnvFirestore:        &env.Cloud.FirestoreCollection,
		EnvWorkflowID:       &env.Cloud.WorkflowID,
		EnvWorkflowLocation: &env.Cloud.WorkflowLocation,
		EnvModelFast:        &env.Models.Fast,
		EnvModelAdvanced:    &env.Models.Advanced,
		EnvModelVision:      &env.Models.Vision,
	} {
		if v, ok := l.lookup(key); ok {
			*dst = v
		}
	}
	if v, ok := l.lookup(EnvCallTimeout); ok && v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCallTimeout, err)
		}
		env.Models.CallTimeout = d
	}
	cfg.Merge(env)
	return nil
}

// parseTimeout accepts a Go duration or a whole number of seconds.
func parseTimeout(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}
