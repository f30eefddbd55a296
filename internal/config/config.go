// Package config loads the sessionwatch YAML configuration.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/sessionwatch/internal/alert"
	"github.com/ppiankov/sessionwatch/internal/decisionlog"
	"github.com/ppiankov/sessionwatch/internal/feature"
)

// ServerConfig configures the network surfaces.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	GRPCAddr    string `yaml:"grpc_addr"`
	StaticDir   string `yaml:"static_dir"`
	SummaryPath string `yaml:"summary_path"`
}

// ModelConfig locates the fitted artifacts.
type ModelConfig struct {
	ScalerPath string `yaml:"scaler_path"`
	ScorerPath string `yaml:"scorer_path"`
}

// LogConfig configures the decision log.
type LogConfig struct {
	Path        string `yaml:"path"`
	SchemaDrift string `yaml:"schema_drift"`
}

// FeaturesConfig configures feature alignment.
type FeaturesConfig struct {
	RiskInputs string `yaml:"risk_inputs"`
}

// ReportConfig configures summaries.
type ReportConfig struct {
	RecentLimit int `yaml:"recent_limit"`
}

// LoggingConfig configures the service logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig        `yaml:"server"`
	Model    ModelConfig         `yaml:"model"`
	Log      LogConfig           `yaml:"log"`
	Features FeaturesConfig      `yaml:"features"`
	Report   ReportConfig        `yaml:"report"`
	Logging  LoggingConfig       `yaml:"logging"`
	Alerts   []alert.AlertConfig `yaml:"alerts"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        "127.0.0.1:5000",
			GRPCAddr:    "127.0.0.1:5001",
			StaticDir:   "static",
			SummaryPath: "prediction_summary_report.csv",
		},
		Model: ModelConfig{
			ScalerPath: "scaler_tuned.json",
			ScorerPath: "iso_forest_model_tuned.json",
		},
		Log: LogConfig{
			Path:        "prediction_log.csv",
			SchemaDrift: string(decisionlog.DriftTolerate),
		},
		Features: FeaturesConfig{
			RiskInputs: string(feature.RiskInputsZero),
		},
		Report: ReportConfig{
			RecentLimit: 50,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// DefaultPath returns ~/.sessionwatch/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".sessionwatch", "config.yaml"), nil
}

// LoadConfigWithHash loads configuration and returns its SHA-256 hash.
// Empty path falls back to ~/.sessionwatch/config.yaml. A missing file
// returns defaults with the hash of empty input. YAML overwrites only the
// fields it specifies.
func LoadConfigWithHash(path string) (*Config, string, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return DefaultConfig(), emptyHash(), nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), emptyHash(), nil
		}
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, hash, nil
}

func emptyHash() string {
	h := sha256.Sum256(nil)
	return "sha256:" + hex.EncodeToString(h[:])
}

// Validate rejects values no component can act on.
func (c *Config) Validate() error {
	if c.Log.Path == "" {
		return fmt.Errorf("log.path is required")
	}
	if _, err := decisionlog.ParseDriftPolicy(c.Log.SchemaDrift); err != nil {
		return fmt.Errorf("log.schema_drift: %w", err)
	}
	if _, err := feature.ParseRiskInputPolicy(c.Features.RiskInputs); err != nil {
		return fmt.Errorf("features.risk_inputs: %w", err)
	}
	if c.Report.RecentLimit < 0 {
		return fmt.Errorf("report.recent_limit must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	for i, a := range c.Alerts {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("alerts[%d]: %w", i, err)
		}
	}
	return nil
}

// DriftPolicy returns the parsed log.schema_drift value.
func (c *Config) DriftPolicy() decisionlog.DriftPolicy {
	p, err := decisionlog.ParseDriftPolicy(c.Log.SchemaDrift)
	if err != nil {
		return decisionlog.DriftTolerate
	}
	return p
}

// RiskInputPolicy returns the parsed features.risk_inputs value.
func (c *Config) RiskInputPolicy() feature.RiskInputPolicy {
	p, err := feature.ParseRiskInputPolicy(c.Features.RiskInputs)
	if err != nil {
		return feature.RiskInputsZero
	}
	return p
}

// DefaultConfigYAML returns a commented configuration with default values.
func DefaultConfigYAML() string {
	return `# sessionwatch configuration
# Generated by: sessionwatch init

server:
  # HTTP listener for /predict, /report, /dashboard and /metrics.
  addr: "127.0.0.1:5000"
  # gRPC listener for grpc.health.v1.Health. Empty disables it.
  grpc_addr: "127.0.0.1:5001"
  # Plots referenced by /report, produced out-of-band.
  static_dir: static
  # Served by /download/summary; written by "sessionwatch report export".
  summary_path: prediction_summary_report.csv

model:
  # Fitted artifacts, loaded once at startup.
  scaler_path: scaler_tuned.json
  scorer_path: iso_forest_model_tuned.json

log:
  path: prediction_log.csv
  # What to do when a record's fields differ from the log header:
  #   tolerate: align by name, leave missing columns empty, drop unknown ones
  #   reject:   refuse to log the record
  #   migrate:  widen the header with the new columns (rewrites the log)
  # Reloaded without restart.
  schema_drift: tolerate

features:
  # Missing ip_reputation_score, failed_logins or unusual_time_access:
  #   zero:   treat as 0
  #   strict: reject the request with 400
  risk_inputs: zero

report:
  recent_limit: 50

logging:
  level: info
  # Empty logs to stderr. A file is rotated by size.
  file: ""
  max_size_mb: 100
  max_backups: 5
  max_age_days: 30
  compress: true

# Webhook alerts. Reloaded without restart.
# events: anomaly | log_write_failure | schema_drift
# format: generic | slack | pagerduty
alerts: []
#  - url: https://hooks.slack.com/services/XXX
#    format: slack
#    events: [anomaly, log_write_failure]
`
}
