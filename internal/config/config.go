// Package config loads finscan.yaml and its environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/finscan/internal/model"
	"github.com/cleared-dev/finscan/internal/recurring"
)

// FileName is the config file created by `finscan init`.
const FileName = "finscan.yaml"

// Environment variables that override the file.
const (
	EnvDB           = "FINSCAN_DB"
	EnvLogLevel     = "FINSCAN_LOG_LEVEL"
	EnvStoreTimeout = "FINSCAN_STORE_TIMEOUT"
	EnvImportDir    = "FINSCAN_IMPORT_DIR"
)

// Config represents the top-level finscan.yaml configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Import    ImportConfig    `yaml:"import"`
	Recurring RecurringConfig `yaml:"recurring"`
	Log       LogConfig       `yaml:"log"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path        string        `yaml:"path" validate:"required"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
	MaxRetries  uint64        `yaml:"max_retries"`
}

// ImportConfig controls CSV ingestion.
type ImportConfig struct {
	Dir               string        `yaml:"dir"`
	StoreTimeout      time.Duration `yaml:"store_timeout" validate:"gte=0"`
	Categorize        bool          `yaml:"categorize"`
	RulesFile         string        `yaml:"rules_file,omitempty"`
	DetectAfterImport bool          `yaml:"detect_after_import"`
}

// RecurringConfig tunes recurrence detection.
type RecurringConfig struct {
	MinOccurrences int              `yaml:"min_occurrences" validate:"gte=2"`
	MinConfidence  float64          `yaml:"min_confidence" validate:"gte=0,lte=1"`
	Concurrency    int              `yaml:"concurrency" validate:"gte=1"`
	Schedule       string           `yaml:"schedule"`
	Bands          []recurring.Band `yaml:"bands,omitempty"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads a finscan.yaml file from disk. Missing keys keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new project.
func Default() *Config {
	det := recurring.DefaultConfig()
	return &Config{
		Database: DatabaseConfig{
			Path:        "finscan.db",
			BusyTimeout: 5 * time.Second,
			MaxRetries:  5,
		},
		Import: ImportConfig{
			Dir:               "import",
			StoreTimeout:      10 * time.Second,
			Categorize:        true,
			DetectAfterImport: true,
		},
		Recurring: RecurringConfig{
			MinOccurrences: det.MinOccurrences,
			MinConfidence:  det.MinConfidence,
			Concurrency:    det.Concurrency,
			Schedule:       "@daily",
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadProject reads <root>/finscan.yaml (defaults when absent), then the
// optional <root>/.env, then the process environment. Relative paths are
// resolved against root.
func LoadProject(root string) (*Config, error) {
	cfg, err := Load(filepath.Join(root, FileName))
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}

	envFile := filepath.Join(root, ".env")
	if _, statErr := os.Stat(envFile); statErr == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %w", errs)
	}
	cfg.resolve(root)
	return cfg, nil
}

// ApplyEnv overlays environment overrides onto cfg.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvDB); ok && v != "" {
		cfg.Database.Path = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Log.Level = v
	}
	if v, ok := lookup(EnvImportDir); ok && v != "" {
		cfg.Import.Dir = v
	}
	if v, ok := lookup(EnvStoreTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			secs, aerr := strconv.Atoi(v)
			if aerr != nil {
				return fmt.Errorf("invalid %s %q: %w", EnvStoreTimeout, v, err)
			}
			d = time.Duration(secs) * time.Second
		}
		cfg.Import.StoreTimeout = d
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() model.ValidationErrors {
	return model.ValidateStruct(c)
}

// DetectorConfig converts the recurring section for the detector.
func (c *Config) DetectorConfig() recurring.Config {
	return recurring.Config{
		MinOccurrences: c.Recurring.MinOccurrences,
		MinConfidence:  c.Recurring.MinConfidence,
		Bands:          c.Recurring.Bands,
		Concurrency:    c.Recurring.Concurrency,
		StoreTimeout:   c.Import.StoreTimeout,
	}
}

func (c *Config) resolve(root string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(root, p)
	}
	c.Database.Path = abs(c.Database.Path)
	c.Import.Dir = abs(c.Import.Dir)
	c.Import.RulesFile = abs(c.Import.RulesFile)
}
