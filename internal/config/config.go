// Package config loads and holds the anonymizer configuration.
// Settings come from built-in defaults, then an optional YAML file
// (placeholder-config.yaml), then environment variables. Command-line
// flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no config file is named explicitly. It is
// optional.
const DefaultFile = "placeholder-config.yaml"

// Config holds the full anonymizer configuration.
type Config struct {
	MappingFile string   `yaml:"mappingFile"`
	Language    string   `yaml:"language"`
	Detectors   []string `yaml:"detectors"`
	Entities    []string `yaml:"entities"`

	PresidioEndpoint       string  `yaml:"presidioEndpoint"`
	PresidioScoreThreshold float64 `yaml:"presidioScoreThreshold"`

	OllamaEndpoint string  `yaml:"ollamaEndpoint"`
	OllamaModel    string  `yaml:"ollamaModel"`
	AIConfidence   float64 `yaml:"aiConfidenceThreshold"`

	DetectorTimeout time.Duration `yaml:"detectorTimeout"`
	LogLevel        string        `yaml:"logLevel"`
}

// Load returns config with defaults overridden by the YAML file at path
// and by env vars. An empty path reads DefaultFile if it exists; a path
// given explicitly must exist.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if err := loadFile(cfg, path); err != nil {
		return nil, err
	}
	if err := loadEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		MappingFile:            "~/.cache/presidio_mapping.json",
		Language:               "en",
		Detectors:              []string{"regex"},
		PresidioEndpoint:       "http://localhost:5002",
		PresidioScoreThreshold: 0.35,
		OllamaEndpoint:         "http://localhost:11434",
		OllamaModel:            "qwen2.5:3b",
		AIConfidence:           0.7,
		DetectorTimeout:        30 * time.Second,
		LogLevel:               "warn",
	}
}

func loadFile(cfg *Config, path string) error {
	optional := path == ""
	if optional {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func loadEnv(cfg *Config) error {
	if v := os.Getenv("ENTITY_MAPPING_FILE"); v != "" {
		cfg.MappingFile = v
	}
	if v := os.Getenv("ANONYMIZER_LANGUAGE"); v != "" {
		cfg.Language = v
	}
	if v := os.Getenv("ANONYMIZER_DETECTORS"); v != "" {
		cfg.Detectors = SplitList(v)
	}
	if v := os.Getenv("ANONYMIZER_ENTITIES"); v != "" {
		cfg.Entities = SplitList(v)
	}
	if v := os.Getenv("PRESIDIO_ENDPOINT"); v != "" {
		cfg.PresidioEndpoint = v
	}
	if v := os.Getenv("PRESIDIO_SCORE_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("PRESIDIO_SCORE_THRESHOLD: %w", err)
		}
		cfg.PresidioScoreThreshold = f
	}
	if v := os.Getenv("OLLAMA_ENDPOINT"); v != "" {
		cfg.OllamaEndpoint = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		cfg.OllamaModel = v
	}
	if v := os.Getenv("AI_CONFIDENCE_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("AI_CONFIDENCE_THRESHOLD: %w", err)
		}
		cfg.AIConfidence = f
	}
	if v := os.Getenv("DETECTOR_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DETECTOR_TIMEOUT: %w", err)
		}
		cfg.DetectorTimeout = d
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
