// Package config loads service configuration from an optional YAML file
// with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Patents PatentsConfig `yaml:"patents"`
	Extract ExtractConfig `yaml:"extract"`
	Gemini  GeminiConfig  `yaml:"gemini"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Port string `yaml:"port"`
}

// PatentsConfig configures the compressed patent document store.
type PatentsConfig struct {
	// StoreDir is the depth-1 directory of *.xml.gz patent documents.
	StoreDir string `yaml:"store_dir"`
	// MirrorBucket, when set, is a GCS bucket whose compressed patents
	// are mirrored into StoreDir at startup.
	MirrorBucket string `yaml:"mirror_bucket"`
	// MirrorPrefix restricts the mirror to objects under this prefix.
	MirrorPrefix string `yaml:"mirror_prefix"`
}

// ExtractConfig configures the extraction orchestrator.
type ExtractConfig struct {
	// Workers is the bounded fragment worker pool width.
	Workers int `yaml:"workers"`
	// MatchLimit caps how many matching documents one extraction scans.
	MatchLimit int `yaml:"match_limit"`
	// MaxTablesPerDoc caps how many tables of a single document are
	// scheduled for processing.
	MaxTablesPerDoc int `yaml:"max_tables_per_doc"`
	// NullToken is the reserved CSV token marking a missing value.
	NullToken string `yaml:"null_token"`
	// Retention is how long finished or abandoned tasks stay pollable.
	Retention time.Duration `yaml:"retention"`
}

// GeminiConfig selects the models behind the transcription and
// relevance capabilities.
type GeminiConfig struct {
	TranscribeModel string `yaml:"transcribe_model"`
	RelevanceModel  string `yaml:"relevance_model"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: "8080"},
		Patents: PatentsConfig{
			StoreDir: "./patents",
		},
		Extract: ExtractConfig{
			Workers:         8,
			MatchLimit:      3,
			MaxTablesPerDoc: 20,
			NullToken:       "NA",
			Retention:       5 * time.Minute,
		},
		Gemini: GeminiConfig{
			TranscribeModel: "gemini-2.0-flash",
			RelevanceModel:  "gemini-2.0-flash",
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty or the
// file does not exist) on top of the defaults, then applies environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Run on defaults + env.
		case err != nil:
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("PATENT_STORE_DIR"); v != "" {
		cfg.Patents.StoreDir = v
	}
	if v := os.Getenv("PATENT_MIRROR_BUCKET"); v != "" {
		cfg.Patents.MirrorBucket = v
	}
	if v := os.Getenv("PATENT_MIRROR_PREFIX"); v != "" {
		cfg.Patents.MirrorPrefix = v
	}
	if v := os.Getenv("EXTRACT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Extract.Workers = n
		}
	}
	if v := os.Getenv("EXTRACT_MATCH_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Extract.MatchLimit = n
		}
	}
	if v := os.Getenv("EXTRACT_MAX_TABLES_PER_DOC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Extract.MaxTablesPerDoc = n
		}
	}
	if v := os.Getenv("EXTRACT_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Extract.Retention = d
		}
	}
	if v := os.Getenv("GEMINI_TRANSCRIBE_MODEL"); v != "" {
		cfg.Gemini.TranscribeModel = v
	}
	if v := os.Getenv("GEMINI_RELEVANCE_MODEL"); v != "" {
		cfg.Gemini.RelevanceModel = v
	}
}

func (c Config) validate() error {
	if c.Patents.StoreDir == "" {
		return fmt.Errorf("config: patents.store_dir must not be empty")
	}
	if c.Extract.Workers <= 0 {
		return fmt.Errorf("config: extract.workers must be positive, got %d", c.Extract.Workers)
	}
	if c.Extract.MaxTablesPerDoc <= 0 {
		return fmt.Errorf("config: extract.max_tables_per_doc must be positive, got %d", c.Extract.MaxTablesPerDoc)
	}
	if c.Extract.NullToken == "" {
		return fmt.Errorf("config: extract.null_token must not be empty")
	}
	if c.Extract.Retention <= 0 {
		return fmt.Errorf("config: extract.retention must be positive, got %s", c.Extract.Retention)
	}
	return nil
}
