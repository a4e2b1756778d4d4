// Package config loads pipeline configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/voicevault/voicevault/internal/logging"
)

type Config struct {
	Queue      QueueConfig      `yaml:"queue"`
	Batch      BatchConfig      `yaml:"batch"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Cache      CacheConfig      `yaml:"cache"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Taxonomy   TaxonomyConfig   `yaml:"taxonomy"`
	Publish    PublishConfig    `yaml:"publish"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    logging.Config   `yaml:"logging"`
}

// QueueConfig describes where artifacts are discovered.
type QueueConfig struct {
	Folder     string   `yaml:"folder"`
	SingleFile string   `yaml:"single_file"` // when set, overrides Folder
	Formats    []string `yaml:"formats"`     // supported audio extensions
}

// BatchConfig carries the windowing and throttle controls.
type BatchConfig struct {
	BatchSize  int           `yaml:"batch_size"`  // files per sub-group, >= 1
	BatchDelay time.Duration `yaml:"batch_delay"` // pause between sub-groups
	MaxFiles   int           `yaml:"max_files"`   // 0 = unbounded
	StartFrom  int           `yaml:"start_from"`  // skip N ordered artifacts
	DryRun     bool          `yaml:"dry_run"`
}

type LedgerConfig struct {
	Path string `yaml:"path"`
}

type CacheConfig struct {
	// Bucket is a gocloud blob URL, e.g. "file:///var/voicevault/cache" or
	// "mem://" for ephemeral runs.
	Bucket string `yaml:"bucket"`
	Clear  bool   `yaml:"clear"` // empty the cache before the run
}

type GatewayConfig struct {
	Provider       string        `yaml:"provider"` // "anthropic" | "openai" | "ollama"
	Model          string        `yaml:"model"`
	APIKey         string        `yaml:"api_key"`
	OllamaHost     string        `yaml:"ollama_host"`
	CallInterval   time.Duration `yaml:"call_interval"` // min spacing between network calls
	Burst          int           `yaml:"burst"`
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	CostPerCallUSD float64       `yaml:"cost_per_call_usd"`
}

type TranscribeConfig struct {
	LongThreshold time.Duration `yaml:"long_threshold"` // routes to the long engine at or above
	ChunkLength   time.Duration `yaml:"chunk_length"`
	ChunkOverlap  time.Duration `yaml:"chunk_overlap"`
	ChunkRetries  int           `yaml:"chunk_retries"`
	ShortURL      string        `yaml:"short_url"`
	LongURL       string        `yaml:"long_url"`
	CallTimeout   time.Duration `yaml:"call_timeout"`
}

type TaxonomyConfig struct {
	Path     string `yaml:"path"`      // taxonomy artifact location
	TagsPath string `yaml:"tags_path"` // historical tag corpus the builder reads
	// Invalidation controls what happens to stored classifications after a
	// taxonomy rebuild: "lazy" recomputes on next touch, "eager" recomputes
	// all stale stored results up front.
	Invalidation string `yaml:"invalidation"`
	Rebuild      bool   `yaml:"rebuild"` // force a builder run before scheduling
}

type PublishConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	Token       string        `yaml:"token"`
	ResultsURL  string        `yaml:"results_url"` // blob URL for the results store
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // e.g. ":9090"
}

// Default returns the baseline configuration before file/env overrides.
func Default() Config {
	return Config{
		Queue: QueueConfig{
			Folder:  "audio_files",
			Formats: []string{".m4a", ".mp3", ".wav", ".aac", ".flac", ".ogg"},
		},
		Batch: BatchConfig{
			BatchSize:  10,
			BatchDelay: 2 * time.Second,
		},
		Ledger: LedgerConfig{Path: "data/ledger.jsonl"},
		Cache:  CacheConfig{Bucket: "file://data/cache"},
		Gateway: GatewayConfig{
			Provider:       "anthropic",
			Model:          "claude-3-5-sonnet-20241022",
			CallInterval:   time.Second,
			Burst:          1,
			MaxAttempts:    4,
			BaseDelay:      time.Second,
			CallTimeout:    60 * time.Second,
			CostPerCallUSD: 0.015,
		},
		Transcribe: TranscribeConfig{
			LongThreshold: 15 * time.Minute,
			ChunkLength:   10 * time.Minute,
			ChunkOverlap:  30 * time.Second,
			ChunkRetries:  3,
			CallTimeout:   120 * time.Second,
		},
		Taxonomy: TaxonomyConfig{
			Path:         "data/taxonomy.json",
			TagsPath:     "data/tags.json",
			Invalidation: "lazy",
		},
		Publish: PublishConfig{
			ResultsURL:  "file://data/results",
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			CallTimeout: 30 * time.Second,
		},
		Logging: logging.Config{Format: "text", Level: "info"},
	}
}

// Load reads the config file (when present), applies environment overrides,
// and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// MustLoad is Load with a fatal exit on error.
func MustLoad(path string) Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("[config] %v", err)
	}
	return cfg
}

// Validate checks the batch window controls and required knobs.
func (c Config) Validate() error {
	if c.Batch.BatchSize < 1 {
		return fmt.Errorf("batch_size must be >= 1, got %d", c.Batch.BatchSize)
	}
	if c.Batch.BatchDelay < 0 {
		return fmt.Errorf("batch_delay must be >= 0, got %s", c.Batch.BatchDelay)
	}
	if c.Batch.MaxFiles < 0 {
		return fmt.Errorf("max_files must be >= 0, got %d", c.Batch.MaxFiles)
	}
	if c.Batch.StartFrom < 0 {
		return fmt.Errorf("start_from must be >= 0, got %d", c.Batch.StartFrom)
	}
	switch c.Taxonomy.Invalidation {
	case "", "lazy", "eager":
	default:
		return fmt.Errorf("taxonomy invalidation must be lazy or eager, got %q", c.Taxonomy.Invalidation)
	}
	if c.Gateway.MaxAttempts < 1 {
		return fmt.Errorf("gateway max_attempts must be >= 1, got %d", c.Gateway.MaxAttempts)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Queue.Folder = getenvDefault("VV_AUDIO_FOLDER", cfg.Queue.Folder)
	cfg.Queue.SingleFile = getenvDefault("VV_SINGLE_FILE", cfg.Queue.SingleFile)
	cfg.Ledger.Path = getenvDefault("VV_LEDGER_PATH", cfg.Ledger.Path)
	cfg.Cache.Bucket = getenvDefault("VV_CACHE_BUCKET", cfg.Cache.Bucket)
	cfg.Gateway.APIKey = getenvDefault("ANTHROPIC_API_KEY", cfg.Gateway.APIKey)
	cfg.Gateway.Model = getenvDefault("VV_MODEL", cfg.Gateway.Model)
	cfg.Publish.Endpoint = getenvDefault("VV_PUBLISH_ENDPOINT", cfg.Publish.Endpoint)
	cfg.Publish.Token = getenvDefault("VV_PUBLISH_TOKEN", cfg.Publish.Token)

	cfg.Batch.BatchSize = getenvInt("VV_BATCH_SIZE", cfg.Batch.BatchSize)
	cfg.Batch.MaxFiles = getenvInt("VV_MAX_FILES", cfg.Batch.MaxFiles)
	cfg.Batch.StartFrom = getenvInt("VV_START_FROM", cfg.Batch.StartFrom)
	cfg.Batch.DryRun = getenvBool("VV_DRY_RUN", cfg.Batch.DryRun)
	cfg.Cache.Clear = getenvBool("VV_CLEAR_CACHE", cfg.Cache.Clear)
	cfg.Taxonomy.Rebuild = getenvBool("VV_REBUILD_TAXONOMY", cfg.Taxonomy.Rebuild)

	if v := os.Getenv("VV_BATCH_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Batch.BatchDelay = d
		} else if secs, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Batch.BatchDelay = time.Duration(secs * float64(time.Second))
		}
	}
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	switch os.Getenv(key) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return def
}
