package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Transcribe.LongThreshold != 15*time.Minute {
		t.Errorf("LongThreshold = %s, want 15m", cfg.Transcribe.LongThreshold)
	}
	if cfg.Transcribe.ChunkLength != 10*time.Minute {
		t.Errorf("ChunkLength = %s, want 10m", cfg.Transcribe.ChunkLength)
	}
	if cfg.Transcribe.ChunkOverlap != 30*time.Second {
		t.Errorf("ChunkOverlap = %s, want 30s", cfg.Transcribe.ChunkOverlap)
	}
	if cfg.Batch.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", cfg.Batch.BatchSize)
	}
	if cfg.Batch.BatchDelay != 2*time.Second {
		t.Errorf("BatchDelay = %s, want 2s", cfg.Batch.BatchDelay)
	}
	if cfg.Taxonomy.Invalidation != "lazy" {
		t.Errorf("Invalidation = %q, want lazy", cfg.Taxonomy.Invalidation)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	content := `
batch:
  batch_size: 5
  batch_delay: 500ms
transcribe:
  long_threshold: 20m
gateway:
  model: some-other-model
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Batch.BatchSize != 5 {
		t.Errorf("BatchSize = %d, want 5", cfg.Batch.BatchSize)
	}
	if cfg.Batch.BatchDelay != 500*time.Millisecond {
		t.Errorf("BatchDelay = %s, want 500ms", cfg.Batch.BatchDelay)
	}
	if cfg.Transcribe.LongThreshold != 20*time.Minute {
		t.Errorf("LongThreshold = %s, want 20m", cfg.Transcribe.LongThreshold)
	}
	if cfg.Gateway.Model != "some-other-model" {
		t.Errorf("Model = %q", cfg.Gateway.Model)
	}
	// Untouched keys keep their defaults.
	if cfg.Transcribe.ChunkLength != 10*time.Minute {
		t.Errorf("ChunkLength = %s, want default 10m", cfg.Transcribe.ChunkLength)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Batch.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want default", cfg.Batch.BatchSize)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VV_BATCH_SIZE", "3")
	t.Setenv("VV_DRY_RUN", "true")
	t.Setenv("VV_MODEL", "env-model")
	t.Setenv("VV_BATCH_DELAY", "1.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Batch.BatchSize != 3 {
		t.Errorf("BatchSize = %d, want 3", cfg.Batch.BatchSize)
	}
	if !cfg.Batch.DryRun {
		t.Error("DryRun not applied from env")
	}
	if cfg.Gateway.Model != "env-model" {
		t.Errorf("Model = %q", cfg.Gateway.Model)
	}
	if cfg.Batch.BatchDelay != 1500*time.Millisecond {
		t.Errorf("BatchDelay = %s, want 1.5s (float seconds form)", cfg.Batch.BatchDelay)
	}
}

func TestEnvBatchDelayDurationForm(t *testing.T) {
	t.Setenv("VV_BATCH_DELAY", "750ms")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Batch.BatchDelay != 750*time.Millisecond {
		t.Errorf("BatchDelay = %s, want 750ms", cfg.Batch.BatchDelay)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		wantOK bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero batch size", func(c *Config) { c.Batch.BatchSize = 0 }, false},
		{"negative delay", func(c *Config) { c.Batch.BatchDelay = -time.Second }, false},
		{"negative max files", func(c *Config) { c.Batch.MaxFiles = -1 }, false},
		{"negative start from", func(c *Config) { c.Batch.StartFrom = -2 }, false},
		{"bad invalidation", func(c *Config) { c.Taxonomy.Invalidation = "sometimes" }, false},
		{"eager invalidation", func(c *Config) { c.Taxonomy.Invalidation = "eager" }, true},
		{"zero gateway attempts", func(c *Config) { c.Gateway.MaxAttempts = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantOK && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.wantOK && err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
