package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigAppliesDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
file:
  dir: /tmp/frames
shard:
  shard_count: 8
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.Shard.ShardCount != 8 {
		t.Errorf("expected overridden shard_count=8, got %d", cfg.Shard.ShardCount)
	}
	if cfg.Shard.TimestampSlop != 100 {
		t.Errorf("expected default timestamp_slop=100 to survive, got %d", cfg.Shard.TimestampSlop)
	}
	if cfg.File.MaxFileSize != 1<<31 {
		t.Errorf("expected default max_file_size, got %d", cfg.File.MaxFileSize)
	}
	if !cfg.File.Enabled() {
		t.Error("expected file sink to be enabled")
	}
	if cfg.Ring.Enabled() {
		t.Error("expected ring sink to be disabled when path is unset")
	}
}

func TestValidateRejectsNoSink(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error when neither ring nor file sink is configured")
	}
}

func TestValidateRejectsBadShardCount(t *testing.T) {
	cfg := Default()
	cfg.File.Dir = "/tmp/frames"
	cfg.Shard.ShardCount = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for shard_count=0")
	}
	cfg.Shard.ShardCount = 33
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for shard_count=33")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error loading a nonexistent config file")
	}
}
