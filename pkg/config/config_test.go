// Copyright 2026 miludeerforest

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "studio.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
api:
  port: 9090
  host: 127.0.0.1
remote:
  base_url: http://upstream:9100
  rps: 5
  max_concurrent: 4
batch:
  max_concurrency: 3
poll:
  default_interval: 4s
  degraded_threshold: 5
results:
  type: memory
cache:
  type: memory
log:
  level: debug
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Port != 9090 {
		t.Fatalf("api.port = %d", cfg.API.Port)
	}
	if cfg.Remote.BaseURL != "http://upstream:9100" {
		t.Fatalf("remote.base_url = %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.RPS != 5 {
		t.Fatalf("remote.rps = %v", cfg.Remote.RPS)
	}
	if cfg.Batch.MaxConcurrency != 3 {
		t.Fatalf("batch.max_concurrency = %d", cfg.Batch.MaxConcurrency)
	}
	if cfg.Poll.DefaultInterval != "4s" || cfg.Poll.DegradedThreshold != 5 {
		t.Fatalf("poll = %+v", cfg.Poll)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log.level = %q", cfg.Log.Level)
	}
}

func TestLoadConfigEnvReplacement(t *testing.T) {
	t.Setenv("ABP_TEST_REMOTE_KEY", "key-from-env")
	path := writeConfig(t, `
remote:
  api_key: ${ABP_TEST_REMOTE_KEY}
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Remote.APIKey != "key-from-env" {
		t.Fatalf("remote.api_key = %q, want env value", cfg.Remote.APIKey)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadConfig on missing file should fail")
	}
}
