package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "stridecoach" {
		t.Errorf("expected Name=stridecoach, got %s", cfg.Name)
	}
	if cfg.Tools.CallTimeoutSec != 30 {
		t.Errorf("expected tool_call_timeout_seconds=30, got %d", cfg.Tools.CallTimeoutSec)
	}
	if cfg.Deadlines.TurnSec != 60 {
		t.Errorf("expected turn_deadline_seconds=60, got %d", cfg.Deadlines.TurnSec)
	}
	if cfg.Deadlines.PlanSec != 120 {
		t.Errorf("expected plan_deadline_seconds=120, got %d", cfg.Deadlines.PlanSec)
	}
	if cfg.Sync.RecentUserWindowHours != 2 {
		t.Errorf("expected sync_recent_user_window_hours=2, got %d", cfg.Sync.RecentUserWindowHours)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("STRIDE_DATA_TOOL_URL", "")
	t.Setenv("STRIDE_PROMPT_TOOL_URL", "")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.Tools.DataEndpoint = "http://localhost:8080"
	cfg.Tools.PromptEndpoint = "http://localhost:8081"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Tools.DataEndpoint != "http://localhost:8080" {
		t.Errorf("expected data endpoint preserved, got %s", loaded.Tools.DataEndpoint)
	}
	if loaded.Tools.PromptEndpoint != "http://localhost:8081" {
		t.Errorf("expected prompt endpoint preserved, got %s", loaded.Tools.PromptEndpoint)
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("STRIDE_DATA_TOOL_URL", "http://env-data:9000")
	t.Setenv("STRIDE_PROMPT_TOOL_URL", "http://env-prompt:9001")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Tools.DataEndpoint != "http://env-data:9000" {
		t.Errorf("env override not applied: %s", cfg.Tools.DataEndpoint)
	}
	if cfg.Tools.PromptEndpoint != "http://env-prompt:9001" {
		t.Errorf("env override not applied: %s", cfg.Tools.PromptEndpoint)
	}
}

func TestConfig_ValidateFailClosed(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to fail with no endpoints configured")
	}

	cfg.Tools.DataEndpoint = "http://localhost:8080"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to fail with prompt endpoint missing")
	}

	cfg.Tools.PromptEndpoint = "http://localhost:8081"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected Validate to pass, got %v", err)
	}
}
