package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("got %+v, want Default()", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
server:
  port: 9090
engine:
  max_concurrent: 250
  breaker:
    threshold: 10
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("got port %d, want 9090", cfg.Server.Port)
	}
	if cfg.Engine.MaxConcurrent != 250 {
		t.Fatalf("got max_concurrent %d, want 250", cfg.Engine.MaxConcurrent)
	}
	if cfg.Engine.Breaker.Threshold != 10 {
		t.Fatalf("got breaker threshold %d, want 10", cfg.Engine.Breaker.Threshold)
	}
	// Fields absent from the override file keep their Default() values.
	if cfg.Server.Host != "0.0.0.0" {
		t.Fatalf("got host %q, want default 0.0.0.0", cfg.Server.Host)
	}
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("EXECGW_TEST_PORT", "4242")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: ${EXECGW_TEST_PORT}\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 4242 {
		t.Fatalf("got port %d, want 4242", cfg.Server.Port)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestToBreakerAppliesDefaultsForZeroFields(t *testing.T) {
	b := BreakerConfig{}.ToBreaker()
	if b.Threshold != 5 || b.ResetTimeout != 30*time.Second || b.ProbeCount != 3 {
		t.Fatalf("unexpected defaults: %+v", b)
	}
}

func TestToBreakerHonorsOverrides(t *testing.T) {
	b := BreakerConfig{Threshold: 8, ResetTimeout: time.Minute, ProbeCount: 2}.ToBreaker()
	if b.Threshold != 8 || b.ResetTimeout != time.Minute || b.ProbeCount != 2 {
		t.Fatalf("unexpected overrides: %+v", b)
	}
}
