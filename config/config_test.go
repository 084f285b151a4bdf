package config

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDefaultConfigWithRootIsValid(t *testing.T) {
	cfg := DefaultConfigWithRoot(t.TempDir())
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.MaxRows != 10 || cfg.MaxIterations != 5 {
		t.Fatalf("unexpected limits: rows=%d iterations=%d", cfg.MaxRows, cfg.MaxIterations)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"driver":     func(c *Config) { c.DBDriver = "oracle" },
		"dsn":        func(c *Config) { c.DBDriver = "mysql"; c.DBDSN = "" },
		"path":       func(c *Config) { c.DBPath = " " },
		"provider":   func(c *Config) { c.LLMProvider = "llama" },
		"rows":       func(c *Config) { c.MaxRows = 0 },
		"iterations": func(c *Config) { c.MaxIterations = -1 },
		"timeout":    func(c *Config) { c.SandboxTimeout = Duration(-time.Second) },
	}
	for name, mutate := range cases {
		cfg := DefaultConfigWithRoot(t.TempDir())
		mutate(cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DB_PATH", "/tmp/x.db")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("MAX_ITERATIONS", "3")
	t.Setenv("SANDBOX_TIMEOUT", "2s")
	t.Setenv("ARCHIVE_ENABLED", "true")
	t.Setenv("MAX_ROWS", "not-a-number")

	cfg := DefaultConfigWithRoot(t.TempDir())
	cfg.loadFromEnv()

	if cfg.DBPath != "/tmp/x.db" || cfg.OpenAIModel != "gpt-4o" {
		t.Fatalf("string overrides not applied: %+v", cfg)
	}
	if cfg.MaxIterations != 3 || cfg.SandboxTimeout.Std() != 2*time.Second || !cfg.ArchiveEnabled {
		t.Fatalf("typed overrides not applied: %+v", cfg)
	}
	if cfg.MaxRows != 10 {
		t.Fatalf("unparseable override should be ignored, got %d", cfg.MaxRows)
	}
}

func TestDurationJSON(t *testing.T) {
	var d Duration
	if err := json.Unmarshal([]byte(`"1m30s"`), &d); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if d.Std() != 90*time.Second {
		t.Fatalf("expected 90s, got %s", d)
	}
	if err := json.Unmarshal([]byte(`1000000000`), &d); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if d.Std() != time.Second {
		t.Fatalf("expected 1s, got %s", d)
	}
	out, _ := json.Marshal(Duration(5 * time.Second))
	if string(out) != `"5s"` {
		t.Fatalf("expected \"5s\", got %s", out)
	}
	if err := json.Unmarshal([]byte(`"soon"`), &d); err == nil {
		t.Fatalf("expected error for bad duration")
	}
}
