package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dyike/chat2vis/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != "chat2vis "+Version {
		t.Errorf("output = %q", out)
	}
}

func TestConfigPathCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.json")
	out, err := execute(t, "--config", path, "config", "path")
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if strings.TrimSpace(out) != path {
		t.Errorf("path = %q, want %q", out, path)
	}
}

func TestConfigShowMasksKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-abcdefghijklmnop")
	path := filepath.Join(t.TempDir(), "config.json")
	out, err := execute(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	var shown map[string]any
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if shown["openai_api_key"] != "sk-a****mnop" {
		t.Errorf("openai_api_key = %v", shown["openai_api_key"])
	}
}

func TestConfigSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if _, err := execute(t, "--config", path, "config", "set", "max_rows", "20"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	if _, err := execute(t, "--config", path, "config", "set", "--json", `{"openai_model": "gpt-4o", "max_iterations": 8}`); err != nil {
		t.Fatalf("config set --json: %v", err)
	}

	mgr, err := config.NewManager(config.WithConfigPath(path))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	cfg := mgr.Get()
	if cfg.MaxRows != 20 || cfg.OpenAIModel != "gpt-4o" || cfg.MaxIterations != 8 {
		t.Errorf("config = %+v", cfg)
	}

	if _, err := execute(t, "--config", path, "config", "set", "max_rows", "-1"); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("invalid value err = %v", err)
	}
	if _, err := execute(t, "--config", path, "config", "set", "max_rows"); err == nil {
		t.Error("config set with a key but no value succeeded")
	}
}

func TestReloadNotifier(t *testing.T) {
	var out bytes.Buffer
	notify := reloadNotifier(&out)
	notify("engine.reloaded", `{"version": 3, "built_at": "2026-01-01T00:00:00Z"}`)
	notify("engine.reload_failed", `{"error": "OPENAI_API_KEY is required"}`)
	notify("something.else", `{}`)

	got := out.String()
	if !strings.Contains(got, "Engine v3 ready") {
		t.Errorf("reload not reported:\n%s", got)
	}
	if !strings.Contains(got, "keeping the running engine: OPENAI_API_KEY is required") {
		t.Errorf("failure not reported:\n%s", got)
	}
	if strings.Count(got, "\n") != 2 {
		t.Errorf("unexpected lines:\n%s", got)
	}
}

func TestSessionsListEmptyArchive(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ARCHIVE_ENABLED", "true")
	out, err := execute(t, "--config", filepath.Join(dir, "config.json"), "sessions", "list")
	if err != nil {
		t.Fatalf("sessions list: %v", err)
	}
	if !strings.Contains(out, "No archived sessions.") {
		t.Errorf("output = %q", out)
	}
}

func TestMask(t *testing.T) {
	cases := map[string]string{
		"":                    "",
		"short":               "****",
		"sk-abcdefghijklmnop": "sk-a****mnop",
	}
	for in, want := range cases {
		if got := mask(in); got != want {
			t.Errorf("mask(%q) = %q, want %q", in, got, want)
		}
	}
}
