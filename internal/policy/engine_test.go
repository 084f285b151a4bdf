package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPolicy(t *testing.T) {
	ctx := context.Background()
	eng, err := NewEngine(ctx, "")
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	cases := []struct {
		name    string
		in      Input
		allowed bool
	}{
		{"select", Input{ToolName: "query_sqlite_db_tool", Args: map[string]any{"query": "SELECT COUNT(*) FROM Employee"}}, true},
		{"with", Input{ToolName: "query_sqlite_db_tool", Args: map[string]any{"query": "with t as (select 1) select * from t"}}, true},
		{"delete", Input{ToolName: "query_sqlite_db_tool", Args: map[string]any{"query": "  delete FROM Employee"}}, false},
		{"drop", Input{ToolName: "query_sqlite_db_tool", Args: map[string]any{"query": "DROP TABLE Track"}}, false},
		{"column named updated", Input{ToolName: "query_sqlite_db_tool", Args: map[string]any{"query": "SELECT updated FROM t"}}, true},
		{"repl", Input{ToolName: "python_repl", Args: map[string]any{"query": "print(1)"}}, true},
		{"unknown", Input{ToolName: "shell", Args: map[string]any{}}, false},
	}
	for _, c := range cases {
		d, err := eng.Evaluate(ctx, c.in)
		if err != nil {
			t.Fatalf("%s: Evaluate: %v", c.name, err)
		}
		if d.Allowed() != c.allowed {
			t.Fatalf("%s: expected allowed=%v, got %+v", c.name, c.allowed, d)
		}
		if !c.allowed && d.Reason == "" {
			t.Fatalf("%s: blocked without reason", c.name)
		}
	}
}

func TestLoadEngineFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.rego")
	module := `
package tool_policy

default decision = "allow"

decision = "block" {
	input.pipeline == "visualisation_python"
}
`
	if err := os.WriteFile(path, []byte(module), 0o644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	eng, err := LoadEngine(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadEngine: %v", err)
	}
	d, err := eng.Evaluate(context.Background(), Input{ToolName: "python_repl", Pipeline: "visualisation_python"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Allowed() {
		t.Fatalf("expected block from custom policy")
	}
}

func TestNewEngineRejectsBadModule(t *testing.T) {
	if _, err := NewEngine(context.Background(), "package tool_policy\n decision = {"); err == nil {
		t.Fatalf("expected parse error")
	}
}
