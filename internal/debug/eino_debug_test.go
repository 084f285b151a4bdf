package debug

import (
	"context"
	"testing"

	"github.com/dyike/chat2vis/config"
)

func TestDisabledDebugger(t *testing.T) {
	d := NewEinoDebugger(config.DefaultConfigWithRoot(t.TempDir()))
	if d.IsEnabled() {
		t.Fatal("debugger enabled by default")
	}
	if err := d.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if url := d.GetDebugURL(); url != "" {
		t.Errorf("GetDebugURL = %q", url)
	}
}

func TestDebugURL(t *testing.T) {
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	cfg.EinoDebugEnabled = true
	cfg.EinoDebugPort = 52538
	if got := NewEinoDebugger(cfg).GetDebugURL(); got != "http://localhost:52538" {
		t.Errorf("GetDebugURL = %q", got)
	}
}
