package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

var ErrUnknownTool = errors.New("unknown tool")

// Registry stores invokable tools keyed by tool name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]tool.InvokableTool
	infos map[string]*schema.ToolInfo
}

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]tool.InvokableTool),
		infos: make(map[string]*schema.ToolInfo),
	}
}

// Register adds a tool under the name reported by its Info.
func (r *Registry) Register(ctx context.Context, t tool.InvokableTool) error {
	if t == nil {
		return fmt.Errorf("tool is required")
	}
	info, err := t.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to get tool info: %w", err)
	}
	if info.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[info.Name]; exists {
		return fmt.Errorf("tool already registered for %s", info.Name)
	}
	r.tools[info.Name] = t
	r.infos[info.Name] = info
	return nil
}

// MustRegister registers each tool or panics.
func (r *Registry) MustRegister(ctx context.Context, ts ...tool.InvokableTool) *Registry {
	for _, t := range ts {
		if err := r.Register(ctx, t); err != nil {
			panic(err)
		}
	}
	return r
}

// Invoke runs the named tool with JSON-encoded arguments.
func (r *Registry) Invoke(ctx context.Context, name, args string) (string, error) {
	r.mu.RLock()
	t := r.tools[name]
	r.mu.RUnlock()
	if t == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t.InvokableRun(ctx, args)
}

// Scope lets every stateful tool open a session on ctx. Calls made with the
// returned ctx share those sessions.
func (r *Registry) Scope(ctx context.Context) context.Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tools {
		if s, ok := t.(Scoper); ok {
			ctx = s.Scope(ctx)
		}
	}
	return ctx
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Infos returns tool descriptions sorted by name, ready to bind to a model.
func (r *Registry) Infos() []*schema.ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*schema.ToolInfo, 0, len(r.infos))
	for _, info := range r.infos {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) Names() []string {
	infos := r.Infos()
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}
