package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.starlark.net/starlark"
)

type replKey struct{}

// REPL is one interactive session. Globals bound by one Exec are visible to
// the next.
type REPL struct {
	r       *Runner
	mu      sync.Mutex
	globals starlark.StringDict
}

func (r *Runner) NewREPL() *REPL {
	return &REPL{r: r, globals: starlark.StringDict{}}
}

// Scope returns a ctx carrying a fresh REPL. Exec calls made with it share
// that session.
func (r *Runner) Scope(ctx context.Context) context.Context {
	return context.WithValue(ctx, replKey{}, r.NewREPL())
}

// Exec runs a snippet and returns what it printed. Errors are returned as
// text so a model can read and react to them. Without a scope each call
// starts from an empty session.
func (r *Runner) Exec(ctx context.Context, code string) string {
	if p, ok := ctx.Value(replKey{}).(*REPL); ok && p.r == r {
		return p.Exec(ctx, code)
	}
	return r.NewREPL().Exec(ctx, code)
}

func (p *REPL) Exec(ctx context.Context, code string) (output string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer func() {
		if rec := recover(); rec != nil {
			output = fmt.Sprintf("panic: %v", rec)
		}
	}()

	var out strings.Builder
	session := p.r.newSession(&out)
	env := make(starlark.StringDict, len(session.predeclared)+len(p.globals))
	for k, v := range session.predeclared {
		env[k] = v
	}
	for k, v := range p.globals {
		env[k] = v
	}

	err := p.r.withLimits(ctx, session.thread, func() error {
		_, prog, err := starlark.SourceProgramOptions(fileOptions, "repl.py", stripImports(code), env.Has)
		if err != nil {
			return err
		}
		globals, err := prog.Init(session.thread, env)
		for k, v := range globals {
			p.globals[k] = v
		}
		return err
	})
	if err != nil {
		if out.Len() > 0 {
			return out.String() + describe(err)
		}
		return describe(err)
	}
	return out.String()
}
