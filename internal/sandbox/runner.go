// Package sandbox runs model-generated chart code in a restricted Starlark
// interpreter. Only the names bound in predeclared are visible to the code;
// there is no filesystem, network or process access.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/dyike/chat2vis/config"
	"github.com/dyike/chat2vis/internal/chart"
	"github.com/dyike/chat2vis/internal/database"
)

const entrypoint = "visualise"

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

type Runner struct {
	db       database.Querier
	timeout  time.Duration
	maxSteps uint64
	debug    bool
}

type Option func(*Runner)

func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithMaxSteps(n uint64) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxSteps = n
		}
	}
}

func WithDebug(debug bool) Option {
	return func(r *Runner) {
		r.debug = debug
	}
}

func NewRunner(db database.Querier, opts ...Option) *Runner {
	r := &Runner{
		db:       db,
		timeout:  10 * time.Second,
		maxSteps: 5_000_000,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func NewRunnerFromConfig(db database.Querier, cfg *config.Config) *Runner {
	return NewRunner(db,
		WithTimeout(cfg.SandboxTimeout.Std()),
		WithMaxSteps(cfg.SandboxMaxSteps),
		WithDebug(cfg.Debug),
	)
}

// Run executes code, calls its visualise function and returns the figure it
// built. Every failure is logged and reported as nil.
func (r *Runner) Run(ctx context.Context, code string) (fig *chart.Figure) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[Sandbox] panic: %v", rec)
			fig = nil
		}
	}()

	if strings.TrimSpace(code) == "" {
		log.Printf("[Sandbox] empty code")
		return nil
	}

	var out strings.Builder
	session := r.newSession(&out)
	err := r.withLimits(ctx, session.thread, func() error {
		globals, err := starlark.ExecFileOptions(fileOptions, session.thread, "visualise.py", stripImports(code), session.predeclared)
		if err != nil {
			return err
		}
		fn, ok := globals[entrypoint]
		if !ok {
			return errNoEntrypoint
		}
		if _, ok := fn.(starlark.Callable); !ok {
			return fmt.Errorf("%s is a %s, not a function", entrypoint, fn.Type())
		}
		result, err := starlark.Call(session.thread, fn, nil, nil)
		if err != nil {
			return err
		}
		fig, err = session.plots.figureOf(result)
		return err
	})
	if r.debug && out.Len() > 0 {
		log.Printf("[Sandbox] output:\n%s", out.String())
	}
	if err != nil {
		log.Printf("[Sandbox] execution error: %v", describe(err))
		return nil
	}
	return fig
}

var errNoEntrypoint = errors.New("code does not define " + entrypoint + "()")

// withLimits applies the step budget, the timeout and ctx cancellation to fn.
func (r *Runner) withLimits(ctx context.Context, thread *starlark.Thread, fn func() error) error {
	if r.maxSteps > 0 {
		thread.SetMaxExecutionSteps(r.maxSteps)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	thread.SetLocal(contextKey, ctx)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()
	return fn()
}

func describe(err error) string {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return evalErr.Backtrace()
	}
	return err.Error()
}

type session struct {
	thread      *starlark.Thread
	predeclared starlark.StringDict
	plots       *plotState
}

func (r *Runner) newSession(out *strings.Builder) *session {
	plots := &plotState{}
	thread := &starlark.Thread{
		Name: "sandbox",
		Print: func(_ *starlark.Thread, msg string) {
			out.WriteString(msg)
			out.WriteByte('\n')
		},
		Load: func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
			return nil, fmt.Errorf("load(%q) is not allowed", module)
		},
	}
	return &session{
		thread:      thread,
		predeclared: r.predeclared(plots),
		plots:       plots,
	}
}
