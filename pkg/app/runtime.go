package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/dyike/chat2vis/config"
	"github.com/dyike/chat2vis/models"
)

var ErrNoEngine = errors.New("engine is not built")

type EngineBuilder func(config.Config) (*Engine, error)

type Option func(*Runtime)

func WithBuilder(builder EngineBuilder) Option {
	return func(r *Runtime) {
		if builder != nil {
			r.builder = builder
		}
	}
}

// WithNotifier receives engine.reloaded and engine.reload_failed events with
// a JSON payload.
func WithNotifier(fn func(topic, payload string)) Option {
	return func(r *Runtime) {
		r.notify = fn
	}
}

// WithEnv re-applies environment overrides to every config before building.
func WithEnv(enabled bool) Option {
	return func(r *Runtime) {
		r.env = enabled
	}
}

// Runtime holds the current engine and swaps it when the config file changes.
// Requests already running keep the engine they started with.
type Runtime struct {
	cfgMgr *config.Manager
	engine atomic.Pointer[Engine]

	builder EngineBuilder
	notify  func(string, string)
	env     bool
	cancel  context.CancelFunc
}

func NewRuntime(cfgMgr *config.Manager, deps Deps, opts ...Option) (*Runtime, error) {
	if cfgMgr == nil {
		return nil, fmt.Errorf("config manager is required")
	}

	rt := &Runtime{
		cfgMgr: cfgMgr,
		builder: func(cfg config.Config) (*Engine, error) {
			return BuildEngine(context.Background(), cfg, deps)
		},
	}

	for _, opt := range opts {
		opt(rt)
	}

	if err := rt.reload(cfgMgr.Get()); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	if err := cfgMgr.Watch(ctx, func(cfg config.Config) {
		if err := rt.reload(cfg); err != nil {
			log.Printf("[Runtime] engine reload failed, keeping version %d: %v", rt.Engine().Version, err)
		}
	}); err != nil {
		cancel()
		return nil, err
	}

	return rt, nil
}

func (r *Runtime) Engine() *Engine {
	return r.engine.Load()
}

// Config is the configuration of the current engine.
func (r *Runtime) Config() config.Config {
	if e := r.Engine(); e != nil {
		return e.Config
	}
	return r.cfgMgr.Get()
}

// Handle answers one user turn with the current engine.
func (r *Runtime) Handle(ctx context.Context, text, sessionID string) (*models.Answer, error) {
	e := r.Engine()
	if e == nil {
		return nil, ErrNoEngine
	}
	return e.Handle(ctx, text, sessionID)
}

func (r *Runtime) Close() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Runtime) reload(cfg config.Config) error {
	if r.env {
		cfg.ApplyEnv()
	}
	engine, err := r.builder(cfg)
	if err != nil {
		r.notifyFailure(err)
		return err
	}
	r.engine.Store(engine)
	log.Printf("[Runtime] engine version %d ready", engine.Version)
	r.notifySuccess(engine)
	return nil
}

func (r *Runtime) notifySuccess(engine *Engine) {
	if r.notify == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"version":  engine.Version,
		"built_at": engine.BuiltAt.UTC().Format(time.RFC3339),
	})
	r.notify("engine.reloaded", string(payload))
}

func (r *Runtime) notifyFailure(err error) {
	if r.notify == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"error": err.Error(),
	})
	r.notify("engine.reload_failed", string(payload))
}
