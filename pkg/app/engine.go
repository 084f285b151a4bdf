// Package app assembles the chat engine from configuration and rebuilds it
// when the configuration changes.
package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino/components/model"

	"github.com/dyike/chat2vis/config"
	"github.com/dyike/chat2vis/internal/agents"
	"github.com/dyike/chat2vis/internal/database"
	"github.com/dyike/chat2vis/internal/graph"
	"github.com/dyike/chat2vis/internal/policy"
	"github.com/dyike/chat2vis/internal/sandbox"
	"github.com/dyike/chat2vis/internal/tools"
	"github.com/dyike/chat2vis/models"
)

// Deps are the collaborators that outlive a single engine.
type Deps struct {
	// History is shared across rebuilds so sessions survive a reload.
	History graph.HistoryLoader
	// Model overrides the provider selected by the config.
	Model model.ToolCallingChatModel
}

type Engine struct {
	Config  config.Config
	BuiltAt time.Time
	Version uint64

	orchestrator *graph.Orchestrator
}

var engineSeq atomic.Uint64

// BuildEngine wires the executor, sandbox, tools, model and pipelines into an
// orchestrator.
func BuildEngine(ctx context.Context, cfg config.Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.History == nil {
		return nil, fmt.Errorf("history loader is required")
	}

	exec, err := database.NewExecutorFromConfig(&cfg)
	if err != nil {
		return nil, fmt.Errorf("init executor: %w", err)
	}
	runner := sandbox.NewRunnerFromConfig(exec, &cfg)

	cm := deps.Model
	if cm == nil {
		if cm, err = agents.NewChatModel(ctx, &cfg); err != nil {
			return nil, err
		}
	}

	gate, err := policy.LoadEngine(ctx, cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("init policy: %w", err)
	}

	sqlTools := tools.NewRegistry()
	if err := sqlTools.Register(ctx, tools.NewQueryTool(exec, cfg.Debug)); err != nil {
		return nil, err
	}
	pythonTools := tools.NewRegistry()
	if err := pythonTools.Register(ctx, tools.NewReplTool(runner)); err != nil {
		return nil, err
	}

	loopOpts := []agents.LoopOption{
		agents.WithMaxIterations(cfg.MaxIterations),
		agents.WithGate(gate),
		agents.WithLoopDebug(cfg.Debug),
	}
	router, err := agents.NewClassifier(cm, cfg.Debug)
	if err != nil {
		return nil, err
	}
	general, err := agents.NewGeneralPipeline(cm, sqlTools, loopOpts...)
	if err != nil {
		return nil, err
	}
	visual, err := agents.NewVisualisationPipeline(cm, sqlTools, pythonTools, loopOpts...)
	if err != nil {
		return nil, err
	}

	orch, err := graph.NewOrchestrator(ctx, deps.History, router, general, visual, runner, graph.WithDebug(cfg.Debug))
	if err != nil {
		return nil, err
	}

	return &Engine{
		Config:       cfg,
		BuiltAt:      time.Now(),
		Version:      engineSeq.Add(1),
		orchestrator: orch,
	}, nil
}

// Handle answers one user turn.
func (e *Engine) Handle(ctx context.Context, text, sessionID string) (*models.Answer, error) {
	return e.orchestrator.Handle(ctx, text, sessionID)
}
