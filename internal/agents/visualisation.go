package agents

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/chat2vis/consts"
	"github.com/dyike/chat2vis/internal/utils"
)

// Artifact is what a pipeline produces: a text answer, or a query and the
// chart code built on it.
type Artifact struct {
	Content string `json:"content,omitempty"`
	Query   string `json:"query,omitempty"`
	Code    string `json:"code,omitempty"`
}

// VisualisationPipeline writes a query for the request, then a visualise()
// function that charts it. The code is returned, not run.
type VisualisationPipeline struct {
	sqlLoop    *Loop
	pythonLoop *Loop
	sqlTpl     prompt.ChatTemplate
	pythonTpl  prompt.ChatTemplate
}

// NewVisualisationPipeline takes separate toolboxes for the query stage and
// the code stage.
func NewVisualisationPipeline(cm model.ToolCallingChatModel, sqlTools, pythonTools Toolbox, opts ...LoopOption) (*VisualisationPipeline, error) {
	sqlSystem, err := utils.LoadPromptWithSchema(utils.PromptSQLSystem)
	if err != nil {
		return nil, err
	}
	pythonSystem, err := utils.LoadPrompt(utils.PromptPythonSystem)
	if err != nil {
		return nil, err
	}
	sqlLoop, err := NewLoop(consts.AgentSQL, cm, sqlTools, opts...)
	if err != nil {
		return nil, err
	}
	pythonLoop, err := NewLoop(consts.AgentPython, cm, pythonTools, opts...)
	if err != nil {
		return nil, err
	}
	return &VisualisationPipeline{
		sqlLoop:    sqlLoop,
		pythonLoop: pythonLoop,
		sqlTpl: prompt.FromMessages(schema.FString,
			schema.SystemMessage(sqlSystem),
			schema.MessagesPlaceholder("chat_history", true),
			schema.UserMessage(utils.MustLoadPrompt(utils.PromptSQLHuman)),
		),
		pythonTpl: prompt.FromMessages(schema.FString,
			schema.SystemMessage(pythonSystem),
			schema.MessagesPlaceholder("chat_history", true),
			schema.UserMessage(utils.MustLoadPrompt(utils.PromptPythonHuman)),
		),
	}, nil
}

func (p *VisualisationPipeline) Generate(ctx context.Context, history []*schema.Message, text string) (*Artifact, error) {
	query, err := p.query(ctx, history, text)
	if err != nil {
		return nil, err
	}

	msgs, err := p.pythonTpl.Format(ctx, map[string]any{
		"chat_history": history,
		"user_prompt":  text,
		"query":        query,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: format prompt: %w", consts.AgentPython, err)
	}
	out, err := p.pythonLoop.Run(ctx, msgs)
	if err != nil {
		return nil, err
	}
	return &Artifact{Query: query, Code: StripCodeFence(out.Output)}, nil
}

func (p *VisualisationPipeline) query(ctx context.Context, history []*schema.Message, text string) (string, error) {
	msgs, err := p.sqlTpl.Format(ctx, map[string]any{
		"chat_history": history,
		"user_prompt":  text,
	})
	if err != nil {
		return "", fmt.Errorf("%s: format prompt: %w", consts.AgentSQL, err)
	}
	out, err := p.sqlLoop.Run(ctx, msgs)
	if err != nil {
		return "", err
	}
	if out.Stopped {
		log.Printf("[Agent:%s] no query before the iteration cap, passing the stop notice on", consts.AgentSQL)
	}
	return StripCodeFence(out.Output), nil
}
