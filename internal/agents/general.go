package agents

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/chat2vis/consts"
	"github.com/dyike/chat2vis/internal/utils"
)

// GeneralPipeline answers free-form questions, querying the database through
// the query tool when it needs to.
type GeneralPipeline struct {
	loop     *Loop
	template prompt.ChatTemplate
}

func NewGeneralPipeline(cm model.ToolCallingChatModel, tools Toolbox, opts ...LoopOption) (*GeneralPipeline, error) {
	system, err := utils.LoadPromptWithSchema(utils.PromptGeneralSystem)
	if err != nil {
		return nil, err
	}
	human, err := utils.LoadPrompt(utils.PromptGeneralHuman)
	if err != nil {
		return nil, err
	}
	loop, err := NewLoop(consts.AgentGeneral, cm, tools, opts...)
	if err != nil {
		return nil, err
	}
	return &GeneralPipeline{
		loop: loop,
		template: prompt.FromMessages(schema.FString,
			schema.SystemMessage(system),
			schema.MessagesPlaceholder("chat_history", true),
			schema.UserMessage(human),
		),
	}, nil
}

// Answer returns the model's final text. Hitting the iteration cap is not an
// error: the stop notice is the answer.
func (p *GeneralPipeline) Answer(ctx context.Context, history []*schema.Message, text string) (string, error) {
	msgs, err := p.template.Format(ctx, map[string]any{
		"chat_history": history,
		"user_prompt":  text,
	})
	if err != nil {
		return "", fmt.Errorf("%s: format prompt: %w", consts.AgentGeneral, err)
	}
	out, err := p.loop.Run(ctx, msgs)
	if err != nil {
		return "", err
	}
	return out.Output, nil
}
