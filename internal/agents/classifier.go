package agents

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/chat2vis/consts"
	"github.com/dyike/chat2vis/internal/utils"
)

// Classifier labels a user turn as General or Visualisation with a single
// model call.
type Classifier struct {
	model    model.BaseChatModel
	template prompt.ChatTemplate
	debug    bool
}

func NewClassifier(cm model.BaseChatModel, debug bool) (*Classifier, error) {
	if cm == nil {
		return nil, ErrNoModel
	}
	human, err := utils.LoadPrompt(utils.PromptRouter)
	if err != nil {
		return nil, err
	}
	return &Classifier{
		model: cm,
		template: prompt.FromMessages(schema.FString,
			schema.MessagesPlaceholder("chat_history", true),
			schema.UserMessage(human),
		),
		debug: debug,
	}, nil
}

func (c *Classifier) Classify(ctx context.Context, history []*schema.Message, text string) (consts.Label, error) {
	msgs, err := c.template.Format(ctx, map[string]any{
		"chat_history": history,
		"user_prompt":  text,
	})
	if err != nil {
		return "", fmt.Errorf("%s: format prompt: %w", consts.AgentRouter, err)
	}
	if c.debug {
		logMessages(consts.AgentRouter, msgs)
	}
	resp, err := c.model.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("%s: generate: %w", consts.AgentRouter, err)
	}
	output := ""
	if resp != nil {
		output = resp.Content
	}
	label := ParseLabel(output)
	log.Printf("[Router] %q -> %s", truncate(text, 80), label)
	return label, nil
}

// ParseLabel maps raw router output to a label. Only an output mentioning
// visualisation selects Visualisation; everything else is General.
func ParseLabel(output string) consts.Label {
	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "visualisation"):
		return consts.LabelVisualisation
	case strings.Contains(lower, "general"):
		return consts.LabelGeneral
	default:
		log.Printf("[Router] unrecognised label %q, using %s", truncate(output, 80), consts.LabelGeneral)
		return consts.LabelGeneral
	}
}
