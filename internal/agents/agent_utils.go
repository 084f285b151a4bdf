package agents

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/chat2vis/config"
	"github.com/dyike/chat2vis/consts"
)

var ErrNoModel = errors.New("no chat model configured")

// NewChatModel builds the tool-calling model selected by cfg.LLMProvider.
func NewChatModel(ctx context.Context, cfg *config.Config) (model.ToolCallingChatModel, error) {
	if cfg == nil {
		return nil, ErrNoModel
	}
	temperature := cfg.Temperature
	maxTokens := cfg.MaxTokens

	switch cfg.LLMProvider {
	case config.ProviderDeepSeek:
		if cfg.DeepSeekAPIKey == "" {
			return nil, fmt.Errorf("%w: DEEPSEEK_API_KEY is not set", ErrNoModel)
		}
		cm, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:      cfg.DeepSeekAPIKey,
			BaseURL:     cfg.BackendURL,
			Model:       cfg.DeepSeekModel,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create DeepSeek model: %w", err)
		}
		return cm, nil
	case config.ProviderOpenAI, "":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrNoModel)
		}
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:     cfg.BackendURL,
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.OpenAIModel,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI model: %w", err)
		}
		return cm, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrNoModel, cfg.LLMProvider)
	}
}

func logMessages(step string, msgs []*schema.Message) {
	for i, msg := range msgs {
		log.Printf("[Agent:%s] message %d: role=%s tool_calls=%d content=%q",
			step, i, msg.Role, len(msg.ToolCalls), truncate(msg.Content, 200))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// TurnMessage renders a transcript turn as a chat message. Assistant turns
// that carry code are replayed as the code so follow-up requests can refer
// to it.
func TurnMessage(role, content, code string) *schema.Message {
	text := content
	if text == "" {
		text = code
	}
	if role == consts.RoleUser {
		return schema.UserMessage(text)
	}
	return schema.AssistantMessage(text, nil)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
