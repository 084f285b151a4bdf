// Package agenttest provides a scripted chat model for tests.
package agenttest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

var ErrExhausted = errors.New("agenttest: script exhausted")

// Reply is one scripted model response.
type Reply struct {
	Message *schema.Message
	Err     error
}

func Text(content string) Reply {
	return Reply{Message: schema.AssistantMessage(content, nil)}
}

// ToolCall replies with a single tool call.
func ToolCall(name, args string) Reply {
	return ToolCalls(schema.ToolCall{
		Type:     "function",
		Function: schema.FunctionCall{Name: name, Arguments: args},
	})
}

func ToolCalls(calls ...schema.ToolCall) Reply {
	return Reply{Message: schema.AssistantMessage("", calls)}
}

func Fail(err error) Reply {
	return Reply{Err: err}
}

type script struct {
	mu      sync.Mutex
	replies []Reply
	calls   [][]*schema.Message
	nextID  int
}

// ChatModel answers Generate calls from a shared script, in order. Models
// returned by WithTools share the script with their parent.
type ChatModel struct {
	s     *script
	tools []*schema.ToolInfo
}

var _ model.ToolCallingChatModel = (*ChatModel)(nil)

func NewChatModel(replies ...Reply) *ChatModel {
	return &ChatModel{s: &script{replies: replies}}
}

// Push appends replies to the script.
func (m *ChatModel) Push(replies ...Reply) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.replies = append(m.s.replies, replies...)
}

func (m *ChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	snapshot := make([]*schema.Message, len(input))
	copy(snapshot, input)
	m.s.calls = append(m.s.calls, snapshot)

	if len(m.s.replies) == 0 {
		return nil, ErrExhausted
	}
	r := m.s.replies[0]
	m.s.replies = m.s.replies[1:]
	if r.Err != nil {
		return nil, r.Err
	}
	msg := *r.Message
	if len(msg.ToolCalls) > 0 {
		calls := make([]schema.ToolCall, len(msg.ToolCalls))
		copy(calls, msg.ToolCalls)
		for i := range calls {
			if calls[i].ID == "" {
				m.s.nextID++
				calls[i].ID = fmt.Sprintf("call_%d", m.s.nextID)
			}
		}
		msg.ToolCalls = calls
	}
	return &msg, nil
}

func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *ChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return &ChatModel{s: m.s, tools: tools}, nil
}

// Tools is what was bound through WithTools.
func (m *ChatModel) Tools() []*schema.ToolInfo {
	return m.tools
}

// Calls returns the input of every Generate call so far.
func (m *ChatModel) Calls() [][]*schema.Message {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := make([][]*schema.Message, len(m.s.calls))
	copy(out, m.s.calls)
	return out
}

// Remaining is the number of unused replies.
func (m *ChatModel) Remaining() int {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return len(m.s.replies)
}
