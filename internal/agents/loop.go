package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/chat2vis/consts"
	"github.com/dyike/chat2vis/internal/policy"
)

// Invoker runs a named tool with JSON arguments.
type Invoker interface {
	Invoke(ctx context.Context, name, args string) (string, error)
	Has(name string) bool
}

// Toolbox is an Invoker that can describe its tools to a model.
type Toolbox interface {
	Invoker
	Infos() []*schema.ToolInfo
	Names() []string
}

// scopedToolbox keeps tool state, such as REPL globals, for one Run.
type scopedToolbox interface {
	Scope(ctx context.Context) context.Context
}

// Gate decides whether a tool call may run.
type Gate interface {
	Evaluate(ctx context.Context, in policy.Input) (policy.Decision, error)
}

// Outcome is the terminal result of a loop run.
type Outcome struct {
	Output     string
	Stopped    bool
	Iterations int
	ToolCalls  int
}

type loopState int

const (
	stateAwaitDecision loopState = iota
	stateInvokeTools
	stateTerminal
)

// Loop drives a tool-calling model until it answers without tool calls or
// runs out of iterations.
type Loop struct {
	name          string
	model         model.ToolCallingChatModel
	tools         Toolbox
	gate          Gate
	maxIterations int
	debug         bool
}

type LoopOption func(*Loop)

func WithMaxIterations(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

func WithGate(g Gate) LoopOption {
	return func(l *Loop) {
		l.gate = g
	}
}

func WithLoopDebug(debug bool) LoopOption {
	return func(l *Loop) {
		l.debug = debug
	}
}

// NewLoop binds the toolbox to cm. A nil toolbox runs the model without
// tools.
func NewLoop(name string, cm model.ToolCallingChatModel, tools Toolbox, opts ...LoopOption) (*Loop, error) {
	if cm == nil {
		return nil, ErrNoModel
	}
	l := &Loop{
		name:          name,
		model:         cm,
		tools:         tools,
		maxIterations: 5,
	}
	for _, opt := range opts {
		opt(l)
	}
	if tools != nil {
		bound, err := cm.WithTools(tools.Infos())
		if err != nil {
			return nil, fmt.Errorf("%s: bind tools: %w", name, err)
		}
		l.model = bound
	}
	return l, nil
}

func (l *Loop) Name() string {
	return l.name
}

// Run only fails on model errors. Bad tool calls are answered in-band and
// the model gets another turn.
func (l *Loop) Run(ctx context.Context, messages []*schema.Message) (*Outcome, error) {
	if s, ok := l.tools.(scopedToolbox); ok {
		ctx = s.Scope(ctx)
	}
	msgs := make([]*schema.Message, len(messages), len(messages)+2*l.maxIterations)
	copy(msgs, messages)

	out := &Outcome{}
	var pending []schema.ToolCall
	state := stateAwaitDecision

	for state != stateTerminal {
		switch state {
		case stateAwaitDecision:
			if out.Iterations >= l.maxIterations {
				log.Printf("[Agent:%s] stopped after %d iterations", l.name, out.Iterations)
				out.Output = consts.StoppedMessage
				out.Stopped = true
				state = stateTerminal
				continue
			}
			out.Iterations++
			if l.debug {
				logMessages(l.name, msgs)
			}
			resp, err := l.model.Generate(ctx, msgs)
			if err != nil {
				return nil, fmt.Errorf("%s: generate: %w", l.name, err)
			}
			if resp == nil {
				resp = schema.AssistantMessage("", nil)
			}
			msgs = append(msgs, resp)
			if len(resp.ToolCalls) == 0 {
				out.Output = resp.Content
				state = stateTerminal
				continue
			}
			pending = resp.ToolCalls
			state = stateInvokeTools

		case stateInvokeTools:
			for _, call := range pending {
				result := l.invoke(ctx, call)
				msgs = append(msgs, schema.ToolMessage(result, call.ID))
				out.ToolCalls++
			}
			pending = nil
			state = stateAwaitDecision
		}
	}
	return out, nil
}

// invoke returns the tool result, or a corrective message the model can act on.
func (l *Loop) invoke(ctx context.Context, call schema.ToolCall) string {
	name := call.Function.Name
	args := call.Function.Arguments
	if l.debug {
		log.Printf("[Agent:%s] tool call %s(%s)", l.name, name, args)
	}

	if l.tools == nil || !l.tools.Has(name) {
		available := ""
		if l.tools != nil {
			available = strings.Join(l.tools.Names(), ", ")
		}
		log.Printf("[Agent:%s] unknown tool %q", l.name, name)
		return fmt.Sprintf("%s is not a valid tool, try one of [%s].", name, available)
	}

	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(args), &parsed); err != nil {
		log.Printf("[Agent:%s] invalid arguments for %s: %v", l.name, name, err)
		return fmt.Sprintf("Error: could not parse arguments for %s as a JSON object: %v. Call the tool again with valid JSON arguments.", name, err)
	}

	if l.gate != nil {
		d, err := l.gate.Evaluate(ctx, policy.Input{ToolName: name, Pipeline: l.name, Args: parsed})
		if err != nil {
			log.Printf("[Agent:%s] policy evaluation failed: %v", l.name, err)
			return fmt.Sprintf("Error: the call to %s could not be checked against the tool policy and was not run.", name)
		}
		if !d.Allowed() {
			log.Printf("[Agent:%s] policy blocked %s: %s", l.name, name, d.Reason)
			return fmt.Sprintf("Error: the call to %s was blocked: %s.", name, d.Reason)
		}
	}

	result, err := l.tools.Invoke(ctx, name, args)
	if err != nil {
		log.Printf("[Agent:%s] tool %s failed: %v", l.name, name, err)
		return fmt.Sprintf("Error: %v", err)
	}
	if l.debug {
		log.Printf("[Agent:%s] tool %s -> %s", l.name, name, truncate(result, 200))
	}
	return result
}
