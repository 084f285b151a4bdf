package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Input is what a tool-call policy sees.
type Input struct {
	ToolName string         `json:"tool_name"`
	Pipeline string         `json:"pipeline"`
	Args     map[string]any `json:"args"`
}

// Decision is the evaluated verdict for one call.
type Decision struct {
	Verdict string
	Reason  string
}

func (d Decision) Allowed() bool {
	return d.Verdict != DecisionBlock
}

// Engine evaluates data.tool_policy against each tool call.
type Engine struct {
	decision rego.PreparedEvalQuery
	reason   rego.PreparedEvalQuery
}

// NewEngine prepares a policy module. An empty module means DefaultPolicy.
func NewEngine(ctx context.Context, module string) (*Engine, error) {
	if module == "" {
		module = DefaultPolicy
	}
	decision, err := rego.New(
		rego.Query("data.tool_policy.decision"),
		rego.Module("tool_policy.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy: %w", err)
	}
	reason, err := rego.New(
		rego.Query("data.tool_policy.reason"),
		rego.Module("tool_policy.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy reason: %w", err)
	}
	return &Engine{decision: decision, reason: reason}, nil
}

// LoadEngine reads the module from path, or uses DefaultPolicy when path is empty.
func LoadEngine(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, "")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	return NewEngine(ctx, string(data))
}

// Evaluate returns allow when the policy produces no decision.
func (e *Engine) Evaluate(ctx context.Context, in Input) (Decision, error) {
	input := map[string]any{
		"tool_name": in.ToolName,
		"pipeline":  in.Pipeline,
		"args":      in.Args,
	}
	results, err := e.decision.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Verdict: DecisionAllow}, nil
	}
	verdict, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return Decision{Verdict: DecisionAllow, Reason: "unexpected decision type"}, nil
	}

	d := Decision{Verdict: verdict}
	if verdict == DecisionBlock {
		if rs, err := e.reason.Eval(ctx, rego.EvalInput(input)); err == nil && len(rs) > 0 && len(rs[0].Expressions) > 0 {
			d.Reason, _ = rs[0].Expressions[0].Value.(string)
		}
	}
	return d, nil
}

// DefaultPolicy keeps the query tool read-only and rejects unknown tools.
const DefaultPolicy = `
package tool_policy

default decision = "allow"

known_tools := {"query_sqlite_db_tool", "python_repl"}

write_keyword := "(?i)^\\s*(insert|update|delete|drop|alter|create|replace|attach|detach|pragma|vacuum|reindex|truncate|grant|revoke)\\b"

decision = "block" {
	not known_tools[input.tool_name]
}

decision = "block" {
	input.tool_name == "query_sqlite_db_tool"
	regex.match(write_keyword, input.args.query)
}

reason = "unknown tool" {
	not known_tools[input.tool_name]
}

reason = "only read-only queries are allowed" {
	input.tool_name == "query_sqlite_db_tool"
	regex.match(write_keyword, input.args.query)
}
`
