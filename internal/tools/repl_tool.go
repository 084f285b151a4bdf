package tools

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/chat2vis/consts"
)

// CodeExecutor runs a snippet and returns its printed output or error text.
type CodeExecutor interface {
	Exec(ctx context.Context, code string) string
}

// Scoper is implemented by executors that keep state for the length of a
// scope, one agent run.
type Scoper interface {
	Scope(ctx context.Context) context.Context
}

type ReplInput struct {
	Code string `json:"code"`
}

type replTool struct {
	tool.InvokableTool
	exec CodeExecutor
}

// Scope starts a session on executors that support one, so definitions carry
// over between calls made with the returned ctx.
func (t *replTool) Scope(ctx context.Context) context.Context {
	if s, ok := t.exec.(Scoper); ok {
		return s.Scope(ctx)
	}
	return ctx
}

func NewReplTool(exec CodeExecutor) tool.InvokableTool {
	run := t_utils.NewTool(
		&schema.ToolInfo{
			Name: consts.ToolPythonREPL,
			Desc: "A Python shell. Use this to execute python commands. Input should be a valid python command. If you want to see the output of a value, you should print it out with `print(...)`.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"code": {
					Type:     schema.String,
					Desc:     "The python code to execute.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, input ReplInput) (string, error) {
			return exec.Exec(ctx, input.Code), nil
		},
	)
	return &replTool{InvokableTool: run, exec: exec}
}
