package tools

import (
	"context"
	"log"

	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/chat2vis/consts"
	"github.com/dyike/chat2vis/internal/database"
)

type QueryInput struct {
	Query string `json:"query"`
}

// NewQueryTool exposes the read-only executor to the model. Database errors
// and the truncation notice come back as the tool result, never as an error.
func NewQueryTool(db database.Querier, debug bool) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: consts.ToolQueryDB,
			Desc: "Runs a read-only query on the SQLite database and returns the results.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     schema.String,
					Desc:     "The SQL query to run.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, input QueryInput) (string, error) {
			res := db.Query(ctx, input.Query)
			if debug {
				log.Printf("[Tool:%s] %q -> %d rows (failed=%v truncated=%v)",
					consts.ToolQueryDB, input.Query, len(res.Rows), res.Failed, res.Truncated)
			}
			return res.String(), nil
		},
	)
}
