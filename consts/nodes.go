package consts

// Orchestrator graph nodes
const (
	GraphName = "Chat2Vis"

	NodeLoadHistory   = "load_history"
	NodeClassify      = "classify"
	NodeGeneral       = "general"
	NodeVisualisation = "visualisation"
	NodeRespond       = "respond"
)

// Agent loop names, used in logs and policy input
const (
	AgentRouter  = "router"
	AgentGeneral = "general_sql"
	AgentSQL     = "visualisation_sql"
	AgentPython  = "visualisation_python"
)

// Tool names exposed to the model
const (
	ToolQueryDB    = "query_sqlite_db_tool"
	ToolPythonREPL = "python_repl"
)
