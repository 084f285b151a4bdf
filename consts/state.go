package consts

type Label string

const (
	LabelGeneral       Label = "General"
	LabelVisualisation Label = "Visualisation"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	// ErrorMessage is shown whenever no usable answer was produced.
	ErrorMessage = "Sorry, I encountered a problem with your request. Please try asking a more direct question."

	// StoppedMessage is the agent output once the iteration cap is hit.
	StoppedMessage = "Agent stopped due to iteration limit or time limit."
)
