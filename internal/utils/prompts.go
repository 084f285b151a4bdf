package utils

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed prompts
var promptFiles embed.FS

// Prompt paths, relative to the prompts directory and without extension.
const (
	PromptRouter        = "router/human"
	PromptGeneralSystem = "general/system"
	PromptGeneralHuman  = "general/human"
	PromptSQLSystem     = "visualisation/sql_system"
	PromptSQLHuman      = "visualisation/sql_human"
	PromptPythonSystem  = "visualisation/python_system"
	PromptPythonHuman   = "visualisation/python_human"
	PromptSchemaChinook = "schema/chinook"
	schemaContextKey    = "Schema"
)

// LoadPrompt loads a prompt from the embedded markdown files
func LoadPrompt(path string) (string, error) {
	content, err := promptFiles.ReadFile(fmt.Sprintf("prompts/%s.md", path))
	if err != nil {
		return "", fmt.Errorf("failed to load prompt %s: %w", path, err)
	}
	return strings.TrimRight(string(content), "\n"), nil
}

// LoadPromptWithContext loads a prompt and replaces context variables
func LoadPromptWithContext(path string, context map[string]string) (string, error) {
	content, err := LoadPrompt(path)
	if err != nil {
		return "", err
	}

	// Replace context variables in the format {{.VariableName}}
	for key, value := range context {
		placeholder := fmt.Sprintf("{{.%s}}", key)
		content = strings.ReplaceAll(content, placeholder, value)
	}

	return content, nil
}

// LoadPromptWithSchema loads a system prompt with the database catalogue
// filled in.
func LoadPromptWithSchema(path string) (string, error) {
	schema, err := LoadPrompt(PromptSchemaChinook)
	if err != nil {
		return "", err
	}
	return LoadPromptWithContext(path, map[string]string{schemaContextKey: schema})
}

// MustLoadPrompt is LoadPrompt for prompts known to be embedded.
func MustLoadPrompt(path string) string {
	content, err := LoadPrompt(path)
	if err != nil {
		panic(err)
	}
	return content
}
