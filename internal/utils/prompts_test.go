package utils

import (
	"strings"
	"testing"
)

func TestEmbeddedPromptsLoad(t *testing.T) {
	for _, path := range []string{
		PromptRouter, PromptGeneralSystem, PromptGeneralHuman,
		PromptSQLSystem, PromptSQLHuman, PromptPythonSystem, PromptPythonHuman,
		PromptSchemaChinook,
	} {
		content, err := LoadPrompt(path)
		if err != nil {
			t.Fatalf("LoadPrompt(%q): %v", path, err)
		}
		if strings.TrimSpace(content) == "" {
			t.Errorf("prompt %q is empty", path)
		}
	}
}

func TestLoadPromptWithSchema(t *testing.T) {
	content, err := LoadPromptWithSchema(PromptGeneralSystem)
	if err != nil {
		t.Fatalf("LoadPromptWithSchema: %v", err)
	}
	if strings.Contains(content, "{{.Schema}}") {
		t.Fatalf("schema placeholder left in prompt:\n%s", content)
	}
	for _, table := range []string{"Employee:", "Track:", "Genre: GenreID, Name"} {
		if !strings.Contains(content, table) {
			t.Errorf("prompt is missing %q", table)
		}
	}
}

func TestHumanPromptsUseTemplateVariables(t *testing.T) {
	cases := map[string][]string{
		PromptRouter:       {"{user_prompt}"},
		PromptGeneralHuman: {"{user_prompt}"},
		PromptSQLHuman:     {"{user_prompt}"},
		PromptPythonHuman:  {"{user_prompt}", "{query}"},
	}
	for path, vars := range cases {
		content := MustLoadPrompt(path)
		for _, v := range vars {
			if !strings.Contains(content, v) {
				t.Errorf("%s is missing %s", path, v)
			}
		}
	}
}

func TestLoadPromptMissing(t *testing.T) {
	if _, err := LoadPrompt("nope/missing"); err == nil {
		t.Fatal("expected an error for a missing prompt")
	}
}
