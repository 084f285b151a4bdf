package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/dyike/chat2vis/models"
)

type fakeAsker struct {
	sessions []string
	texts    []string
	fail     map[string]error
}

func (f *fakeAsker) Ask(_ context.Context, sessionID, text string) (string, *models.Answer, error) {
	f.sessions = append(f.sessions, sessionID)
	f.texts = append(f.texts, text)
	if err := f.fail[text]; err != nil {
		return "", nil, err
	}
	if sessionID == "" {
		sessionID = "s" + string(rune('0'+len(f.texts)))
	}
	return sessionID, &models.Answer{Content: "answer to " + text}, nil
}

func scripted(lines ...string) promptFunc {
	return func(string) (string, error) {
		if len(lines) == 0 {
			return "", io.EOF
		}
		line := lines[0]
		lines = lines[1:]
		return line, nil
	}
}

func TestRunInteractiveKeepsSession(t *testing.T) {
	asker := &fakeAsker{}
	var out bytes.Buffer
	err := runInteractive(context.Background(), &out, asker, scripted("How many employees?", "", "And customers?", "exit", "never asked"))
	if err != nil {
		t.Fatalf("runInteractive: %v", err)
	}
	if len(asker.texts) != 2 {
		t.Fatalf("asked %v", asker.texts)
	}
	if asker.sessions[0] != "" || asker.sessions[1] != "s1" {
		t.Errorf("sessions = %v, want the first id reused", asker.sessions)
	}
	if !strings.Contains(out.String(), "answer to And customers?") || !strings.Contains(out.String(), "Bye.") {
		t.Errorf("output:\n%s", out.String())
	}
}

func TestRunInteractiveNewSession(t *testing.T) {
	asker := &fakeAsker{}
	var out bytes.Buffer
	if err := runInteractive(context.Background(), &out, asker, scripted("one", "/new", "two")); err != nil {
		t.Fatalf("runInteractive: %v", err)
	}
	if len(asker.sessions) != 2 || asker.sessions[1] != "" {
		t.Errorf("sessions = %v, want a fresh session after /new", asker.sessions)
	}
}

func TestRunInteractiveReportsErrors(t *testing.T) {
	asker := &fakeAsker{fail: map[string]error{"bad": errors.New("model unavailable")}}
	var out bytes.Buffer
	if err := runInteractive(context.Background(), &out, asker, scripted("bad", "good")); err != nil {
		t.Fatalf("runInteractive: %v", err)
	}
	if !strings.Contains(out.String(), "model unavailable") {
		t.Errorf("error not shown:\n%s", out.String())
	}
	if len(asker.texts) != 2 {
		t.Errorf("loop stopped after an error: %v", asker.texts)
	}
}

func TestRunInteractivePromptFailure(t *testing.T) {
	boom := errors.New("terminal gone")
	err := runInteractive(context.Background(), io.Discard, &fakeAsker{}, func(string) (string, error) {
		return "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}
