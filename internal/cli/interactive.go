package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/charmbracelet/lipgloss"
)

// promptFunc reads one line of user input.
type promptFunc func(message string) (string, error)

var errQuit = errors.New("quit")

func surveyPrompt(message string) (string, error) {
	var answer string
	prompt := &survey.Input{
		Message: message,
		Help:    "Type /new for a fresh session, exit to leave",
	}
	err := survey.AskOne(prompt, &answer, survey.WithValidator(func(ans interface{}) error {
		if str, ok := ans.(string); !ok || strings.TrimSpace(str) == "" {
			return errors.New("please type a question")
		}
		return nil
	}))
	if errors.Is(err, terminal.InterruptErr) {
		return "", errQuit
	}
	return strings.TrimSpace(answer), err
}

func welcome() string {
	banner := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color("#7C3AED")).
		Padding(0, 2).
		Render("chat2vis")
	help := mutedStyle.Render("Ask about your data, or ask for a chart. /new starts over, exit quits.")
	return lipgloss.JoinVertical(lipgloss.Left, banner, help)
}

// runInteractive is the chat loop. A failed question is reported and the loop
// carries on with the same session.
func runInteractive(ctx context.Context, out io.Writer, asker Asker, prompt promptFunc) error {
	fmt.Fprintln(out, welcome())

	sessionID := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		text, err := prompt("You:")
		if errors.Is(err, errQuit) || errors.Is(err, io.EOF) {
			fmt.Fprintln(out, mutedStyle.Render("Bye."))
			return nil
		}
		if err != nil {
			return err
		}

		switch strings.ToLower(text) {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintln(out, mutedStyle.Render("Bye."))
			return nil
		case "/new":
			sessionID = ""
			fmt.Fprintln(out, mutedStyle.Render("Started a new session."))
			continue
		}

		id, ans, err := asker.Ask(ctx, sessionID, text)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintln(out, errorStyle.Render("Error: "+err.Error()))
			continue
		}
		sessionID = id
		fmt.Fprintln(out, RenderAnswer(ans, false))
	}
}
