package cli

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dyike/chat2vis/internal/chart"
	"github.com/dyike/chat2vis/models"
)

const (
	panelWidth = 80
	barWidth   = 40
	labelWidth = 18
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED")).
		Padding(0, 1)

	answerStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#3B82F6")).
		Padding(0, 1).
		Width(panelWidth)

	codeStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#6B7280")).
		Foreground(lipgloss.Color("#A3A3A3")).
		Padding(0, 1).
		Width(panelWidth)

	chartStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#10B981")).
		Padding(0, 1).
		Width(panelWidth)

	mutedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6B7280"))

	labelStyle = lipgloss.NewStyle().
		Width(labelWidth)

	errorStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#EF4444")).
		Bold(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981")).
		Bold(true)
)

var fallbackColors = []string{"#4F46E5", "#10B981", "#F59E0B", "#EF4444", "#8B5CF6", "#06B6D4"}

// RenderAnswer formats an answer for the terminal. Code is shown only when
// showCode is set.
func RenderAnswer(ans *models.Answer, showCode bool) string {
	if ans.Empty() {
		return mutedStyle.Render("(no answer)")
	}
	var parts []string
	if ans.Content != "" {
		parts = append(parts, answerStyle.Render(ans.Content))
	}
	if showCode && ans.Code != "" {
		parts = append(parts, codeStyle.Render(ans.Code))
	}
	if ans.Chart != nil {
		parts = append(parts, chartStyle.Render(RenderChart(ans.Chart)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// RenderChart draws every series as horizontal bars scaled to the largest
// absolute value on its axes. Pie slices also show their share.
func RenderChart(fig *chart.Figure) string {
	var b strings.Builder
	if fig.Title != "" {
		b.WriteString(titleStyle.Render(fig.Title))
		b.WriteString("\n")
	}
	for i, ax := range fig.Axes {
		if i > 0 {
			b.WriteString("\n")
		}
		if ax.Title != "" {
			b.WriteString(titleStyle.Render(ax.Title))
			b.WriteString("\n")
		}
		peak := 0.0
		for _, s := range ax.Series {
			for _, p := range s.Data {
				peak = math.Max(peak, math.Abs(p.Value))
			}
		}
		for j, s := range ax.Series {
			if s.Name != "" && len(ax.Series) > 1 {
				b.WriteString(mutedStyle.Render(s.Name))
				b.WriteString("\n")
			}
			color := s.Color
			if !strings.HasPrefix(color, "#") {
				color = fallbackColors[j%len(fallbackColors)]
			}
			bar := lipgloss.NewStyle().Foreground(lipgloss.Color(color))
			total := 0.0
			for _, p := range s.Data {
				total += math.Abs(p.Value)
			}
			for _, p := range s.Data {
				b.WriteString(labelStyle.Render(truncateLabel(p.Label)))
				b.WriteString(bar.Render(strings.Repeat("█", barLength(p.Value, peak))))
				b.WriteString(" ")
				b.WriteString(formatValue(p.Value))
				if s.Kind == chart.KindPie && total > 0 {
					fmt.Fprintf(&b, " (%.1f%%)", math.Abs(p.Value)/total*100)
				}
				b.WriteString("\n")
			}
		}
		if ax.XLabel != "" || ax.YLabel != "" {
			b.WriteString(mutedStyle.Render(strings.TrimSpace(ax.XLabel + " / " + ax.YLabel)))
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func barLength(v, peak float64) int {
	if peak <= 0 {
		return 0
	}
	n := int(math.Round(math.Abs(v) / peak * barWidth))
	if n == 0 && v != 0 {
		n = 1
	}
	return n
}

func truncateLabel(s string) string {
	r := []rune(s)
	if len(r) < labelWidth {
		return s
	}
	return string(r[:labelWidth-2]) + "…"
}

func formatValue(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
