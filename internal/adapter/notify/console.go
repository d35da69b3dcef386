// Package notify delivers notifications to the terminal, Slack and Discord.
package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"uetools/internal/domain"
)

// Console prints notifications and tailed log lines to a terminal.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	badges map[domain.NotifyLevel]lipgloss.Style
	lines  map[domain.Severity]lipgloss.Style
	title  lipgloss.Style
}

// NewConsole creates a Console writing to w. Colors are only emitted when
// color is set and w is a terminal.
func NewConsole(w io.Writer, color bool) *Console {
	r := lipgloss.NewRenderer(w)
	plain := r.NewStyle()
	c := &Console{
		w: w,
		badges: map[domain.NotifyLevel]lipgloss.Style{
			domain.NotifyInfo:    plain,
			domain.NotifyWarning: plain,
			domain.NotifyError:   plain,
		},
		lines: map[domain.Severity]lipgloss.Style{
			domain.SeverityInfo:    plain,
			domain.SeverityWarning: plain,
			domain.SeverityError:   plain,
		},
		title: plain,
	}
	if !color {
		return c
	}
	c.badges[domain.NotifyInfo] = r.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	c.badges[domain.NotifyWarning] = r.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	c.badges[domain.NotifyError] = r.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	c.lines[domain.SeverityInfo] = r.NewStyle().Faint(true)
	c.lines[domain.SeverityWarning] = r.NewStyle().Foreground(lipgloss.Color("11"))
	c.lines[domain.SeverityError] = r.NewStyle().Foreground(lipgloss.Color("9"))
	c.title = r.NewStyle().Bold(true)
	return c
}

func (c *Console) Name() string { return "console" }

// Notify writes one line: "[LEVEL] Title: message (CODE)".
func (c *Console) Notify(_ context.Context, n domain.Notification) error {
	var b strings.Builder
	b.WriteString(c.badges[n.Level].Render("[" + strings.ToUpper(string(n.Level)) + "]"))
	b.WriteByte(' ')
	if n.Title != "" {
		b.WriteString(c.title.Render(n.Title))
		b.WriteString(": ")
	}
	b.WriteString(n.Message)
	if n.Code != "" && n.Code != domain.CodeUnknown {
		fmt.Fprintf(&b, " (%s)", n.Code)
	}
	b.WriteByte('\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.w, b.String())
	return err
}

// PrintLines writes tailed log lines styled by severity.
func (c *Console) PrintLines(lines []domain.ClassifiedLine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range lines {
		fmt.Fprintln(c.w, c.lines[l.Severity].Render(l.Text))
	}
}

// Write passes raw task output through, serialized with notifications.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Write(p)
}

var _ domain.Notifier = (*Console)(nil)
