// Package textfmt renders copies and debate turns for the terminal.
package textfmt

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"
)

// DefaultWidth is the wrap width used when none is configured.
const DefaultWidth = 80

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	userStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	writerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	reviewStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// FormatText wraps every line of text to width independently, so existing
// line breaks and blank lines are kept. Words longer than width are split.
func FormatText(text string, width int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		if lipgloss.Width(line) <= width {
			continue
		}
		lines[i] = wrap.String(wordwrap.String(line, width), width)
	}
	return strings.Join(lines, "\n")
}

// Label renders a speaker name. The writer and the user get their own
// colours; every other agent shares the reviewer colour.
func Label(name string) string {
	switch name {
	case "", "user", "USER":
		return userStyle.Render("USER")
	case "WRITER":
		return writerStyle.Render(name)
	default:
		return reviewStyle.Render(name)
	}
}

// Heading renders a section title such as "Reviewed copy".
func Heading(title string) string {
	return headingStyle.Render(title)
}

// Turn renders one debate turn as a label line followed by the wrapped
// content.
func Turn(name, content string, width int) string {
	return fmt.Sprintf("%s:\n%s\n", Label(name), FormatText(content, width))
}

// Panel renders a titled block of wrapped text.
func Panel(title, content string, width int) string {
	return fmt.Sprintf("%s\n%s\n", Heading(title), FormatText(content, width))
}

// Error renders an error line.
func Error(err error) string {
	return errorStyle.Render("Error: ") + err.Error()
}

// Dim renders secondary information such as run ids.
func Dim(s string) string {
	return dimStyle.Render(s)
}
