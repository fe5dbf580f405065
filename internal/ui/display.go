// Package ui renders the conversation in a terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"webhook-chat/internal/history"
)

// Color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// EnhancedDisplay prints messages, status lines and history listings.
type EnhancedDisplay struct {
	out      io.Writer
	width    int
	color    bool
	renderer *glamour.TermRenderer
	now      func() time.Time
}

// NewEnhancedDisplay writes to out. Colors and markdown rendering are only
// used when out is a terminal.
func NewEnhancedDisplay(out io.Writer, renderMarkdown bool) *EnhancedDisplay {
	d := &EnhancedDisplay{out: out, width: 80, now: time.Now}

	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		d.color = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 20 {
			d.width = w
		}
	}

	if renderMarkdown && d.color {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(min(d.width, 100)-10),
		)
		if err == nil {
			d.renderer = renderer
		}
	}

	return d
}

func (d *EnhancedDisplay) paint(color, s string) string {
	if !d.color {
		return s
	}
	return color + s + colorReset
}

// PrintWelcome shows the banner and the current session
func (d *EnhancedDisplay) PrintWelcome(cfg history.ChatConfig) {
	fmt.Fprintln(d.out, d.paint(colorBold+colorCyan, "webhook-chat"))
	if cfg.Configured() {
		fmt.Fprintf(d.out, "%s %s\n", d.paint(colorGray, "Webhook:"), cfg.WebhookURL)
	} else {
		fmt.Fprintf(d.out, "%s %s\n", d.paint(colorGray, "Webhook:"), d.paint(colorYellow, "not configured"))
	}
	fmt.Fprintf(d.out, "%s %s\n", d.paint(colorGray, "Session:"), cfg.SessionID)
	fmt.Fprintln(d.out, d.paint(colorGray, "Commands: /config [url] | /history | /clear | /session | /exit"))
	fmt.Fprintln(d.out)
}

// PrintPrompt displays user input prompt
func (d *EnhancedDisplay) PrintPrompt() {
	fmt.Fprint(d.out, d.paint(colorBold+colorGreen, "> "))
}

// PrintMessage displays one message with its author and time
func (d *EnhancedDisplay) PrintMessage(msg history.Message) {
	label, color := "You", colorGreen
	switch msg.Role {
	case history.RoleAssistant:
		label, color = "Assistant", colorBlue
	case history.RoleSystem:
		label, color = "System", colorGray
	}

	fmt.Fprintf(d.out, "\n%s\n", d.paint(color, fmt.Sprintf("┌─ %s · %s", label, msg.Time().Format("15:04:05"))))
	for _, line := range strings.Split(d.render(msg), "\n") {
		fmt.Fprintf(d.out, "%s %s\n", d.paint(colorGray, "│"), line)
	}
	fmt.Fprintln(d.out, d.paint(colorGray, "└"))
}

// render returns assistant markdown rendered for the terminal, or the raw text.
func (d *EnhancedDisplay) render(msg history.Message) string {
	if d.renderer == nil || msg.Role != history.RoleAssistant {
		return msg.Content
	}
	rendered, err := d.renderer.Render(msg.Content)
	if err != nil {
		return msg.Content
	}
	return strings.Trim(rendered, "\n")
}

// PrintReply prints only the reply content, for one-shot use.
func (d *EnhancedDisplay) PrintReply(msg history.Message) {
	fmt.Fprintln(d.out, d.render(msg))
}

// PrintWaiting shows that a reply is pending.
func (d *EnhancedDisplay) PrintWaiting() {
	fmt.Fprintln(d.out, d.paint(colorDim+colorCyan, "… waiting for the webhook"))
}

// PrintHistory lists the whole conversation with relative times
func (d *EnhancedDisplay) PrintHistory(msgs []history.Message) {
	if len(msgs) == 0 {
		d.PrintInfo("No conversation history yet")
		return
	}

	d.PrintSeparator()
	now := d.now()
	for _, msg := range msgs {
		when := humanize.RelTime(msg.Time(), now, "ago", "from now")
		fmt.Fprintf(d.out, "%s %s\n%s\n\n",
			d.paint(colorBold, string(msg.Role)),
			d.paint(colorGray, "("+when+")"),
			msg.Content)
	}
	d.PrintSeparator()
}

// PrintConfig shows the chat configuration
func (d *EnhancedDisplay) PrintConfig(cfg history.ChatConfig) {
	url := cfg.WebhookURL
	if url == "" {
		url = "(not configured)"
	}
	fmt.Fprintf(d.out, "webhook_url: %s\nsession_id:  %s\n", url, cfg.SessionID)
}

// PrintSeparator prints a visual separator
func (d *EnhancedDisplay) PrintSeparator() {
	fmt.Fprintln(d.out, d.paint(colorDim, strings.Repeat("─", min(d.width, 80))))
}

// PrintInfo displays info message
func (d *EnhancedDisplay) PrintInfo(msg string) {
	fmt.Fprintln(d.out, d.paint(colorCyan, "ℹ "+msg))
}

// PrintWarning displays warning message
func (d *EnhancedDisplay) PrintWarning(msg string) {
	fmt.Fprintln(d.out, d.paint(colorYellow, "⚠ "+msg))
}

// PrintError displays error message
func (d *EnhancedDisplay) PrintError(err error) {
	fmt.Fprintln(d.out, d.paint(colorRed, fmt.Sprintf("✗ Error: %v", err)))
}

// PrintSuccess displays success message
func (d *EnhancedDisplay) PrintSuccess(msg string) {
	fmt.Fprintln(d.out, d.paint(colorGreen, "✓ "+msg))
}

// PrintGoodbye displays goodbye message
func (d *EnhancedDisplay) PrintGoodbye() {
	fmt.Fprintln(d.out, d.paint(colorCyan, "\nGoodbye!"))
}
