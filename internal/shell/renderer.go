package shell

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"mediachat/internal/logger"
	"mediachat/pkg/mediatypes"
)

// DefaultWidth is used when the terminal width is unknown.
const DefaultWidth = 80

// Renderer turns conversation state into terminal text.
type Renderer struct {
	width    int
	plain    bool
	markdown *glamour.TermRenderer

	userLabel      lipgloss.Style
	assistantLabel lipgloss.Style
	mediaLabel     lipgloss.Style
	statusStyle    lipgloss.Style
	activeStyle    lipgloss.Style
	dimStyle       lipgloss.Style
	errorStyle     lipgloss.Style
}

// NewRenderer creates a renderer wrapping text at width. Plain renderers
// emit no ANSI sequences and skip markdown rendering.
func NewRenderer(width int, plain bool) *Renderer {
	if width <= 0 {
		width = DefaultWidth
	}
	return &Renderer{
		width:          width,
		plain:          plain,
		userLabel:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		assistantLabel: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13")),
		mediaLabel:     lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		statusStyle:    lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("11")),
		activeStyle:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		dimStyle:       lipgloss.NewStyle().Faint(true),
		errorStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// NewTerminalRenderer creates a renderer matching the terminal's color support.
func NewTerminalRenderer(width int) *Renderer {
	return NewRenderer(width, lipgloss.ColorProfile() == termenv.Ascii)
}

// Width returns the wrap width.
func (r *Renderer) Width() int {
	return r.width
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if r.plain {
		return text
	}
	return s.Render(text)
}

func (r *Renderer) initializeMarkdownIfNeeded() error {
	if r.markdown != nil {
		return nil
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(r.width),
	)
	if err != nil {
		return fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	r.markdown = renderer
	return nil
}

// renderText renders a text part as markdown, falling back to raw text.
func (r *Renderer) renderText(text string) string {
	if r.plain || strings.TrimSpace(text) == "" {
		return text
	}
	if err := r.initializeMarkdownIfNeeded(); err != nil {
		logger.Debug("Markdown rendering unavailable", "error", err)
		return text
	}
	rendered, err := r.markdown.Render(text)
	if err != nil {
		logger.Debug("Failed to render markdown", "error", err)
		return text
	}
	return strings.Trim(rendered, "\n")
}

// RenderMessage renders one message with a role label and its parts in order.
func (r *Renderer) RenderMessage(msg mediatypes.Message) string {
	var b strings.Builder

	switch msg.Role {
	case mediatypes.RoleUser:
		b.WriteString(r.style(r.userLabel, "You"))
	default:
		b.WriteString(r.style(r.assistantLabel, "Assistant"))
	}
	b.WriteString("\n")

	for i, part := range msg.Parts {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(r.renderPart(msg.Role, part))
	}
	b.WriteString("\n")
	return b.String()
}

func (r *Renderer) renderPart(role mediatypes.Role, part mediatypes.MessagePart) string {
	switch part.Kind {
	case mediatypes.PartImage:
		return r.style(r.mediaLabel, "[image] ") + describeImage(part.Content)
	case mediatypes.PartVideo:
		return r.style(r.mediaLabel, "[video] ") + part.Content
	default:
		if role == mediatypes.RoleUser {
			return part.Content
		}
		if strings.HasPrefix(part.Content, "Error:") {
			return r.style(r.errorStyle, part.Content)
		}
		return r.renderText(part.Content)
	}
}

// describeImage summarises a data URI instead of printing the payload.
func describeImage(ref string) string {
	if !strings.HasPrefix(ref, "data:") {
		return ref
	}
	header, payload, found := strings.Cut(ref, ",")
	if !found {
		return "inline image"
	}
	mimeType := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	// Four base64 characters carry three bytes.
	size := len(payload) * 3 / 4
	return fmt.Sprintf("%s, %s", mimeType, humanBytes(size))
}

func humanBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// RenderStatus renders the status line, truncated to a single terminal row.
// It returns an empty string when nothing is loading.
func (r *Renderer) RenderStatus(status mediatypes.GenerationStatus) string {
	if !status.IsLoading || status.StatusMessage == "" {
		return ""
	}
	line := ansi.Truncate("… "+status.StatusMessage, r.width, "…")
	return r.style(r.statusStyle, line)
}

// RenderConversations renders the numbered conversation list.
func (r *Renderer) RenderConversations(summaries []mediatypes.ConversationSummary, activeID string) string {
	var b strings.Builder
	for i, summary := range summaries {
		marker := "  "
		if summary.ID == activeID {
			marker = "* "
		}
		line := fmt.Sprintf("%s%d. %s", marker, i+1, summary.Title)
		line = ansi.Truncate(line, r.width-10, "…")
		if summary.ID == activeID {
			line = r.style(r.activeStyle, line)
		}
		b.WriteString(line)
		b.WriteString(r.style(r.dimStyle, "  "+shortID(summary.ID)))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderLog renders every message of a conversation.
func (r *Renderer) RenderLog(messages []mediatypes.Message) string {
	if len(messages) == 0 {
		return r.style(r.dimStyle, "(no messages yet)") + "\n"
	}
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		parts = append(parts, r.RenderMessage(msg))
	}
	return strings.Join(parts, "\n")
}

// Info renders a dim informational line.
func (r *Renderer) Info(text string) string {
	return r.style(r.dimStyle, text) + "\n"
}

// Error renders an error line.
func (r *Renderer) Error(text string) string {
	return r.style(r.errorStyle, text) + "\n"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
