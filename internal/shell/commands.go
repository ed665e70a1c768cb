package shell

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"
	"github.com/muesli/termenv"
)

// Command is a parsed shell command.
type Command struct {
	Name string
	Args string
}

// commandDef describes one shell command for parsing and /help.
type commandDef struct {
	name    string
	aliases []string
	usage   string
	help    string
}

var commandDefs = []commandDef{
	{name: "new", usage: "/new", help: "Start a new conversation"},
	{name: "list", aliases: []string{"ls"}, usage: "/list", help: "List conversations"},
	{name: "switch", aliases: []string{"select"}, usage: "/switch <n|id|title>", help: "Switch to a conversation"},
	{name: "rename", usage: "/rename <title>", help: "Rename the active conversation"},
	{name: "delete", usage: "/delete [n|id|title]", help: "Delete a conversation (default: active)"},
	{name: "export", usage: "/export [json|yaml] [file]", help: "Export the active conversation"},
	{name: "copy", usage: "/copy", help: "Copy the last reply to the clipboard"},
	{name: "help", aliases: []string{"?"}, usage: "/help", help: "Show this help"},
	{name: "quit", aliases: []string{"exit", "q"}, usage: "/quit", help: "Leave mediachat"},
}

// ParseCommand recognises shell commands. Any other input, including
// /image and /video prompts, is not a command and is submitted as-is.
func ParseCommand(line string) (Command, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return Command{}, false
	}

	name, args, _ := strings.Cut(trimmed[1:], " ")
	name = strings.ToLower(name)
	for _, def := range commandDefs {
		if name == def.name || contains(def.aliases, name) {
			return Command{Name: def.name, Args: strings.TrimSpace(args)}, true
		}
	}
	return Command{}, false
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}

// HelpText lists all commands and the generation triggers.
func HelpText() string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, def := range commandDefs {
		b.WriteString("  ")
		b.WriteString(def.usage)
		b.WriteString(strings.Repeat(" ", max(1, 28-len(def.usage))))
		b.WriteString(def.help)
		b.WriteString("\n")
	}
	b.WriteString("\nAnything else is sent to the assistant. Start with \"/image\" or\n")
	b.WriteString("\"generate image of\" for pictures, \"/video\" or \"generate video of\" for clips.\n")
	return b.String()
}

// newCompleter completes command names and the generation triggers.
func newCompleter() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(commandDefs)+2)
	for _, def := range commandDefs {
		items = append(items, readline.PcItem("/"+def.name))
	}
	items = append(items, readline.PcItem("/image"), readline.PcItem("/video"))
	return readline.NewPrefixCompleter(items...)
}

// commandPainter highlights a leading /command while typing.
type commandPainter struct {
	pattern *regexp.Regexp
	style   lipgloss.Style
}

func newCommandPainter() readline.Painter {
	return &commandPainter{
		pattern: regexp.MustCompile(`^/[a-zA-Z?]+`),
		style:   lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
	}
}

// Paint implements readline.Painter.
func (p *commandPainter) Paint(line []rune, _ int) []rune {
	if lipgloss.ColorProfile() == termenv.Ascii {
		return line
	}
	input := string(line)
	loc := p.pattern.FindStringIndex(input)
	if loc == nil {
		return line
	}
	return []rune(p.style.Render(input[:loc[1]]) + input[loc[1]:])
}
