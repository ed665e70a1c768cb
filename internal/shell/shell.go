// Package shell is the interactive terminal client of mediachat. It reads
// input with readline, routes commands, and renders conversations with
// glamour and lipgloss.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
	"github.com/chzyer/readline"

	"mediachat/internal/conversation"
	"mediachat/internal/history"
	"mediachat/internal/logger"
	"mediachat/pkg/mediatypes"
)

// LineReader reads one line of input at a time. *readline.Instance
// satisfies it.
type LineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

// Options configures a Shell.
type Options struct {
	// Out receives all output. Defaults to os.Stdout.
	Out io.Writer
	// Renderer defaults to NewTerminalRenderer.
	Renderer *Renderer
	// Copy writes text to the clipboard. Defaults to the system clipboard
	// where one is available.
	Copy func(text string) error
	// CancelOnInterrupt cancels an in-flight generation on Ctrl-C.
	CancelOnInterrupt bool
}

// Shell is the interactive session.
type Shell struct {
	registry          *history.Registry
	reader            LineReader
	out               io.Writer
	renderer          *Renderer
	copyText          func(string) error
	cancelOnInterrupt bool

	outMu      sync.Mutex
	lastStatus string
}

// NewReadline creates the readline instance used for input and for
// credential prompts.
func NewReadline(historyFile string) (*readline.Instance, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "mediachat> ",
		HistoryFile:       historyFile,
		AutoComplete:      newCompleter(),
		Painter:           newCommandPainter(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize readline: %w", err)
	}
	return rl, nil
}

// TerminalWidth returns the width of the controlling terminal, or
// DefaultWidth when it cannot be determined.
func TerminalWidth() int {
	if w := readline.GetScreenWidth(); w > 0 {
		return w
	}
	return DefaultWidth
}

// New creates a shell over registry.
func New(registry *history.Registry, reader LineReader, opts Options) *Shell {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Renderer == nil {
		opts.Renderer = NewTerminalRenderer(DefaultWidth)
	}
	if opts.Copy == nil && clipboardAvailable {
		opts.Copy = writeToClipboard
	}
	return &Shell{
		registry:          registry,
		reader:            reader,
		out:               opts.Out,
		renderer:          opts.Renderer,
		copyText:          opts.Copy,
		cancelOnInterrupt: opts.CancelOnInterrupt,
	}
}

func (s *Shell) print(text string) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	_, _ = io.WriteString(s.out, text)
}

// Run reads and executes input until /quit, EOF or ctx is cancelled.
func (s *Shell) Run(ctx context.Context) error {
	unsubscribe := s.registry.Subscribe(s.onSnapshot)
	defer unsubscribe()

	s.print(s.renderer.Info("Type /help for commands."))

	for {
		if ctx.Err() != nil {
			return nil
		}
		s.reader.SetPrompt(s.prompt())

		line, err := s.reader.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		quit, err := s.Execute(ctx, line)
		if err != nil {
			s.print(s.renderer.Error(err.Error()))
		}
		if quit {
			return nil
		}
	}
}

func (s *Shell) prompt() string {
	title := history.DefaultTitle
	if summary, err := s.registry.Summary(s.registry.ActiveID()); err == nil {
		title = summary.Title
	}
	return fmt.Sprintf("mediachat [%s]> ", ansi.Truncate(title, 24, "…"))
}

// onSnapshot prints status changes of the active conversation.
func (s *Shell) onSnapshot(snapshot mediatypes.Snapshot) {
	line := s.renderer.RenderStatus(snapshot.Status)

	s.outMu.Lock()
	defer s.outMu.Unlock()
	if line == s.lastStatus {
		return
	}
	s.lastStatus = line
	if line != "" {
		_, _ = io.WriteString(s.out, line+"\n")
	}
}

// Execute handles one input line and reports whether the shell should exit.
func (s *Shell) Execute(ctx context.Context, line string) (bool, error) {
	if strings.TrimSpace(line) == "" {
		return false, nil
	}

	cmd, ok := ParseCommand(line)
	if !ok {
		return false, s.submit(ctx, line)
	}

	logger.Debug("Shell command", "command", cmd.Name, "args", cmd.Args)

	switch cmd.Name {
	case "new":
		s.registry.CreateConversation()
		s.print(s.renderer.Info("Started a new conversation."))
	case "list":
		s.print(s.renderer.RenderConversations(s.registry.Conversations(), s.registry.ActiveID()))
	case "switch":
		return false, s.switchTo(cmd.Args)
	case "rename":
		if err := s.registry.Rename(s.registry.ActiveID(), cmd.Args); err != nil {
			return false, err
		}
		s.print(s.renderer.Info("Renamed to " + strings.TrimSpace(cmd.Args) + "."))
	case "delete":
		return false, s.delete(cmd.Args)
	case "export":
		return false, s.export(cmd.Args)
	case "copy":
		return false, s.copyLastReply()
	case "help":
		s.print(HelpText())
	case "quit":
		return true, nil
	}
	return false, nil
}

// submit sends text to the active conversation and prints the reply.
func (s *Shell) submit(ctx context.Context, text string) error {
	id := s.registry.ActiveID()
	machine, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	before := machine.Len()

	if s.cancelOnInterrupt {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt)
		defer stop()
	}

	if err := s.registry.SubmitTo(ctx, id, text); err != nil {
		if errors.Is(err, conversation.ErrBlankInput) {
			return nil
		}
		return err
	}

	messages := machine.Messages()
	if len(messages) > before {
		s.print(s.renderer.RenderMessage(messages[len(messages)-1]))
	}
	return nil
}

func (s *Shell) resolve(identifier string) (string, error) {
	if strings.TrimSpace(identifier) == "" {
		return s.registry.ActiveID(), nil
	}
	summary, err := s.registry.Find(identifier)
	if err != nil {
		return "", err
	}
	return summary.ID, nil
}

func (s *Shell) switchTo(identifier string) error {
	if strings.TrimSpace(identifier) == "" {
		return fmt.Errorf("usage: /switch <n|id|title>")
	}
	id, err := s.resolve(identifier)
	if err != nil {
		return err
	}
	if err := s.registry.SelectConversation(id); err != nil {
		return err
	}
	snapshot := s.registry.Snapshot()
	summary, _ := s.registry.Summary(id)
	s.print(s.renderer.Info("Switched to " + summary.Title + "."))
	s.print(s.renderer.RenderLog(snapshot.Messages))
	return nil
}

func (s *Shell) delete(identifier string) error {
	id, err := s.resolve(identifier)
	if err != nil {
		return err
	}
	summary, err := s.registry.Summary(id)
	if err != nil {
		return err
	}
	if err := s.registry.Delete(id); err != nil {
		return err
	}
	s.print(s.renderer.Info("Deleted " + summary.Title + "."))
	return nil
}

func (s *Shell) export(args string) error {
	fields := strings.Fields(args)
	format := conversation.FormatJSON
	if len(fields) > 0 {
		format = fields[0]
	}

	id := s.registry.ActiveID()
	machine, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	summary, err := s.registry.Summary(id)
	if err != nil {
		return err
	}

	if len(fields) < 2 {
		var b strings.Builder
		if err := machine.ExportTitled(&b, format, summary.Title); err != nil {
			return err
		}
		s.print(b.String())
		return nil
	}

	path := fields[1]
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	if err := machine.ExportTitled(file, format, summary.Title); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	s.print(s.renderer.Info("Exported to " + path + "."))
	return nil
}

func (s *Shell) copyLastReply() error {
	messages := s.registry.Active().Messages()
	var text string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != mediatypes.RoleAssistant {
			continue
		}
		text = messages[i].Text()
		if text == "" && len(messages[i].Parts) > 0 {
			text = messages[i].Parts[0].Content
		}
		break
	}
	if text == "" {
		return fmt.Errorf("nothing to copy yet")
	}

	if s.copyText == nil {
		s.print(s.renderer.Info("Clipboard unavailable; the last reply is:"))
		s.print(text + "\n")
		return nil
	}
	if err := s.copyText(text); err != nil {
		return fmt.Errorf("failed to copy: %w", err)
	}
	s.print(s.renderer.Info("Copied the last reply to the clipboard."))
	return nil
}
