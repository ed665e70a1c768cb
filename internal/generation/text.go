package generation

import (
	"context"
	"strings"

	"mediachat/internal/logger"
	"mediachat/pkg/mediatypes"
)

// DefaultSystemInstruction describes assistant behaviour and the media commands.
const DefaultSystemInstruction = "You are a helpful AI assistant. You can engage in conversation, " +
	"and if the user wants to generate media, explain how to do it using commands like " +
	"'generate image of...' or 'generate video of...'. " +
	"Always provide helpful, concise, and clear responses."

// TextBackend answers a prompt with a single text part.
type TextBackend struct {
	completer         TextCompleter
	systemInstruction string
	multiTurn         bool
}

// TextOption configures a TextBackend.
type TextOption func(*TextBackend)

// WithSystemInstruction overrides DefaultSystemInstruction.
func WithSystemInstruction(instruction string) TextOption {
	return func(b *TextBackend) {
		if strings.TrimSpace(instruction) != "" {
			b.systemInstruction = instruction
		}
	}
}

// WithMultiTurn makes the backend send the request history along with the prompt.
func WithMultiTurn(enabled bool) TextOption {
	return func(b *TextBackend) {
		b.multiTurn = enabled
	}
}

// NewTextBackend creates a text backend over completer.
func NewTextBackend(completer TextCompleter, opts ...TextOption) *TextBackend {
	b := &TextBackend{
		completer:         completer,
		systemInstruction: DefaultSystemInstruction,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Generate performs one completion round trip.
func (b *TextBackend) Generate(ctx context.Context, req Request) ([]mediatypes.MessagePart, error) {
	var history []Turn
	if b.multiTurn {
		history = TurnsFromMessages(req.History)
	}

	logger.Debug("Text generation starting", "prompt_length", len(req.Prompt), "history_turns", len(history))

	text, err := b.completer.CompleteText(ctx, req.Prompt, b.systemInstruction, history)
	if err != nil {
		logger.Error("Text generation failed", "error", err)
		return nil, Wrap("text.complete", err)
	}
	if text == "" {
		return nil, NewError(KindMalformed, "text.complete", "the model returned no text", nil)
	}

	return []mediatypes.MessagePart{mediatypes.TextPart(text)}, nil
}

// TurnsFromMessages keeps the text content of user and assistant messages.
// Messages without text, such as image-only replies, are skipped.
func TurnsFromMessages(messages []mediatypes.Message) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, msg := range messages {
		if msg.Role != mediatypes.RoleUser && msg.Role != mediatypes.RoleAssistant {
			continue
		}
		text := msg.Text()
		if text == "" {
			continue
		}
		turns = append(turns, Turn{Role: msg.Role, Text: text})
	}
	return turns
}
