// Package conversation owns the message log and generation status of a
// single conversation and serializes its generation requests.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"mediachat/internal/generation"
	"mediachat/internal/intent"
	"mediachat/internal/logger"
	"mediachat/internal/testutils"
	"mediachat/pkg/mediatypes"
)

var (
	// ErrBusy is returned when a generation is already in flight.
	ErrBusy = errors.New("a generation is already in progress")

	// ErrBlankInput is returned for empty or whitespace-only input.
	ErrBlankInput = errors.New("input is blank")
)

// State is the lifecycle state of a conversation.
type State string

// Conversation states.
const (
	StateIdle                   State = "idle"
	StateAwaitingClassification State = "awaiting_classification"
	StateGenerating             State = "generating"
)

// Status messages shown while a submission is processed.
const (
	StatusAnalyzing = "Analyzing prompt..."
	StatusThinking  = "Thinking..."
	StatusImagining = "Imagining your vision..."
	StatusDirecting = "Directing your video..."
)

// EmptyPromptReply answers a media command that carries no description.
const EmptyPromptReply = "Error: Please describe what you want to generate."

// Backends maps each generation type to the backend that serves it.
type Backends map[mediatypes.GenerationType]generation.Backend

// Machine is the conversation state machine. All mutation of the log and
// status happens here; backends only return parts or errors.
type Machine struct {
	id       string
	backends Backends
	source   testutils.Source

	mu       sync.Mutex
	messages []mediatypes.Message
	status   mediatypes.GenerationStatus
	state    State

	observers observerList
}

// New creates an idle conversation with an empty log.
func New(id string, backends Backends, source testutils.Source) *Machine {
	if source == nil {
		source = testutils.RandomSource{}
	}
	return &Machine{
		id:       id,
		backends: backends,
		source:   source,
		messages: make([]mediatypes.Message, 0),
		status:   mediatypes.Idle,
		state:    StateIdle,
	}
}

// ID returns the conversation id.
func (m *Machine) ID() string {
	return m.id
}

// Subscribe registers fn for every change to this conversation. The returned
// function removes the subscription.
func (m *Machine) Subscribe(fn Observer) func() {
	return m.observers.add(fn)
}

// Submit processes one user input to completion. It returns ErrBlankInput or
// ErrBusy without touching the log when the input is rejected. Generation
// failures are not returned; they become the assistant reply.
func (m *Machine) Submit(ctx context.Context, raw string) error {
	input := strings.TrimSpace(raw)
	if input == "" {
		return ErrBlankInput
	}

	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		logger.Debug("Submission rejected while busy", "conversation", m.id)
		return ErrBusy
	}
	history := cloneMessages(m.messages)
	userMessage := m.newMessage(mediatypes.RoleUser, []mediatypes.MessagePart{mediatypes.TextPart(input)})
	m.messages = append(m.messages, userMessage)
	m.status = mediatypes.GenerationStatus{IsLoading: true, StatusMessage: StatusAnalyzing}
	m.transitionLocked(StateAwaitingClassification)
	status := m.status
	m.mu.Unlock()

	m.observers.notify(Event{ConversationID: m.id, Kind: EventMessage, Message: userMessage.Clone()})
	m.observers.notify(Event{ConversationID: m.id, Kind: EventStatus, Status: status})

	classified := intent.Classify(input)
	logger.Debug("Intent classified", "conversation", m.id, "type", classified.Type, "prompt_length", len(classified.Prompt))

	parts, err := m.generate(ctx, classified, history)

	var reply mediatypes.Message
	m.mu.Lock()
	if err != nil {
		reply = m.newMessage(mediatypes.RoleAssistant, []mediatypes.MessagePart{mediatypes.TextPart(replyFor(err))})
	} else {
		reply = m.newMessage(mediatypes.RoleAssistant, cloneParts(parts))
	}
	m.messages = append(m.messages, reply)
	m.status = mediatypes.Idle
	m.transitionLocked(StateIdle)
	m.mu.Unlock()

	if err != nil {
		logger.Error("Generation failed", "conversation", m.id, "type", classified.Type,
			"kind", generation.KindOf(err), "error", err)
	} else {
		logger.Debug("Generation completed", "conversation", m.id, "type", classified.Type, "parts", len(parts))
	}

	m.observers.notify(Event{ConversationID: m.id, Kind: EventMessage, Message: reply.Clone()})
	m.observers.notify(Event{ConversationID: m.id, Kind: EventStatus, Status: mediatypes.Idle})
	return nil
}

// generate dispatches to the backend for the intent. Backend panics are
// converted into errors.
func (m *Machine) generate(ctx context.Context, classified mediatypes.GenerationIntent, history []mediatypes.Message) (parts []mediatypes.MessagePart, err error) {
	if classified.Type != mediatypes.GenerationText && classified.Prompt == "" {
		return nil, generation.NewError(generation.KindEmptyPrompt, "conversation.submit", "", generation.ErrEmptyPrompt)
	}

	backend, ok := m.backends[classified.Type]
	if !ok || backend == nil {
		return nil, generation.NewError(generation.KindMalformed, "conversation.submit",
			fmt.Sprintf("no backend configured for %s generation", classified.Type), nil)
	}

	m.mu.Lock()
	m.transitionLocked(StateGenerating)
	m.mu.Unlock()
	m.setStatus(statusFor(classified.Type))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Backend panicked", "conversation", m.id, "panic", r)
			parts = nil
			err = generation.NewError(generation.KindMalformed, "conversation.generate", fmt.Sprintf("backend failed: %v", r), nil)
		}
	}()

	return backend.Generate(ctx, generation.Request{
		Prompt:     classified.Prompt,
		History:    history,
		OnProgress: m.setStatus,
	})
}

// setStatus overwrites the visible status line while a generation runs.
func (m *Machine) setStatus(message string) {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return
	}
	m.status = mediatypes.GenerationStatus{IsLoading: true, StatusMessage: message}
	status := m.status
	m.mu.Unlock()

	logger.Debug("Status updated", "conversation", m.id, "status", message)
	m.observers.notify(Event{ConversationID: m.id, Kind: EventStatus, Status: status})
}

// Must be called with mu held.
func (m *Machine) transitionLocked(to State) {
	if m.state == to {
		return
	}
	logger.Transition(m.id, string(m.state), string(to))
	m.state = to
}

// Must be called with mu held.
func (m *Machine) newMessage(role mediatypes.Role, parts []mediatypes.MessagePart) mediatypes.Message {
	return mediatypes.Message{
		ID:        m.source.NewID(),
		Role:      role,
		Parts:     parts,
		Timestamp: testutils.EpochMillis(m.source.Now()),
	}
}

// Messages returns a copy of the log.
func (m *Machine) Messages() []mediatypes.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneMessages(m.messages)
}

// Len returns the number of messages in the log.
func (m *Machine) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// Status returns the current generation status.
func (m *Machine) Status() mediatypes.GenerationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Busy reports whether a generation is in flight.
func (m *Machine) Busy() bool {
	return m.State() != StateIdle
}

// View returns the log and status read under one lock.
func (m *Machine) View() ([]mediatypes.Message, mediatypes.GenerationStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneMessages(m.messages), m.status
}

func statusFor(t mediatypes.GenerationType) string {
	switch t {
	case mediatypes.GenerationImage:
		return StatusImagining
	case mediatypes.GenerationVideo:
		return StatusDirecting
	default:
		return StatusThinking
	}
}

func replyFor(err error) string {
	if errors.Is(err, generation.ErrEmptyPrompt) {
		return EmptyPromptReply
	}
	return generation.UserMessage(err)
}

func cloneMessages(messages []mediatypes.Message) []mediatypes.Message {
	out := make([]mediatypes.Message, len(messages))
	for i, msg := range messages {
		out[i] = msg.Clone()
	}
	return out
}

func cloneParts(parts []mediatypes.MessagePart) []mediatypes.MessagePart {
	out := make([]mediatypes.MessagePart, len(parts))
	copy(out, parts)
	return out
}
