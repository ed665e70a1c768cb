// Package history tracks the conversations of a session, the active one,
// and the message log of each.
package history

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"mediachat/internal/conversation"
	"mediachat/internal/logger"
	"mediachat/internal/testutils"
	"mediachat/pkg/mediatypes"
)

// DefaultTitle is the title of a conversation before its first message.
const DefaultTitle = "New Conversation"

// maxTitleRunes bounds titles derived from the first user message.
const maxTitleRunes = 40

var (
	// ErrNotFound is returned for unknown conversation ids.
	ErrNotFound = errors.New("conversation not found")

	// ErrLastConversation is returned when deleting the only conversation.
	ErrLastConversation = errors.New("cannot delete the last conversation")

	// ErrEmptyTitle is returned when renaming to a blank title.
	ErrEmptyTitle = errors.New("title cannot be empty")
)

// Listener receives a fresh snapshot after every change.
type Listener func(mediatypes.Snapshot)

type entry struct {
	summary     mediatypes.ConversationSummary
	machine     *conversation.Machine
	titled      bool
	unsubscribe func()
}

// Registry is the session/history registry. It owns one conversation
// machine per conversation and routes submissions to the active one.
type Registry struct {
	backends conversation.Backends
	source   testutils.Source

	mu       sync.RWMutex
	order    []string // newest first
	entries  map[string]*entry
	activeID string

	listenerMu sync.RWMutex
	listeners  map[int]Listener
	nextID     int

	wg sync.WaitGroup
}

// NewRegistry creates a registry holding one empty, active conversation.
func NewRegistry(backends conversation.Backends, source testutils.Source) *Registry {
	if source == nil {
		source = testutils.RandomSource{}
	}
	r := &Registry{
		backends:  backends,
		source:    source,
		entries:   make(map[string]*entry),
		listeners: make(map[int]Listener),
	}
	r.create()
	return r
}

// CreateConversation inserts a new conversation at the front of the list and
// makes it active. The visible message log becomes empty.
func (r *Registry) CreateConversation() mediatypes.ConversationSummary {
	summary := r.create()
	r.broadcast()
	return summary
}

func (r *Registry) create() mediatypes.ConversationSummary {
	id := r.source.NewID()
	machine := conversation.New(id, r.backends, r.source)
	e := &entry{
		summary: mediatypes.ConversationSummary{
			ID:          id,
			Title:       DefaultTitle,
			LastUpdated: testutils.EpochMillis(r.source.Now()),
		},
		machine: machine,
	}
	e.unsubscribe = machine.Subscribe(r.observe)

	r.mu.Lock()
	r.entries[id] = e
	r.order = append([]string{id}, r.order...)
	r.activeID = id
	r.mu.Unlock()

	logger.ServiceOperation("history", "create", "conversation", id)
	return e.summary
}

// observe keeps the summary of a conversation current with its log.
func (r *Registry) observe(event conversation.Event) {
	if event.Kind == conversation.EventMessage {
		r.mu.Lock()
		if e, ok := r.entries[event.ConversationID]; ok {
			e.summary.LastUpdated = event.Message.Timestamp
			if !e.titled && event.Message.Role == mediatypes.RoleUser {
				e.summary.Title = deriveTitle(event.Message.Text())
				e.titled = true
			}
		}
		r.mu.Unlock()
	}
	r.broadcast()
}

// SelectConversation makes id the active conversation.
func (r *Registry) SelectConversation(id string) error {
	r.mu.Lock()
	if _, ok := r.entries[id]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	previous := r.activeID
	r.activeID = id
	r.mu.Unlock()

	logger.ServiceOperation("history", "select", "from", previous, "to", id)
	r.broadcast()
	return nil
}

// Rename sets the title of a conversation.
func (r *Registry) Rename(id string, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}

	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.summary.Title = title
	e.titled = true
	r.mu.Unlock()

	r.broadcast()
	return nil
}

// Delete removes a conversation. Deleting the active conversation activates
// the next newest one. The last conversation cannot be deleted.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if len(r.entries) == 1 {
		r.mu.Unlock()
		return ErrLastConversation
	}

	delete(r.entries, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.activeID == id {
		r.activeID = r.order[0]
	}
	r.mu.Unlock()

	e.unsubscribe()
	logger.ServiceOperation("history", "delete", "conversation", id)
	r.broadcast()
	return nil
}

// Conversations returns the summaries, newest first.
func (r *Registry) Conversations() []mediatypes.ConversationSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.summariesLocked()
}

// Must be called with mu held.
func (r *Registry) summariesLocked() []mediatypes.ConversationSummary {
	summaries := make([]mediatypes.ConversationSummary, 0, len(r.order))
	for _, id := range r.order {
		summaries = append(summaries, r.entries[id].summary)
	}
	return summaries
}

// ActiveID returns the active conversation id.
func (r *Registry) ActiveID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeID
}

// Active returns the active conversation.
func (r *Registry) Active() *conversation.Machine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[r.activeID].machine
}

// Get returns the conversation with the given id.
func (r *Registry) Get(id string) (*conversation.Machine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.machine, nil
}

// Summary returns the summary of one conversation.
func (r *Registry) Summary(id string) (mediatypes.ConversationSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return mediatypes.ConversationSummary{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.summary, nil
}

// Find resolves a conversation by exact id, 1-based list position, or a
// unique id or title prefix.
func (r *Registry) Find(identifier string) (mediatypes.ConversationSummary, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return mediatypes.ConversationSummary{}, fmt.Errorf("conversation identifier cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// 1. Exact id
	if e, ok := r.entries[identifier]; ok {
		return e.summary, nil
	}

	// 2. List position
	if n, err := strconv.Atoi(identifier); err == nil {
		if n >= 1 && n <= len(r.order) {
			return r.entries[r.order[n-1]].summary, nil
		}
		return mediatypes.ConversationSummary{}, fmt.Errorf("no conversation at position %d", n)
	}

	// 3. Prefix matching
	lower := strings.ToLower(identifier)
	var matches []mediatypes.ConversationSummary
	for _, id := range r.order {
		summary := r.entries[id].summary
		if strings.HasPrefix(id, identifier) || strings.HasPrefix(strings.ToLower(summary.Title), lower) {
			matches = append(matches, summary)
		}
	}

	switch len(matches) {
	case 0:
		return mediatypes.ConversationSummary{}, fmt.Errorf("%w: %s", ErrNotFound, identifier)
	case 1:
		return matches[0], nil
	default:
		titles := make([]string, 0, len(matches))
		for _, match := range matches {
			titles = append(titles, match.Title)
		}
		return mediatypes.ConversationSummary{}, fmt.Errorf("multiple conversations match '%s': %s", identifier, strings.Join(titles, ", "))
	}
}

// Snapshot returns the complete view state. The summaries, active id and
// active log are read together so the log always belongs to the active
// conversation.
func (r *Registry) Snapshot() mediatypes.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	messages, status := r.entries[r.activeID].machine.View()
	return mediatypes.Snapshot{
		Conversations: r.summariesLocked(),
		ActiveID:      r.activeID,
		Messages:      messages,
		Status:        status,
	}
}

// Submit sends text to the active conversation and blocks until the reply
// has been appended. The result is delivered to the conversation that was
// active at submission time even if another one is selected meanwhile.
func (r *Registry) Submit(ctx context.Context, text string) error {
	return r.Active().Submit(ctx, text)
}

// SubmitTo sends text to a specific conversation.
func (r *Registry) SubmitTo(ctx context.Context, id string, text string) error {
	machine, err := r.Get(id)
	if err != nil {
		return err
	}
	return machine.Submit(ctx, text)
}

// SubmitAsync validates and starts a submission to conversation id in the
// background. Rejections are reported synchronously.
func (r *Registry) SubmitAsync(ctx context.Context, id string, text string) error {
	machine, err := r.Get(id)
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return conversation.ErrBlankInput
	}
	if machine.Busy() {
		return conversation.ErrBusy
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := machine.Submit(ctx, text); err != nil {
			logger.Warn("Background submission rejected", "conversation", id, "error", err)
		}
	}()
	return nil
}

// Wait blocks until all background submissions have finished.
func (r *Registry) Wait() {
	r.wg.Wait()
}

// Subscribe registers fn for snapshots after every change. The returned
// function removes the subscription.
func (r *Registry) Subscribe(fn Listener) func() {
	r.listenerMu.Lock()
	defer r.listenerMu.Unlock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	return func() {
		r.listenerMu.Lock()
		defer r.listenerMu.Unlock()
		delete(r.listeners, id)
	}
}

func (r *Registry) broadcast() {
	r.listenerMu.RLock()
	if len(r.listeners) == 0 {
		r.listenerMu.RUnlock()
		return
	}
	listeners := make([]Listener, 0, len(r.listeners))
	for _, fn := range r.listeners {
		listeners = append(listeners, fn)
	}
	r.listenerMu.RUnlock()

	snapshot := r.Snapshot()
	for _, fn := range listeners {
		fn(snapshot)
	}
}

// deriveTitle shortens the first user message into a conversation title.
func deriveTitle(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return DefaultTitle
	}
	runes := []rune(text)
	if len(runes) <= maxTitleRunes {
		return text
	}
	return strings.TrimSpace(string(runes[:maxTitleRunes]))
}
