// Package credential manages the process-wide API credential used for video
// generation and the external flows that select or renew it.
package credential

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"mediachat/internal/generation"
	"mediachat/internal/logger"
)

// Provider is the credential capability consumed by the video poller.
type Provider interface {
	// HasCredential reports whether a credential has been selected.
	HasCredential(ctx context.Context) bool
	// RequestCredential runs the selection flow and blocks until it either
	// supplies a credential or fails.
	RequestCredential(ctx context.Context) error
	// Credential returns the currently selected credential.
	Credential() string
}

// Selector is an external flow that asks the host for a credential.
type Selector interface {
	Select(ctx context.Context) (string, error)
}

// SelectorFunc adapts a function to the Selector interface.
type SelectorFunc func(ctx context.Context) (string, error)

// Select calls f.
func (f SelectorFunc) Select(ctx context.Context) (string, error) {
	return f(ctx)
}

// Manager holds the lazily established credential and renews it through a
// Selector. It is safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	current  string
	selector Selector
	requests int
}

// NewManager creates a manager with an optional initial credential.
// A nil selector makes every selection request fail.
func NewManager(initial string, selector Selector) *Manager {
	return &Manager{
		current:  strings.TrimSpace(initial),
		selector: selector,
	}
}

// HasCredential reports whether a credential is currently held.
func (m *Manager) HasCredential(_ context.Context) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != ""
}

// Credential returns the held credential.
func (m *Manager) Credential() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// RequestCredential runs the selection flow and stores its result. The held
// credential is only replaced when the flow supplies a non-empty value.
func (m *Manager) RequestCredential(ctx context.Context) error {
	m.mu.Lock()
	m.requests++
	attempt := m.requests
	selector := m.selector
	m.mu.Unlock()

	logger.ServiceOperation("credential", "request", "attempt", attempt)

	if selector == nil {
		return generation.NewError(generation.KindCredential, "credential.request", "", generation.ErrCredentialDeclined)
	}

	key, err := selector.Select(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return generation.Wrap("credential.request", ctx.Err())
		}
		return generation.NewError(generation.KindCredential, "credential.request", "credential selection failed", err)
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return generation.NewError(generation.KindCredential, "credential.request", "", generation.ErrCredentialDeclined)
	}

	m.mu.Lock()
	m.current = key
	m.mu.Unlock()

	logger.Debug("Credential selected", "attempt", attempt, "key", Mask(key))
	return nil
}

// Requests returns how many selection flows have been started.
func (m *Manager) Requests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests
}

// Mask hides all but the last four characters of a credential for logging.
func Mask(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return fmt.Sprintf("%s%s", strings.Repeat("*", len(key)-4), key[len(key)-4:])
}
