package credential

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"mediachat/internal/logger"
)

// EnvSelector re-reads a credential from the environment and .env files
// each time it is asked, so that a renewed key can be dropped in while a
// request is waiting. Files are consulted first, in order, then the
// process environment.
type EnvSelector struct {
	Variables []string
	Files     []string
}

// NewEnvSelector creates an EnvSelector for the given variable names.
func NewEnvSelector(files []string, variables ...string) *EnvSelector {
	return &EnvSelector{Variables: variables, Files: files}
}

// Select returns the first non-empty value found.
func (s *EnvSelector) Select(_ context.Context) (string, error) {
	for _, file := range s.Files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		values, err := godotenv.Read(file)
		if err != nil {
			logger.Warn("Failed to read credential file", "file", file, "error", err)
			continue
		}
		for _, name := range s.Variables {
			if v := strings.TrimSpace(values[name]); v != "" {
				return v, nil
			}
		}
	}

	for _, name := range s.Variables {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, nil
		}
	}

	return "", fmt.Errorf("none of %s is set", strings.Join(s.Variables, ", "))
}

// PasswordReader reads a line without echoing it, as readline.Instance does.
type PasswordReader interface {
	ReadPassword(prompt string) ([]byte, error)
}

// PromptSelector asks the terminal user to paste a key.
type PromptSelector struct {
	reader PasswordReader
	prompt string
}

// NewPromptSelector creates a PromptSelector reading from reader.
func NewPromptSelector(reader PasswordReader, prompt string) *PromptSelector {
	if prompt == "" {
		prompt = "Paste an API key for video generation (empty to cancel): "
	}
	return &PromptSelector{reader: reader, prompt: prompt}
}

type readResult struct {
	line []byte
	err  error
}

// Select blocks until the user answers or ctx is done.
func (s *PromptSelector) Select(ctx context.Context) (string, error) {
	done := make(chan readResult, 1)
	go func() {
		line, err := s.reader.ReadPassword(s.prompt)
		done <- readResult{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		if res.err != nil {
			return "", fmt.Errorf("failed to read API key: %w", res.err)
		}
		return strings.TrimSpace(string(res.line)), nil
	}
}

// ChainSelector tries selectors in order until one supplies a credential.
type ChainSelector []Selector

// Select returns the first credential produced by the chain.
func (c ChainSelector) Select(ctx context.Context) (string, error) {
	var lastErr error
	for _, selector := range c {
		key, err := selector.Select(ctx)
		if err == nil && strings.TrimSpace(key) != "" {
			return key, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no credential selected")
	}
	return "", lastErr
}
