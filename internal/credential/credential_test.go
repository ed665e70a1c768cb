package credential

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediachat/internal/generation"
)

func TestManager_InitialCredential(t *testing.T) {
	ctx := context.Background()

	assert.False(t, NewManager("", nil).HasCredential(ctx))
	assert.False(t, NewManager("   ", nil).HasCredential(ctx))

	m := NewManager(" key-1 ", nil)
	assert.True(t, m.HasCredential(ctx))
	assert.Equal(t, "key-1", m.Credential())
}

func TestManager_RequestCredential(t *testing.T) {
	calls := 0
	m := NewManager("", SelectorFunc(func(context.Context) (string, error) {
		calls++
		return "fresh-key", nil
	}))

	require.NoError(t, m.RequestCredential(context.Background()))
	assert.Equal(t, "fresh-key", m.Credential())
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, m.Requests())
}

func TestManager_RequestCredentialFailures(t *testing.T) {
	tests := []struct {
		name     string
		selector Selector
		sentinel error
	}{
		{name: "no selector", selector: nil, sentinel: generation.ErrCredentialDeclined},
		{name: "declined", selector: SelectorFunc(func(context.Context) (string, error) { return "  ", nil })},
		{name: "flow error", selector: SelectorFunc(func(context.Context) (string, error) { return "", errors.New("closed") })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("old-key", tt.selector)
			err := m.RequestCredential(context.Background())
			require.Error(t, err)
			assert.Equal(t, generation.KindCredential, generation.KindOf(err))
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			}
			assert.Equal(t, "old-key", m.Credential(), "failed flow keeps the previous credential")
		})
	}
}

func TestManager_RequestCredentialCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager("", SelectorFunc(func(ctx context.Context) (string, error) {
		cancel()
		return "", ctx.Err()
	}))

	err := m.RequestCredential(ctx)
	assert.Equal(t, generation.KindCancelled, generation.KindOf(err))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", Mask(""))
	assert.Equal(t, "***", Mask("abc"))
	assert.Equal(t, "******7890", Mask("1234567890"))
}

func TestEnvSelector(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")

	t.Setenv("MEDIACHAT_TEST_VIDEO_KEY", "")
	selector := NewEnvSelector([]string{envFile}, "MEDIACHAT_TEST_VIDEO_KEY")

	_, err := selector.Select(context.Background())
	assert.Error(t, err)

	t.Setenv("MEDIACHAT_TEST_VIDEO_KEY", "from-env")
	key, err := selector.Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)

	require.NoError(t, os.WriteFile(envFile, []byte("MEDIACHAT_TEST_VIDEO_KEY=from-file\n"), 0600))
	key, err = selector.Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-file", key, "files win so a renewed key can be dropped in")
}

type scriptedReader struct {
	line  string
	err   error
	delay time.Duration
}

func (s scriptedReader) ReadPassword(string) ([]byte, error) {
	time.Sleep(s.delay)
	return []byte(s.line), s.err
}

func TestPromptSelector(t *testing.T) {
	key, err := NewPromptSelector(scriptedReader{line: " pasted-key \n"}, "").Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pasted-key", key)

	_, err = NewPromptSelector(scriptedReader{err: errors.New("interrupt")}, "key: ").Select(context.Background())
	assert.ErrorContains(t, err, "interrupt")
}

func TestPromptSelector_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPromptSelector(scriptedReader{line: "late", delay: 50 * time.Millisecond}, "").Select(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChainSelector(t *testing.T) {
	failing := SelectorFunc(func(context.Context) (string, error) { return "", errors.New("unset") })
	working := SelectorFunc(func(context.Context) (string, error) { return "second", nil })

	key, err := ChainSelector{failing, working}.Select(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", key)

	_, err = ChainSelector{failing}.Select(context.Background())
	assert.ErrorContains(t, err, "unset")

	_, err = ChainSelector{}.Select(context.Background())
	assert.Error(t, err)
}
