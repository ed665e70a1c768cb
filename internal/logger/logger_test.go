package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected log.Level
	}{
		{"debug", log.DebugLevel},
		{"INFO", log.InfoLevel},
		{"warn", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"fatal", log.FatalLevel},
		{"bogus", log.InfoLevel},
		{"", log.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestConfigure_LevelPrecedence(t *testing.T) {
	t.Setenv("MEDIACHAT_LOG_LEVEL", "error")

	require.NoError(t, Configure("debug", "", false))
	assert.Equal(t, log.DebugLevel, Logger.GetLevel())

	require.NoError(t, Configure("", "", false))
	assert.Equal(t, log.ErrorLevel, Logger.GetLevel())
}

func TestConfigure_TestModeForcesInfo(t *testing.T) {
	require.NoError(t, Configure("debug", "", true))
	assert.Equal(t, log.InfoLevel, Logger.GetLevel())
}

func TestConfigure_LogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mediachat.log")

	require.NoError(t, Configure("info", path, true))
	Info("hello from test", "key", "value")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
	assert.Contains(t, string(data), "key=value")
}

func TestNewStyledLogger_InheritsLevel(t *testing.T) {
	require.NoError(t, Configure("warn", "", false))
	component := NewStyledLogger("Poller")
	assert.Equal(t, log.WarnLevel, component.GetLevel())
}
