// Package logger provides centralized logging functionality for mediachat.
// It configures structured logging with support for different output destinations and log levels.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the global logger instance used throughout mediachat.
var Logger *log.Logger

var (
	outputMu sync.Mutex
	output   io.Writer = os.Stderr
	rotator  *lumberjack.Logger
)

func init() {
	Logger = log.New(os.Stderr)
	Logger.SetTimeFormat("")
	Logger.SetLevel(log.InfoLevel)
}

// Configure sets up the logger from CLI flags and environment variables.
// CLI flags take precedence over MEDIACHAT_LOG_LEVEL. When logFile is set,
// output is written through a size-rotated file instead of stderr.
func Configure(logLevel string, logFile string, testMode bool) error {
	level := logLevel
	if level == "" {
		level = strings.ToLower(os.Getenv("MEDIACHAT_LOG_LEVEL"))
	}
	if level == "" {
		level = "info"
	}

	outputMu.Lock()
	defer outputMu.Unlock()

	if rotator != nil {
		_ = rotator.Close()
		rotator = nil
	}

	output = os.Stderr
	if logFile != "" {
		rotator = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		output = rotator
	}

	Logger = log.New(output)
	Logger.SetTimeFormat("")
	if logFile != "" && !testMode {
		Logger.SetTimeFormat("2006-01-02T15:04:05.000Z07:00")
		Logger.SetReportTimestamp(true)
	}
	Logger.SetLevel(parseLogLevel(level))

	if testMode {
		Logger.SetReportTimestamp(false)
		Logger.SetTimeFormat("")
		Logger.SetLevel(log.InfoLevel)
	}

	return nil
}

// Close releases the rotated log file, if any.
func Close() error {
	outputMu.Lock()
	defer outputMu.Unlock()

	if rotator == nil {
		return nil
	}
	err := rotator.Close()
	rotator = nil
	output = os.Stderr
	return err
}

// parseLogLevel converts string to log level
func parseLogLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// Debug logs a debug message with optional key-value pairs.
func Debug(msg interface{}, keyvals ...interface{}) {
	Logger.Debug(msg, keyvals...)
}

// Info logs an info message with optional key-value pairs.
func Info(msg interface{}, keyvals ...interface{}) {
	Logger.Info(msg, keyvals...)
}

// Warn logs a warning message with optional key-value pairs.
func Warn(msg interface{}, keyvals ...interface{}) {
	Logger.Warn(msg, keyvals...)
}

// Error logs an error message with optional key-value pairs.
func Error(msg interface{}, keyvals ...interface{}) {
	Logger.Error(msg, keyvals...)
}

// Fatal logs a fatal message with optional key-value pairs and exits.
func Fatal(msg interface{}, keyvals ...interface{}) {
	Logger.Fatal(msg, keyvals...)
}

// ServiceOperation logs service operation details for debugging.
func ServiceOperation(service string, operation string, details ...interface{}) {
	Debug("Service operation", "service", service, "operation", operation, "details", details)
}

// Transition logs a conversation state transition for debugging.
func Transition(conversationID string, from, to string) {
	Debug("State transition", "conversation", conversationID, "from", from, "to", to)
}

// NewStyledLogger creates a new logger with custom styles and prefix for component-specific logging.
// The prefix parameter names the component (e.g., "Poller", "Server").
func NewStyledLogger(prefix string) *log.Logger {
	styles := log.DefaultStyles()

	styles.Levels[log.InfoLevel] = lipgloss.NewStyle().
		SetString("INFO").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("33")).
		Foreground(lipgloss.Color("15"))

	styles.Levels[log.ErrorLevel] = lipgloss.NewStyle().
		SetString("ERROR").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("196")).
		Foreground(lipgloss.Color("15"))

	styles.Levels[log.DebugLevel] = lipgloss.NewStyle().
		SetString("DEBUG").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("240")).
		Foreground(lipgloss.Color("15"))

	styles.Levels[log.WarnLevel] = lipgloss.NewStyle().
		SetString("WARN").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("214")).
		Foreground(lipgloss.Color("15"))

	styles.Keys["conversation"] = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))
	styles.Keys["operation"] = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	styles.Keys["attempt"] = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styles.Keys["error"] = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styles.Values["error"] = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))

	outputMu.Lock()
	dest := output
	outputMu.Unlock()

	componentLogger := log.NewWithOptions(dest, log.Options{
		Prefix: prefix + " ",
	})
	componentLogger.SetStyles(styles)
	componentLogger.SetLevel(Logger.GetLevel())

	return componentLogger
}
