package log

import (
	"fmt"
	"strings"
)

// Color codes
const (
	reset      = "\033[0m"
	dim        = "\033[2m"
	green      = "\033[32m"
	yellow     = "\033[33m"
	blue       = "\033[34m"
	magenta    = "\033[35m"
	cyan       = "\033[36m"
	white      = "\033[37m"
	boldRed    = "\033[1;31m"
	boldGreen  = "\033[1;32m"
	boldYellow = "\033[1;33m"
)

// Emojis for different log types
const (
	infoEmoji    = "ℹ️ "
	successEmoji = "✅ "
	errorEmoji   = "❌ "
	warnEmoji    = "⚠️ "
	stepEmoji    = "👉 "
	debugEmoji   = "🔍 "
	commitEmoji  = "📦 "
	undoEmoji    = "⏪ "
	fileEmoji    = "📄 "
	chatEmoji    = "💬 "
)

// Logger struct with debug flag
type Logger struct {
	debug bool
}

// New creates a new logger instance
func New(debug bool) *Logger {
	return &Logger{debug: debug}
}

// formatMessage wraps long lines at a fixed width
func formatMessage(msg string) string {
	width := 80
	lines := strings.Split(msg, "\n")
	var formatted []string

	for _, line := range lines {
		if len(line) <= width {
			formatted = append(formatted, line)
			continue
		}

		words := strings.Fields(line)
		current := ""
		for _, word := range words {
			if len(current)+len(word)+1 > width {
				formatted = append(formatted, current)
				current = word
			} else {
				if current == "" {
					current = word
				} else {
					current += " " + word
				}
			}
		}
		if current != "" {
			formatted = append(formatted, current)
		}
	}

	return strings.Join(formatted, "\n")
}

// Info prints an info message
func (l *Logger) Info(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Printf("%s%s%s%s\n", blue, infoEmoji, formatMessage(msg), reset)
}

// Success prints a success message
func (l *Logger) Success(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Printf("%s%s%s%s\n", boldGreen, successEmoji, formatMessage(msg), reset)
}

// Error prints an error message
func (l *Logger) Error(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Printf("%s%s%s%s\n", boldRed, errorEmoji, formatMessage(msg), reset)
}

// Warning prints a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Printf("%s%s%s%s\n", boldYellow, warnEmoji, formatMessage(msg), reset)
}

// Step prints a step message
func (l *Logger) Step(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Printf("%s%s%s%s\n", cyan, stepEmoji, formatMessage(msg), reset)
}

// Debug prints a debug message if debug is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Printf("%s%s%s%s\n", dim, debugEmoji, formatMessage(msg), reset)
}

// Commit prints a commit-related message
func (l *Logger) Commit(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Printf("%s%s%s%s\n", white, commitEmoji, formatMessage(msg), reset)
}

// Undo prints an undo-related message
func (l *Logger) Undo(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Printf("%s%s%s%s\n", magenta, undoEmoji, formatMessage(msg), reset)
}

// File prints a file-related message
func (l *Logger) File(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Printf("%s%s%s%s\n", yellow, fileEmoji, formatMessage(msg), reset)
}

// Chat prints a conversation-related message
func (l *Logger) Chat(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Printf("%s%s%s%s\n", green, chatEmoji, formatMessage(msg), reset)
}

// IsDebug returns whether debug logging is enabled
func (l *Logger) IsDebug() bool {
	return l.debug
}
