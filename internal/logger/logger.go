package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// Logger is a component logger with the same printf-style methods as the package.
type Logger struct {
	zl zerolog.Logger
}

var (
	currentLevel = InfoLevel
	root         Logger
)

func init() {
	currentLevel = ParseLevel(os.Getenv("LOG_LEVEL"))
	SetOutput(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// ParseLevel maps DEBUG, INFO, WARN and ERROR (any case) to a Level. Anything
// else is INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DebugLevel
	case "WARN":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetOutput redirects every logger created afterwards, and the package logger, to w.
func SetOutput(w io.Writer) {
	root = Logger{zl: zerolog.New(w).Level(currentLevel.zerolog()).With().Timestamp().Logger()}
}

// SetLevel changes the level of the package logger and of loggers created afterwards.
func SetLevel(l Level) {
	currentLevel = l
	root.zl = root.zl.Level(l.zerolog())
}

// With returns a logger tagging every line with component.
func With(component string) *Logger {
	return &Logger{zl: root.zl.With().Str("component", component).Logger()}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }
func (l *Logger) Info(format string, args ...interface{}) { l.zl.Info().Msgf(format, args...) }
func (l *Logger) Warn(format string, args ...interface{}) { l.zl.Warn().Msgf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.zl.Error().Msgf(format, args...) }

func Debug(format string, args ...interface{}) {
	root.Debug(format, args...)
}

func Info(format string, args ...interface{}) {
	root.Info(format, args...)
}

func Warn(format string, args ...interface{}) {
	root.Warn(format, args...)
}

func Error(format string, args ...interface{}) {
	root.Error(format, args...)
}
