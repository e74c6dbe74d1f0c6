// Package logging builds the slog loggers used by crashlog. Every handler is
// wrapped so that credentials (SMTP passwords, upload tokens, API keys) never
// reach a log sink, including the crash logs themselves.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/term"
)

// Logger wraps slog.Logger with the sanitizer that guards its output.
type Logger struct {
	*slog.Logger
	sanitizer *Sanitizer
	closer    io.Closer
}

// Config configures the logger.
type Config struct {
	Level     string
	Format    string // auto, text, json
	Output    io.Writer
	File      string // when set, logs are appended here instead of Output
	AddSource bool
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "auto",
		Output: os.Stderr,
	}
}

// New creates a logger. A File that cannot be opened is an error; the caller
// decides whether to fall back to stderr.
func New(cfg Config) (*Logger, error) {
	var closer io.Closer
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o750); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cfg.Output = f
		closer = f
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	sanitizer := NewSanitizer()
	handler := NewSanitizingHandler(newHandler(cfg), sanitizer)

	return &Logger{
		Logger:    slog.New(handler),
		sanitizer: sanitizer,
		closer:    closer,
	}, nil
}

func newHandler(cfg Config) slog.Handler {
	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	switch cfg.Format {
	case "json":
		return slog.NewJSONHandler(cfg.Output, opts)
	case "text":
		return slog.NewTextHandler(cfg.Output, opts)
	default: // auto
		if isTerminal(cfg.Output) {
			return NewPrettyHandler(cfg.Output, level)
		}
		return slog.NewJSONHandler(cfg.Output, opts)
	}
}

// NewNop creates a logger that discards everything.
func NewNop() *Logger {
	return &Logger{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		sanitizer: NewSanitizer(),
	}
}

// ParseLevel maps a config level name to a slog level. Unknown names are info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// Close releases the log file, if one was opened.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// WithTag returns a logger scoped to a crash handler tag.
func (l *Logger) WithTag(tag string) *Logger {
	return l.With("tag", tag)
}

// WithReport returns a logger scoped to one crash report.
func (l *Logger) WithReport(id string) *Logger {
	return l.With("report_id", id)
}

// With returns a logger with custom fields.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(args...),
		sanitizer: l.sanitizer,
		closer:    l.closer,
	}
}

// Sanitizer returns the sanitizer used by this logger.
func (l *Logger) Sanitizer() *Sanitizer {
	return l.sanitizer
}

// Sanitize sanitizes a string using the logger's sanitizer.
func (l *Logger) Sanitize(input string) string {
	return l.sanitizer.Sanitize(input)
}
