// Package logwriter persists crash logs to a directory, one file per failure.
//
// A Writer is created per crash handler tag. Write renders the failure as a
// plain-text log, stores it durably and reports the outcome exactly once on
// the returned channel.
package logwriter

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/crashlog/internal/crash"
	"github.com/hugo-lorenzo-mato/crashlog/internal/logging"
	"github.com/hugo-lorenzo-mato/crashlog/internal/platform"
)

const (
	filePrefix = "crash-"
	fileSuffix = ".log"
	timeLayout = "20060102T150405.000Z"
)

// ErrNotFound is returned when a directory holds no crash logs.
var ErrNotFound = errors.New("logwriter: no crash logs found")

var unsafeTagChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Writer writes crash logs for one tag.
type Writer struct {
	dir        string
	tag        string
	app        *platform.Context
	maxFiles   int
	includeEnv bool
	logger     *slog.Logger
	sanitizer  *logging.Sanitizer
	now        func() time.Time
}

// Option configures a Writer.
type Option func(*Writer)

// WithMaxFiles keeps at most n crash logs in the directory. Zero keeps all.
func WithMaxFiles(n int) Option {
	return func(w *Writer) {
		w.maxFiles = n
	}
}

// WithEnvironment appends the redacted process environment to each log.
func WithEnvironment(include bool) Option {
	return func(w *Writer) {
		w.includeEnv = include
	}
}

// WithLogger sets the logger for retention problems.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) {
		w.logger = logger
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		w.now = now
	}
}

// New creates the directory if needed and checks that it is writable.
func New(dir, tag string, app *platform.Context, opts ...Option) (*Writer, error) {
	if dir == "" {
		return nil, errors.New("logwriter: directory is required")
	}
	w := &Writer{
		dir:       dir,
		tag:       tag,
		app:       app,
		sanitizer: logging.NewSanitizer(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating crash log dir: %w", err)
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("crash log dir not writable: %w", err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	return w, nil
}

// Factory adapts New to crash.LogWriterFactory.
func Factory(dir string, opts ...Option) crash.LogWriterFactory {
	return func(tag string, app *platform.Context) (crash.LogWriter, error) {
		w, err := New(dir, tag, app, opts...)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}

// Dir returns the crash log directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Write renders and stores the log in the background. The channel receives
// one result and is then closed.
func (w *Writer) Write(description string, f *crash.Failure) <-chan crash.WriteResult {
	results := make(chan crash.WriteResult, 1)
	go func() {
		defer close(results)
		results <- w.write(description, f)
	}()
	return results
}

func (w *Writer) write(description string, f *crash.Failure) crash.WriteResult {
	if f == nil {
		return crash.WriteResult{Err: errors.New("logwriter: nil failure")}
	}

	now := w.now().UTC()
	content := w.render(now, description, f)
	path := filepath.Join(w.dir, fileName(w.tag, now))

	if err := writeFile(path, []byte(content)); err != nil {
		return crash.WriteResult{Content: content, Err: fmt.Errorf("writing crash log: %w", err)}
	}
	w.prune()

	return crash.WriteResult{Content: content, Path: path}
}

func (w *Writer) render(now time.Time, description string, f *crash.Failure) string {
	var b strings.Builder

	b.WriteString("crash log\n")
	fmt.Fprintf(&b, "time:    %s\n", now.Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "tag:     %s\n", w.tag)
	fmt.Fprintf(&b, "pid:     %d\n", os.Getpid())
	if w.app != nil {
		app := w.app.AppName
		if w.app.Version != "" {
			app += " " + w.app.Version
		}
		if w.app.Commit != "" {
			app += " (" + w.app.Commit + ")"
		}
		fmt.Fprintf(&b, "app:     %s\n", app)
	}
	fmt.Fprintf(&b, "runtime: %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if !f.Time.IsZero() {
		fmt.Fprintf(&b, "failed:  %s\n", f.Time.UTC().Format(time.RFC3339Nano))
	}
	b.WriteString("\n")
	b.WriteString(description)
	b.WriteString("\n\n")
	b.WriteString(f.Content())

	if w.includeEnv {
		b.WriteString("\n== environment ==\n")
		env := w.redactEnvironment()
		keys := make([]string, 0, len(env))
		for k := range env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s=%s\n", k, env[k])
		}
	}

	return b.String()
}

var sensitiveSubstrings = []string{
	"TOKEN", "KEY", "SECRET", "PASSWORD", "PASSWD", "CREDENTIAL",
	"AUTH", "PRIVATE", "SMTP_PASS",
}

func (w *Writer) redactEnvironment() map[string]string {
	result := make(map[string]string)
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok || key == "" {
			continue
		}
		upper := strings.ToUpper(key)
		sensitive := false
		for _, s := range sensitiveSubstrings {
			if strings.Contains(upper, s) {
				sensitive = true
				break
			}
		}
		if sensitive {
			result[key] = "[REDACTED]"
			continue
		}
		result[key] = w.sanitizer.Sanitize(value)
	}
	return result
}

// prune removes the oldest crash logs beyond maxFiles.
func (w *Writer) prune() {
	if w.maxFiles <= 0 {
		return
	}
	entries, err := List(w.dir)
	if err != nil {
		w.logger.Warn("listing crash logs for retention failed", "dir", w.dir, "error", err)
		return
	}
	for _, e := range entries[min(len(entries), w.maxFiles):] {
		if err := os.Remove(e.Path); err != nil {
			w.logger.Warn("failed to remove old crash log", "path", e.Path, "error", err)
		}
	}
}

// SafeTag maps a tag to the characters allowed in file names.
func SafeTag(tag string) string {
	if tag == "" {
		return "untagged"
	}
	return unsafeTagChars.ReplaceAllString(tag, "_")
}

func fileName(tag string, t time.Time) string {
	return fmt.Sprintf("%s%s-%s-%s%s", filePrefix, SafeTag(tag), t.Format(timeLayout), shortID(), fileSuffix)
}

func shortID() string {
	id, err := uuid.NewRandom()
	if err == nil {
		return strings.ReplaceAll(id.String(), "-", "")[:8]
	}
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
