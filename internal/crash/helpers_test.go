package crash

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/crashlog/internal/platform"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// recordingWriter writes to dir after delay and records write windows.
type recordingWriter struct {
	dir    string
	delay  time.Duration
	events *eventLog
}

func (w *recordingWriter) Write(description string, f *Failure) <-chan WriteResult {
	ch := make(chan WriteResult, 1)
	name := f.Message()
	w.events.add("write-start " + name)
	go func() {
		time.Sleep(w.delay)
		content := description + "\n" + f.Content()
		path := filepath.Join(w.dir, name+".log")
		err := os.WriteFile(path, []byte(content), 0o600)
		w.events.add("write-done " + name)
		ch <- WriteResult{Content: content, Path: path, Err: err}
	}()
	return ch
}

type recordingDeliverer struct {
	mu      sync.Mutex
	events  *eventLog
	reports []string
	paths   []string
	block   chan struct{}
}

func (d *recordingDeliverer) StartDelivery(_ *platform.Context, report, logPath string) error {
	if d.block != nil {
		<-d.block
	}
	d.mu.Lock()
	d.reports = append(d.reports, report)
	d.paths = append(d.paths, logPath)
	d.mu.Unlock()
	if d.events != nil {
		d.events.add("deliver " + filepath.Base(logPath))
	}
	return nil
}

func (d *recordingDeliverer) calls() ([]string, []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.reports...), append([]string(nil), d.paths...)
}

type recordingInterceptor struct {
	mu       sync.Mutex
	threads  []Thread
	failures []*Failure
}

func (r *recordingInterceptor) UncaughtFailure(t Thread, f *Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threads = append(r.threads, t)
	r.failures = append(r.failures, f)
}

func (r *recordingInterceptor) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failures)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type exitRecorder struct {
	mu    sync.Mutex
	codes []int
	waits []time.Duration
}

func (e *exitRecorder) exit(code int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.codes = append(e.codes, code)
}

func (e *exitRecorder) sleep(_ context.Context, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.waits = append(e.waits, d)
}

func (e *exitRecorder) exitCodes() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.codes...)
}

func testSettings() Settings {
	return Settings{
		Description:    "OOM",
		Separator:      "----",
		ExitWait:       0,
		HandoffTimeout: 2 * time.Second,
		Collector: CollectorFunc(func(*platform.Context) string {
			return "device: test"
		}),
	}
}

var errWriterInit = errors.New("log pipeline unavailable")

// resetInterceptor restores the process-wide slot after a test.
func resetInterceptor(t *testing.T) {
	t.Helper()
	prev := SetInterceptor(nil)
	t.Cleanup(func() {
		SetInterceptor(prev)
	})
}
