package crash

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/hugo-lorenzo-mato/crashlog/internal/platform"
)

// State is the per-occurrence position of a failure in the handler.
type State int

const (
	StateIdle State = iota
	StateHandling
	StateDelegated
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHandling:
		return "handling"
	case StateDelegated:
		return "delegated"
	case StateTerminating:
		return "terminating"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type options struct {
	logger *slog.Logger
	exit   func(code int)
	sleep  func(ctx context.Context, d time.Duration)
}

// Option configures handlers created by a Registry.
type Option func(*options)

// WithLogger sets the logger used by handlers and their workers.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithExit replaces os.Exit as the termination step.
func WithExit(exit func(code int)) Option {
	return func(o *options) {
		o.exit = exit
	}
}

// WithSleep replaces the exit grace-period wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(o *options) {
		o.sleep = sleep
	}
}

// Handler is the crash interceptor for one tag.
type Handler struct {
	tag       string
	settings  Settings
	newWriter LogWriterFactory
	deliverer Deliverer
	logger    *slog.Logger
	worker    *Worker
	exit      func(code int)
	sleep     func(ctx context.Context, d time.Duration)
	interrupt func() (context.Context, context.CancelFunc)

	mu        sync.Mutex
	ctx       *platform.Context
	previous  Interceptor
	installed bool
}

func newHandler(tag string, settings Settings, newWriter LogWriterFactory, deliverer Deliverer, o options) *Handler {
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("tag", tag)

	h := &Handler{
		tag:       tag,
		settings:  settings,
		newWriter: newWriter,
		deliverer: deliverer,
		logger:    logger,
		worker:    NewWorker("crash:"+tag, logger),
		exit:      o.exit,
		sleep:     o.sleep,
	}
	if h.exit == nil {
		h.exit = os.Exit
	}
	if h.sleep == nil {
		h.sleep = h.waitGrace
	}
	h.interrupt = func() (context.Context, context.CancelFunc) {
		return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	}
	return h
}

// Tag returns the registry key of the handler.
func (h *Handler) Tag() string {
	return h.tag
}

// Installed reports whether Install has been called.
func (h *Handler) Installed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.installed
}

// Previous returns the interceptor that was active when the handler was
// installed, or nil.
func (h *Handler) Previous() Interceptor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.previous
}

// Context returns the platform context given to Install.
func (h *Handler) Context() *platform.Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ctx
}

// Pending returns the number of crash jobs queued or running.
func (h *Handler) Pending() int {
	return h.worker.Pending()
}

// installMu serializes installs across handlers so chain walks see a
// consistent set of previous pointers.
var installMu sync.Mutex

// Install makes h the process-wide interceptor. The interceptor it replaces is
// remembered as previous on the first install only; later calls refresh the
// context and make h active again without touching previous. Use Reinstall
// to re-capture.
func (h *Handler) Install(ctx *platform.Context) error {
	if ctx == nil {
		return ErrNilContext
	}

	installMu.Lock()
	defer installMu.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()

	h.ctx = ctx
	prev := SetInterceptor(h)
	if h.installed {
		return nil
	}
	h.capturePrevious(prev)
	h.installed = true
	h.logger.Debug("crash handler installed", "has_previous", h.previous != nil)
	return nil
}

// Reinstall re-activates h and captures the currently active interceptor as
// previous, unless delegating to it would lead back to h.
func (h *Handler) Reinstall(ctx *platform.Context) error {
	if ctx == nil {
		return ErrNilContext
	}

	installMu.Lock()
	defer installMu.Unlock()
	h.mu.Lock()
	defer h.mu.Unlock()

	h.ctx = ctx
	h.capturePrevious(SetInterceptor(h))
	h.installed = true
	h.logger.Debug("crash handler reinstalled", "has_previous", h.previous != nil)
	return nil
}

// capturePrevious stores prev unless its delegation chain reaches h. In that
// case the old previous is kept. Callers hold installMu and h.mu.
func (h *Handler) capturePrevious(prev Interceptor) {
	if h.reaches(prev) {
		if prev != nil && !h.isSelf(prev) {
			h.logger.Warn("not chaining to interceptor that delegates back to this handler")
		}
		return
	}
	h.previous = prev
}

// reaches reports whether following previous pointers from i arrives at h.
// It never locks h, whose mu the caller holds.
func (h *Handler) reaches(i Interceptor) bool {
	seen := make(map[*Handler]bool)
	for i != nil {
		other, ok := i.(*Handler)
		if !ok {
			return false
		}
		if other == h {
			return true
		}
		if seen[other] {
			return false
		}
		seen[other] = true
		i = other.Previous()
	}
	return false
}

func (h *Handler) isSelf(i Interceptor) bool {
	other, ok := i.(*Handler)
	return ok && other == h
}

// UncaughtFailure handles one failure occurrence. It returns only when the
// failure was delegated; the terminating branch ends the process.
func (h *Handler) UncaughtFailure(t Thread, f *Failure) {
	logger := h.logger.With("thread", t.String())

	if f == nil {
		logger.Debug("no failure to handle", "state", StateDelegated)
		h.delegate(t, f)
		return
	}

	logger.Error("uncaught failure", "state", StateHandling, "panic", f.Message())

	handled, done := h.handle(f)
	if !handled && h.Previous() != nil {
		logger.Warn("crash report not started, delegating", "state", StateDelegated)
		h.delegate(t, f)
		return
	}

	logger.Info("terminating after crash", "state", StateTerminating,
		"report_started", handled,
		"exit_wait", h.settings.ExitWait,
	)
	h.terminate(done)
}

func (h *Handler) delegate(t Thread, f *Failure) {
	if prev := h.Previous(); prev != nil {
		prev.UncaughtFailure(t, f)
	}
}

// handle initializes the log writer and submits the report job. It returns
// true once the job is accepted; done is closed when the job has finished.
func (h *Handler) handle(f *Failure) (handled bool, done <-chan struct{}) {
	defer func() {
		if p := recover(); p != nil {
			h.logger.Error("crash handling panicked",
				"panic", fmt.Sprintf("%v", p),
				"stack", string(debug.Stack()),
			)
			handled, done = false, nil
		}
	}()

	ctx := h.Context()

	w, err := h.newWriter(h.tag, ctx)
	if err != nil {
		h.logger.Error("initializing crash log writer failed", "error", err)
		return false, nil
	}
	if w == nil {
		h.logger.Error("initializing crash log writer failed", "error", "nil writer")
		return false, nil
	}

	done, err = h.worker.Submit(func() {
		h.report(w, ctx, f)
	})
	if err != nil {
		h.logger.Error("submitting crash job failed", "error", err)
		return false, nil
	}
	return true, done
}

// report runs on the worker lane: persist, compose, hand off.
func (h *Handler) report(w LogWriter, ctx *platform.Context, f *Failure) {
	results := w.Write(h.settings.Description, f)
	if results == nil {
		h.logger.Error("crash log writer returned no result channel")
		return
	}

	res, ok := <-results
	if !ok {
		h.logger.Error("crash log writer closed without a result")
		return
	}
	if res.Err != nil {
		h.logger.Error("writing crash log failed", "error", res.Err)
		return
	}

	info := h.settings.Collector.CollectInfo(ctx)
	report := Compose(info, h.settings.Separator, HTMLBreak, res.Content)

	if err := h.deliverer.StartDelivery(ctx, report, res.Path); err != nil {
		h.logger.Error("starting crash delivery failed", "path", res.Path, "error", err)
		return
	}
	h.logger.Info("crash report handed off", "path", res.Path, "bytes", len(report))
}

// terminate waits for the report job (bounded by HandoffTimeout), then the
// exit grace period, then exits. Signals only shorten the waits.
func (h *Handler) terminate(done <-chan struct{}) {
	ctx, stop := h.interrupt()
	defer stop()

	if done != nil && h.settings.HandoffTimeout > 0 {
		timer := time.NewTimer(h.settings.HandoffTimeout)
		select {
		case <-done:
		case <-timer.C:
			h.logger.Warn("crash report still running at termination",
				"timeout", h.settings.HandoffTimeout,
				"pending", h.worker.Pending(),
			)
		case <-ctx.Done():
			h.logger.Warn("wait for crash report interrupted", "error", ctx.Err())
		}
		timer.Stop()
	}

	h.sleep(ctx, h.settings.ExitWait)
	h.exit(h.settings.ExitCode)
}

func (h *Handler) waitGrace(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		h.logger.Warn("exit wait interrupted", "error", ctx.Err())
	}
}
