package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/crashlog/internal/bootstrap"
	"github.com/hugo-lorenzo-mato/crashlog/internal/crash"
	"github.com/hugo-lorenzo-mato/crashlog/internal/delivery"
	"github.com/hugo-lorenzo-mato/crashlog/internal/logwriter"
	"github.com/hugo-lorenzo-mato/crashlog/internal/platform"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Deliver crash logs that were never handed off",
	Long: `Watch the crash log directory. A new crash log that has no outbox entry once
the settle period has passed (the crashing process died before its handoff)
is delivered from here, with metadata collected on this host.

With delivery mode none no handoff is ever recorded, so watch refuses to run.`,
	RunE: runWatch,
}

var (
	watchSettle   time.Duration
	watchBackfill bool
)

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchSettle, "settle", 30*time.Second, "grace period before a log counts as orphaned")
	watchCmd.Flags().BoolVar(&watchBackfill, "backfill", false, "check existing crash logs on start")
}

// errWatchModeNone is returned when delivery is disabled.
var errWatchModeNone = errors.New("watch: delivery mode is none, nothing is handed off")

// logLedger is the part of the outbox the watcher reads.
type logLedger interface {
	HasLog(ctx context.Context, logPath string) (bool, error)
}

// orphanWatcher hands off crash logs that have no ledger entry.
type orphanWatcher struct {
	dir     string
	settle  time.Duration
	ledger  logLedger
	handoff func(ctx context.Context, logPath string) error
	logger  *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

func newOrphanWatcher(dir string, settle time.Duration, ledger logLedger,
	handoff func(context.Context, string) error, logger *slog.Logger) *orphanWatcher {
	return &orphanWatcher{
		dir:     dir,
		settle:  settle,
		ledger:  ledger,
		handoff: handoff,
		logger:  logger,
		timers:  make(map[string]*time.Timer),
	}
}

// backfill checks every crash log already in the directory.
func (w *orphanWatcher) backfill(ctx context.Context) error {
	entries, err := logwriter.List(w.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		w.check(ctx, e.Path)
	}
	return nil
}

// run watches until ctx is done. ready, when non-nil, is closed once the
// watch is registered.
func (w *orphanWatcher) run(ctx context.Context, ready chan<- struct{}) error {
	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return fmt.Errorf("creating crash log dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching crash logs", "dir", w.dir, "settle", w.settle)
	if ready != nil {
		close(ready)
	}

	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) {
				continue
			}
			if _, _, ok := logwriter.ParseName(filepath.Base(ev.Name)); ok {
				w.schedule(ctx, ev.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *orphanWatcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, pending := w.timers[path]; pending {
		return
	}
	w.wg.Add(1)
	w.timers[path] = time.AfterFunc(w.settle, func() {
		defer w.wg.Done()
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.check(ctx, path)
	})
}

// stop cancels timers that have not fired and waits for running checks.
func (w *orphanWatcher) stop() {
	w.mu.Lock()
	for path, t := range w.timers {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.timers, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *orphanWatcher) check(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	logger := w.logger.With("path", path)
	has, err := w.ledger.HasLog(ctx, path)
	if err != nil {
		logger.Warn("outbox lookup failed", "error", err)
		return
	}
	if has {
		logger.Debug("crash log already handed off")
		return
	}
	logger.Info("orphaned crash log, delivering")
	if err := w.handoff(ctx, path); err != nil {
		logger.Error("delivering orphaned crash log failed", "error", err)
	}
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, file, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Delivery.Mode == bootstrap.ModeNone {
		return errWatchModeNone
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer logger.Close()

	settings, err := bootstrap.Settings(cfg.Crash)
	if err != nil {
		return err
	}
	d, err := bootstrap.OpenDelivery(cfg, logger.Logger)
	if err != nil {
		return err
	}
	defer d.Close()

	app := appContext(file, cfg.Crash.Tag).With("recovered_by", "watch")
	handoff := func(ctx context.Context, logPath string) error {
		return deliverOrphan(ctx, d.Dispatcher, settings, cfg.Delivery.HandoffDir, app, logPath)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := newOrphanWatcher(cfg.Crash.LogDir, watchSettle, d.Outbox, handoff, logger.Logger)
	if watchBackfill {
		if err := w.backfill(ctx); err != nil {
			return err
		}
	}
	return w.run(ctx, nil)
}

// deliverOrphan rebuilds the report for a crash log and delivers it.
func deliverOrphan(ctx context.Context, d *delivery.Dispatcher, settings crash.Settings,
	handoffDir string, app *platform.Context, logPath string) error {
	content, err := logwriter.Read(logPath)
	if err != nil {
		return err
	}
	report := crash.Compose(settings.Collector.CollectInfo(app), settings.Separator, crash.HTMLBreak, content)
	env := delivery.NewEnvelope(app, report, logPath)

	envPath := ""
	if handoffDir != "" {
		if envPath, err = env.Save(handoffDir); err != nil {
			return err
		}
	}
	return d.Deliver(ctx, env, envPath)
}
