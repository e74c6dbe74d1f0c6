package logwriter_test

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/crashlog/internal/crash"
	"github.com/hugo-lorenzo-mato/crashlog/internal/logwriter"
	"github.com/hugo-lorenzo-mato/crashlog/internal/platform"
)

type handoff struct {
	mu      sync.Mutex
	reports []string
	paths   []string
}

func (h *handoff) StartDelivery(_ *platform.Context, report, logPath string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reports = append(h.reports, report)
	h.paths = append(h.paths, logPath)
	return nil
}

// A crash on a guarded goroutine is written to disk, composed with the
// collector output and handed off before the process exits.
func TestPipeline_CrashIsPersistedComposedAndHandedOff(t *testing.T) {
	previous := crash.SetInterceptor(nil)
	t.Cleanup(func() { crash.SetInterceptor(previous) })

	dir := t.TempDir()
	delivered := &handoff{}
	exits := make(chan int, 1)

	settings := crash.Settings{
		Description:    "OOM",
		Separator:      "\n----\n",
		ExitWait:       10 * time.Millisecond,
		HandoffTimeout: 5 * time.Second,
		Collector: crash.CollectorFunc(func(ctx *platform.Context) string {
			return "model: test-rig\napp: " + ctx.AppName
		}),
	}
	registry, err := crash.NewRegistry(settings, logwriter.Factory(dir, logwriter.WithMaxFiles(5)), delivered,
		crash.WithExit(func(code int) { exits <- code }),
	)
	require.NoError(t, err)

	handler := registry.GetOrCreate("billing")
	require.NoError(t, handler.Install(platform.Current("billing", "1.0.0", "")))

	done := make(chan struct{})
	crash.Go("worker-7", func() {
		defer close(done)
		var m map[string]int
		m["boom"]++ // nil map write
	})
	// Guard recovers, the handler runs and the fake exit returns.
	<-done

	select {
	case code := <-exits:
		assert.Equal(t, crash.DefaultExitCode, code)
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not terminate")
	}

	delivered.mu.Lock()
	defer delivered.mu.Unlock()
	require.Len(t, delivered.reports, 1)

	report := delivered.reports[0]
	assert.True(t, strings.HasPrefix(report, "model: test-rig\napp: billing\n----\n<br>crash log\n"), report)
	assert.Contains(t, report, "assignment to entry in nil map")

	entries, err := logwriter.List(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entries[0].Path, delivered.paths[0])
	assert.Equal(t, "billing", entries[0].Tag)

	content, err := logwriter.Read(entries[0].Path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(report, content), "report ends with the log content")
}

// When the log directory cannot be initialized the failure is delegated to
// the previously installed interceptor.
func TestPipeline_WriterInitFailureDelegates(t *testing.T) {
	var got []string
	previous := crash.SetInterceptor(crash.InterceptorFunc(func(th crash.Thread, f *crash.Failure) {
		got = append(got, th.String()+": "+f.Message())
	}))
	t.Cleanup(func() { crash.SetInterceptor(previous) })

	settings := crash.Settings{
		Description: "OOM",
		Separator:   "|",
		Collector:   crash.CollectorFunc(func(*platform.Context) string { return "" }),
	}
	registry, err := crash.NewRegistry(settings, logwriter.Factory(""), crash.DelivererFunc(
		func(*platform.Context, string, string) error { return errors.New("unreachable") },
	), crash.WithExit(func(int) { t.Error("must not exit when delegating") }))
	require.NoError(t, err)

	handler := registry.Default()
	require.NoError(t, handler.Install(platform.Current("billing", "", "")))

	crash.Dispatch(crash.Thread{Name: "main"}, crash.NewFailure("boom", nil))
	assert.Equal(t, []string{"main: boom"}, got)
}
