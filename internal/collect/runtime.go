package collect

import (
	"runtime"
	"time"

	"github.com/hugo-lorenzo-mato/crashlog/internal/platform"
)

// Runtime renders Go runtime state at the moment of the crash.
type Runtime struct{}

// CollectInfo implements crash.Collector.
func (Runtime) CollectInfo(ctx *platform.Context) string {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s := Section{Name: "runtime"}
	s.Add("go_version", runtime.Version())
	s.Addf("os_arch", "%s/%s", runtime.GOOS, runtime.GOARCH)
	s.Addf("num_cpu", "%d", runtime.NumCPU())
	s.Addf("gomaxprocs", "%d", runtime.GOMAXPROCS(0))
	s.Addf("goroutines", "%d", runtime.NumGoroutine())
	s.Addf("heap_alloc_mb", "%.2f", float64(ms.HeapAlloc)/1024/1024)
	s.Addf("heap_in_use_mb", "%.2f", float64(ms.HeapInuse)/1024/1024)
	s.Addf("stack_in_use_mb", "%.2f", float64(ms.StackInuse)/1024/1024)
	s.Addf("sys_mb", "%.2f", float64(ms.Sys)/1024/1024)
	s.Addf("num_gc", "%d", ms.NumGC)
	if ms.NumGC > 0 {
		s.Add("last_gc_pause", time.Duration(ms.PauseNs[(ms.NumGC+255)%256]).String())
	}
	if open, limit := CountFDs(); open > 0 {
		s.Addf("open_fds", "%d", open)
		if limit > 0 {
			s.Addf("max_fds", "%d", limit)
		}
	}
	if ctx != nil && !ctx.StartedAt.IsZero() {
		s.Add("uptime", ctx.Uptime().Round(time.Millisecond).String())
	}
	return s.String()
}
