package collect

import (
	"sort"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/crashlog/internal/platform"
)

// App renders the platform context.
type App struct{}

// CollectInfo implements crash.Collector.
func (App) CollectInfo(ctx *platform.Context) string {
	s := Section{Name: "app"}
	if ctx == nil {
		return s.String()
	}

	s.Add("name", ctx.AppName)
	s.Add("version", ctx.Version)
	s.Add("commit", ctx.Commit)
	if ctx.PID > 0 {
		s.Addf("pid", "%d", ctx.PID)
	}
	s.Add("executable", ctx.Executable)
	s.Add("work_dir", ctx.WorkDir)
	s.Add("args", strings.Join(ctx.Args, " "))
	if !ctx.StartedAt.IsZero() {
		s.Add("started_at", ctx.StartedAt.UTC().Format(time.RFC3339))
		s.Add("uptime", ctx.Uptime().Round(time.Second).String())
	}

	keys := make([]string, 0, len(ctx.Values))
	for k := range ctx.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.Add(k, ctx.Values[k])
	}
	return s.String()
}
