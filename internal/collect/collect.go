// Package collect provides the metadata collectors placed in front of crash
// reports. Each collector renders one or more sections:
//
//	== device ==
//	hostname: build-7
//	cpu_model: AMD EPYC 7B13
//
// Collectors never fail: a probe that errors is left out of the output.
package collect

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/hugo-lorenzo-mato/crashlog/internal/crash"
	"github.com/hugo-lorenzo-mato/crashlog/internal/platform"
)

// ErrUnknownCollector is returned by ByName.
var ErrUnknownCollector = errors.New("collect: unknown collector")

// Field is one key: value line.
type Field struct {
	Key   string
	Value string
}

// Section is a named block of fields.
type Section struct {
	Name   string
	Fields []Field
}

// Add appends a field; empty values are skipped.
func (s *Section) Add(key, value string) {
	if value == "" {
		return
	}
	s.Fields = append(s.Fields, Field{Key: key, Value: value})
}

// Addf appends a formatted field.
func (s *Section) Addf(key, format string, args ...any) {
	s.Add(key, fmt.Sprintf(format, args...))
}

func (s Section) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", s.Name)
	for _, f := range s.Fields {
		fmt.Fprintf(&b, "%s: %s\n", f.Key, f.Value)
	}
	return b.String()
}

// Names lists the collectors ByName accepts.
func Names() []string {
	return []string{"app", "runtime", "device", "full"}
}

// ByName returns the collector configured under name.
func ByName(name string) (crash.Collector, error) {
	switch name {
	case "app":
		return App{}, nil
	case "runtime":
		return Runtime{}, nil
	case "device":
		return NewDevice(), nil
	case "full":
		return Multi(App{}, Runtime{}, NewDevice()), nil
	default:
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownCollector, name, strings.Join(Names(), ", "))
	}
}

type multi struct {
	collectors []crash.Collector
	logger     *slog.Logger
}

// Multi concatenates the output of several collectors, separated by a blank
// line. A collector that panics is replaced by an error section.
func Multi(collectors ...crash.Collector) crash.Collector {
	return &multi{collectors: collectors, logger: slog.Default()}
}

func (m *multi) CollectInfo(ctx *platform.Context) string {
	parts := make([]string, 0, len(m.collectors))
	for _, c := range m.collectors {
		if c == nil {
			continue
		}
		if out := m.safeCollect(c, ctx); out != "" {
			parts = append(parts, strings.TrimRight(out, "\n")+"\n")
		}
	}
	return strings.Join(parts, "\n")
}

func (m *multi) safeCollect(c crash.Collector, ctx *platform.Context) (out string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("collector panicked", "collector", fmt.Sprintf("%T", c), "panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()))
			s := Section{Name: "error"}
			s.Addf("collector", "%T", c)
			s.Addf("panic", "%v", r)
			out = s.String()
		}
	}()
	return c.CollectInfo(ctx)
}

type static struct {
	section Section
}

// Static returns a collector that always renders values under name, with
// keys sorted.
func Static(name string, values map[string]string) crash.Collector {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s := Section{Name: name}
	for _, k := range keys {
		s.Add(k, values[k])
	}
	return static{section: s}
}

func (s static) CollectInfo(*platform.Context) string {
	return s.section.String()
}
