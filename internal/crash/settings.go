package crash

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/crashlog/internal/platform"
)

// DefaultExitCode matches the status the Go runtime uses for an unrecovered panic.
const DefaultExitCode = 2

// Collector produces the metadata block placed in front of a report.
type Collector interface {
	CollectInfo(ctx *platform.Context) string
}

// CollectorFunc adapts a function to Collector.
type CollectorFunc func(ctx *platform.Context) string

// CollectInfo calls fn(ctx).
func (fn CollectorFunc) CollectInfo(ctx *platform.Context) string {
	return fn(ctx)
}

// WriteResult is delivered once per Write, after the log is durable.
type WriteResult struct {
	Content string
	Path    string
	Err     error
}

// LogWriter persists a failure. The returned channel yields exactly one result.
type LogWriter interface {
	Write(description string, f *Failure) <-chan WriteResult
}

// LogWriterFactory initializes the LogWriter for a handler tag.
type LogWriterFactory func(tag string, ctx *platform.Context) (LogWriter, error)

// Deliverer hands a finished report and its log file to delivery.
// It must not block on the actual transmission.
type Deliverer interface {
	StartDelivery(ctx *platform.Context, report, logPath string) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx *platform.Context, report, logPath string) error

// StartDelivery calls fn(ctx, report, logPath).
func (fn DelivererFunc) StartDelivery(ctx *platform.Context, report, logPath string) error {
	return fn(ctx, report, logPath)
}

// Settings is the handler configuration. It is copied into every handler at
// creation and never changed afterwards.
type Settings struct {
	// Description is written at the top of every crash log.
	Description string
	// Separator goes between the metadata block and the log content.
	Separator string
	// ExitWait is the grace period before the process is terminated.
	ExitWait time.Duration
	// HandoffTimeout bounds how long termination waits for the report job.
	// Zero means only ExitWait is applied.
	HandoffTimeout time.Duration
	// ExitCode is passed to the exit function on termination.
	ExitCode int
	// Collector gathers metadata; selected at configuration time.
	Collector Collector
}

// Validate reports every missing or invalid field.
func (s Settings) Validate() error {
	var problems []string
	if strings.TrimSpace(s.Description) == "" {
		problems = append(problems, "description is required")
	}
	if s.Separator == "" {
		problems = append(problems, "separator is required")
	}
	if s.ExitWait < 0 {
		problems = append(problems, fmt.Sprintf("exit wait must not be negative (got %v)", s.ExitWait))
	}
	if s.HandoffTimeout < 0 {
		problems = append(problems, fmt.Sprintf("handoff timeout must not be negative (got %v)", s.HandoffTimeout))
	}
	if s.Collector == nil {
		problems = append(problems, "collector is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(problems, "; "))
	}
	return nil
}

var (
	// ErrNilContext is returned by Install when no platform context is given.
	ErrNilContext = errors.New("crash: platform context is nil")
	// ErrInvalidSettings wraps settings validation failures.
	ErrInvalidSettings = errors.New("crash: invalid settings")
	// ErrWorkerClosed is returned by Submit after Close.
	ErrWorkerClosed = errors.New("crash: worker closed")
)
