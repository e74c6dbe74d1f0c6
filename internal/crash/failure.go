package crash

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// Thread identifies the goroutine a failure was raised on.
type Thread struct {
	Name string
}

func (t Thread) String() string {
	if t.Name == "" {
		return "unnamed"
	}
	return t.Name
}

// Failure is a recovered panic (or an equivalent fatal error) with its stack.
type Failure struct {
	Value any
	Stack []byte
	Time  time.Time
}

// NewFailure wraps a recovered value. A nil stack is replaced by the caller's.
func NewFailure(value any, stack []byte) *Failure {
	if stack == nil {
		stack = debug.Stack()
	}
	return &Failure{
		Value: value,
		Stack: stack,
		Time:  time.Now().UTC(),
	}
}

// Err returns the panic value as an error when it is one.
func (f *Failure) Err() error {
	if err, ok := f.Value.(error); ok {
		return err
	}
	return nil
}

// Message renders the panic value.
func (f *Failure) Message() string {
	if f.Value == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%v", f.Value)
}

// Content is the text persisted to the crash log: value, type and stack.
func (f *Failure) Content() string {
	var b strings.Builder
	fmt.Fprintf(&b, "panic: %s", f.Message())
	if f.Value != nil {
		fmt.Fprintf(&b, " (%T)", f.Value)
	}
	b.WriteByte('\n')
	if err := f.Err(); err != nil {
		for e := errors.Unwrap(err); e != nil; e = errors.Unwrap(e) {
			fmt.Fprintf(&b, "caused by: %v\n", e)
		}
	}
	if len(f.Stack) > 0 {
		b.WriteByte('\n')
		b.Write(f.Stack)
		if f.Stack[len(f.Stack)-1] != '\n' {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Interceptor receives uncaught failures for the process.
type Interceptor interface {
	UncaughtFailure(t Thread, f *Failure)
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(t Thread, f *Failure)

// UncaughtFailure calls fn(t, f).
func (fn InterceptorFunc) UncaughtFailure(t Thread, f *Failure) {
	fn(t, f)
}

var (
	activeMu sync.Mutex
	active   Interceptor
)

// SetInterceptor makes i the process-wide interceptor and returns the one it
// replaced. A nil i restores the platform default.
func SetInterceptor(i Interceptor) (previous Interceptor) {
	activeMu.Lock()
	defer activeMu.Unlock()
	previous = active
	active = i
	return previous
}

// CurrentInterceptor returns the active interceptor, or nil.
func CurrentInterceptor() Interceptor {
	activeMu.Lock()
	defer activeMu.Unlock()
	return active
}

// Dispatch routes a failure to the active interceptor. With none installed a
// non-nil failure is re-panicked, which is the platform default in Go.
func Dispatch(t Thread, f *Failure) {
	i := CurrentInterceptor()
	if i == nil {
		if f != nil {
			panic(f.Value)
		}
		return
	}
	i.UncaughtFailure(t, f)
}

// Guard recovers a panic on the calling goroutine and dispatches it.
// Usage: defer crash.Guard("worker")
func Guard(thread string) {
	r := recover()
	if r == nil {
		return
	}
	Dispatch(Thread{Name: thread}, NewFailure(r, debug.Stack()))
}

// Go starts fn on a new goroutine guarded by Guard.
func Go(thread string, fn func()) {
	go func() {
		defer Guard(thread)
		fn()
	}()
}
