package crash

import (
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
)

type job struct {
	fn   func()
	done chan struct{}
}

// Worker runs submitted jobs one at a time, in submission order.
//
// The lane goroutine is started by the first Submit and exits once the queue
// is empty; the next Submit starts a new one. Only one lane exists at a time.
type Worker struct {
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	queue   []job
	running bool
	closed  bool
}

// NewWorker creates a worker. A nil logger discards lane diagnostics.
func NewWorker(name string, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Worker{name: name, logger: logger}
}

// Submit queues fn. The returned channel is closed after fn has returned
// (or panicked). Submitted jobs are never dropped.
func (w *Worker) Submit(fn func()) (<-chan struct{}, error) {
	if fn == nil {
		return nil, fmt.Errorf("crash: nil job submitted to %s", w.name)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrWorkerClosed
	}

	j := job{fn: fn, done: make(chan struct{})}
	w.queue = append(w.queue, j)
	if !w.running {
		w.running = true
		go w.lane()
	}
	return j.done, nil
}

// Pending returns the number of queued and running jobs.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(w.queue)
	if w.running {
		n++
	}
	return n
}

// Close stops accepting jobs. Jobs already queued still run.
func (w *Worker) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

func (w *Worker) lane() {
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.running = false
			w.mu.Unlock()
			return
		}
		j := w.queue[0]
		w.queue[0] = job{}
		w.queue = w.queue[1:]
		w.mu.Unlock()

		w.run(j)
	}
}

// run executes one job. A panic inside a crash job must not take the lane
// down with it, otherwise every later failure would be lost.
func (w *Worker) run(j job) {
	defer close(j.done)
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error("crash job panicked",
				"worker", w.name,
				"panic", fmt.Sprintf("%v", p),
				"stack", string(debug.Stack()),
			)
		}
	}()
	j.fn()
}
