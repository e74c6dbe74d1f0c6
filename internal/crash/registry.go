package crash

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// DefaultTag is the tag of the handler returned by Registry.Default.
const DefaultTag = "crashlog"

// Registry holds exactly one Handler per tag. Handlers are created lazily and
// never removed.
type Registry struct {
	settings  Settings
	newWriter LogWriterFactory
	deliverer Deliverer
	opts      options

	mu       sync.Mutex
	handlers map[string]*Handler
}

// NewRegistry validates settings and returns an empty registry.
func NewRegistry(settings Settings, newWriter LogWriterFactory, deliverer Deliverer, opts ...Option) (*Registry, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if newWriter == nil {
		return nil, errors.New("crash: log writer factory is required")
	}
	if deliverer == nil {
		return nil, errors.New("crash: deliverer is required")
	}
	if settings.ExitCode == 0 {
		settings.ExitCode = DefaultExitCode
	}

	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	return &Registry{
		settings:  settings,
		newWriter: newWriter,
		deliverer: deliverer,
		opts:      o,
		handlers:  make(map[string]*Handler),
	}, nil
}

// GetOrCreate returns the handler for tag, creating it on first use.
func (r *Registry) GetOrCreate(tag string) *Handler {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handlers[tag]; ok {
		return h
	}
	h := newHandler(tag, r.settings, r.newWriter, r.deliverer, r.opts)
	r.handlers[tag] = h
	return h
}

// Lookup returns the handler for tag without creating one.
func (r *Registry) Lookup(tag string) (*Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[tag]
	return h, ok
}

// Default returns the handler for DefaultTag.
func (r *Registry) Default() *Handler {
	return r.GetOrCreate(DefaultTag)
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	tags := make([]string, 0, len(r.handlers))
	for tag := range r.handlers {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Len returns the number of handlers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

func (r *Registry) String() string {
	return fmt.Sprintf("crash.Registry(%d handlers)", r.Len())
}
