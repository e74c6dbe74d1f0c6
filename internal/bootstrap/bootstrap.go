// Package bootstrap turns a loaded configuration into a ready crash pipeline:
// handler settings, the crash log factory and the configured deliverer.
package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hugo-lorenzo-mato/crashlog/internal/collect"
	"github.com/hugo-lorenzo-mato/crashlog/internal/config"
	"github.com/hugo-lorenzo-mato/crashlog/internal/crash"
	"github.com/hugo-lorenzo-mato/crashlog/internal/delivery"
	"github.com/hugo-lorenzo-mato/crashlog/internal/logwriter"
	"github.com/hugo-lorenzo-mato/crashlog/internal/outbox"
)

// Delivery modes.
const (
	ModeProcess = "process"
	ModeInline  = "inline"
	ModeNone    = "none"
)

// Settings converts the crash section into handler settings.
func Settings(cfg config.CrashConfig) (crash.Settings, error) {
	exitWait, err := parseDuration("crash.exit_wait", cfg.ExitWait)
	if err != nil {
		return crash.Settings{}, err
	}
	handoff, err := parseDuration("crash.handoff_timeout", cfg.HandoffTimeout)
	if err != nil {
		return crash.Settings{}, err
	}
	collector, err := collect.ByName(cfg.Collector)
	if err != nil {
		return crash.Settings{}, err
	}
	return crash.Settings{
		Description:    cfg.Description,
		Separator:      cfg.Separator,
		ExitWait:       exitWait,
		HandoffTimeout: handoff,
		ExitCode:       cfg.ExitCode,
		Collector:      collector,
	}, nil
}

// LogWriterFactory returns the crash log factory for the crash section.
func LogWriterFactory(cfg config.CrashConfig, logger *slog.Logger) crash.LogWriterFactory {
	return logwriter.Factory(cfg.LogDir,
		logwriter.WithMaxFiles(cfg.MaxFiles),
		logwriter.WithEnvironment(cfg.IncludeEnv),
		logwriter.WithLogger(logger),
	)
}

// Transports builds the enabled delivery transports.
func Transports(cfg config.DeliveryConfig, logger *slog.Logger) ([]delivery.Transport, error) {
	var transports []delivery.Transport
	if cfg.Email.Enabled {
		email, err := delivery.NewEmailSender(delivery.EmailOptions{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
			Subject:  cfg.Email.Subject,
		})
		if err != nil {
			return nil, err
		}
		transports = append(transports, email)
	}
	if cfg.Upload.Enabled {
		timeout, err := parseDuration("delivery.upload.timeout", cfg.Upload.Timeout)
		if err != nil {
			return nil, err
		}
		upload, err := delivery.NewUploader(delivery.UploadOptions{
			URL:        cfg.Upload.URL,
			Token:      cfg.Upload.Token,
			Timeout:    timeout,
			MaxRetries: cfg.Upload.MaxRetries,
		}, logger)
		if err != nil {
			return nil, err
		}
		transports = append(transports, upload)
	}
	return transports, nil
}

// Delivery is a dispatcher with its ledger. Close releases the ledger.
type Delivery struct {
	*delivery.Dispatcher
	Outbox *outbox.Store
}

// Close closes the outbox.
func (d *Delivery) Close() error {
	if d == nil || d.Outbox == nil {
		return nil
	}
	return d.Outbox.Close()
}

// OpenDelivery opens the outbox and builds a dispatcher over the configured
// transports.
func OpenDelivery(cfg *config.Config, logger *slog.Logger) (*Delivery, error) {
	transports, err := Transports(cfg.Delivery, logger)
	if err != nil {
		return nil, err
	}
	store, err := outbox.Open(cfg.Outbox.Path)
	if err != nil {
		return nil, err
	}
	d := delivery.NewDispatcher(cfg.Delivery.SendWithNet,
		delivery.WithTransports(transports...),
		delivery.WithLedger(store),
		delivery.WithLogger(logger),
	)
	return &Delivery{Dispatcher: d, Outbox: store}, nil
}

// Pipeline is an assembled crash registry.
type Pipeline struct {
	Registry *crash.Registry
	Tag      string
	Mode     string

	closers []io.Closer
}

// Handler returns the handler for the configured tag.
func (p *Pipeline) Handler() *crash.Handler {
	return p.Registry.GetOrCreate(p.Tag)
}

// Close releases resources held for inline delivery.
func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Option configures New.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	crashOpts  []crash.Option
	deliverer  crash.Deliverer
	executable string
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithCrashOptions passes options through to the crash registry.
func WithCrashOptions(opts ...crash.Option) Option {
	return func(o *options) {
		o.crashOpts = append(o.crashOpts, opts...)
	}
}

// WithDeliverer replaces the configured deliverer.
func WithDeliverer(d crash.Deliverer) Option {
	return func(o *options) {
		o.deliverer = d
	}
}

// WithExecutable sets the binary started for process delivery.
func WithExecutable(path string) Option {
	return func(o *options) {
		o.executable = path
	}
}

// New validates cfg and assembles the crash pipeline.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	settings, err := Settings(cfg.Crash)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{Tag: cfg.Crash.Tag, Mode: cfg.Delivery.Mode}
	deliverer := o.deliverer
	if deliverer == nil {
		deliverer, err = p.deliverer(cfg, o)
		if err != nil {
			return nil, err
		}
	}

	crashOpts := append([]crash.Option{crash.WithLogger(o.logger)}, o.crashOpts...)
	registry, err := crash.NewRegistry(settings, LogWriterFactory(cfg.Crash, o.logger), deliverer, crashOpts...)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	p.Registry = registry
	return p, nil
}

func (p *Pipeline) deliverer(cfg *config.Config, o options) (crash.Deliverer, error) {
	switch cfg.Delivery.Mode {
	case ModeProcess:
		return &delivery.ProcessStarter{
			HandoffDir: cfg.Delivery.HandoffDir,
			Executable: o.executable,
			Logger:     o.logger,
		}, nil
	case ModeInline:
		d, err := OpenDelivery(cfg, o.logger)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, d)
		return &delivery.InlineStarter{
			Dispatcher: d.Dispatcher,
			HandoffDir: cfg.Delivery.HandoffDir,
			Logger:     o.logger,
		}, nil
	case ModeNone:
		return delivery.NopStarter{}, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown delivery mode %q", cfg.Delivery.Mode)
	}
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}
