package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// Transport sends one envelope somewhere.
type Transport interface {
	Name() string
	Send(ctx context.Context, env Envelope) error
}

// Ledger records delivery outcomes. The outbox store implements it.
type Ledger interface {
	Record(ctx context.Context, env Envelope, envelopePath string) error
	MarkDelivered(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, cause error) error
	MarkSkipped(ctx context.Context, id, reason string) error
}

// Reasons recorded for skipped envelopes.
const (
	ReasonNetworkDisabled = "send_with_net disabled"
	ReasonNoTransports    = "no transports enabled"
)

// Dispatcher sends envelopes through every transport concurrently.
type Dispatcher struct {
	transports  []Transport
	ledger      Ledger
	sendWithNet bool
	logger      *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTransports adds transports. Nil transports are ignored.
func WithTransports(ts ...Transport) DispatcherOption {
	return func(d *Dispatcher) {
		for _, t := range ts {
			if t != nil {
				d.transports = append(d.transports, t)
			}
		}
	}
}

// WithLedger sets where outcomes are recorded.
func WithLedger(l Ledger) DispatcherOption {
	return func(d *Dispatcher) {
		d.ledger = l
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher. With sendWithNet false nothing is sent.
func NewDispatcher(sendWithNet bool, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{sendWithNet: sendWithNet}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = discardLogger()
	}
	return d
}

// Transports returns the names of the configured transports.
func (d *Dispatcher) Transports() []string {
	names := make([]string, 0, len(d.transports))
	for _, t := range d.transports {
		names = append(names, t.Name())
	}
	return names
}

// Deliver records env and sends it through all transports. The returned
// error aggregates every transport failure.
func (d *Dispatcher) Deliver(ctx context.Context, env Envelope, envelopePath string) error {
	if err := env.Validate(); err != nil {
		return err
	}
	logger := d.logger.With("id", env.ID, "tag", env.Tag)

	if d.ledger != nil {
		if err := d.ledger.Record(ctx, env, envelopePath); err != nil {
			logger.Warn("recording envelope failed", "error", err)
		}
	}

	switch {
	case !d.sendWithNet:
		logger.Info("delivery skipped", "reason", ReasonNetworkDisabled)
		return d.skip(ctx, env.ID, ReasonNetworkDisabled)
	case len(d.transports) == 0:
		logger.Info("delivery skipped", "reason", ReasonNoTransports)
		return d.skip(ctx, env.ID, ReasonNoTransports)
	}

	var (
		mu     sync.Mutex
		result *multierror.Error
		g      errgroup.Group
	)
	for _, t := range d.transports {
		g.Go(func() error {
			if err := t.Send(ctx, env); err != nil {
				logger.Warn("transport failed", "transport", t.Name(), "error", err)
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("%s: %w", t.Name(), err))
				mu.Unlock()
				return nil
			}
			logger.Info("transport delivered", "transport", t.Name())
			return nil
		})
	}
	_ = g.Wait()

	err := result.ErrorOrNil()
	if d.ledger != nil {
		var markErr error
		if err != nil {
			markErr = d.ledger.MarkFailed(ctx, env.ID, err)
		} else {
			markErr = d.ledger.MarkDelivered(ctx, env.ID)
		}
		if markErr != nil {
			logger.Warn("recording delivery outcome failed", "error", markErr)
		}
	}
	return err
}

func (d *Dispatcher) skip(ctx context.Context, id, reason string) error {
	if d.ledger == nil {
		return nil
	}
	if err := d.ledger.MarkSkipped(ctx, id, reason); err != nil {
		return fmt.Errorf("recording skipped delivery: %w", err)
	}
	return nil
}
