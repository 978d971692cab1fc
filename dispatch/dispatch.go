// Package dispatch fans finished events out to every enabled sink.
package dispatch

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/sensewatch/errors"
	"github.com/c360/sensewatch/event"
	"github.com/c360/sensewatch/metric"
)

// DefaultTimeout bounds a single sink call.
const DefaultTimeout = 5 * time.Second

// Sink is an external event destination.
type Sink interface {
	Name() string
	SendLogEvent(ctx context.Context, ev event.LogEvent) error
	SendUserEvent(ctx context.Context, ev *event.UserEvent) error
	Close(ctx context.Context) error
}

// Deps holds runtime dependencies.
type Deps struct {
	Metrics *metric.Metrics
	Logger  *slog.Logger
}

// Dispatcher delivers events of one stream to its sinks in parallel. Sinks
// are independent: one failing, hanging or panicking never affects the
// others.
type Dispatcher struct {
	stream  event.Stream
	sinks   []Sink
	timeout time.Duration
	metrics *metric.Metrics
	logger  *slog.Logger
}

// New creates a Dispatcher. A non-positive timeout uses DefaultTimeout.
func New(stream event.Stream, sinks []Sink, timeout time.Duration, deps Deps) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		stream:  stream,
		sinks:   append([]Sink(nil), sinks...),
		timeout: timeout,
		metrics: deps.Metrics,
		logger:  logger.With("component", "dispatcher", "stream", string(stream)),
	}
}

// SinkNames lists the configured sinks in order.
func (d *Dispatcher) SinkNames() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return names
}

// DispatchLog sends ev to every sink.
func (d *Dispatcher) DispatchLog(ctx context.Context, ev event.LogEvent) error {
	return d.fanOut(ctx, "DispatchLog", func(ctx context.Context, s Sink) error {
		return s.SendLogEvent(ctx, ev)
	})
}

// DispatchUser sends ev to every sink.
func (d *Dispatcher) DispatchUser(ctx context.Context, ev *event.UserEvent) error {
	return d.fanOut(ctx, "DispatchUser", func(ctx context.Context, s Sink) error {
		return s.SendUserEvent(ctx, ev)
	})
}

// fanOut returns an error only when every sink failed.
func (d *Dispatcher) fanOut(ctx context.Context, method string, send func(context.Context, Sink) error) error {
	if len(d.sinks) == 0 {
		return nil
	}

	errs := make([]error, len(d.sinks))
	var g errgroup.Group
	for i, s := range d.sinks {
		i, s := i, s
		g.Go(func() error {
			start := time.Now()
			err := d.call(ctx, s, send)
			d.metrics.RecordDispatchDuration(s.Name(), time.Since(start))
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
				d.metrics.RecordSinkError(s.Name(), string(d.stream))
				d.logger.Warn("Sink delivery failed", "sink", s.Name(), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err == nil {
			return nil
		}
	}
	return errors.WrapTransient(stderrors.Join(errs...), "Dispatcher", method, "deliver to sinks")
}

// call runs send under the per-sink timeout. A sink that ignores its
// context is abandoned when the timeout fires; its goroutine finishes on
// its own.
func (d *Dispatcher) call(ctx context.Context, s Sink, send func(context.Context, Sink) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("sink panicked: %v", r)
			}
		}()
		done <- send(ctx, s)
	}()

	select {
	case err := <-done:
		if err != nil && stderrors.Is(err, context.DeadlineExceeded) {
			return errors.ErrSinkTimeout
		}
		return err
	case <-ctx.Done():
		if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.ErrSinkTimeout
		}
		return ctx.Err()
	}
}

// CloseSinks closes every sink and joins their errors.
func CloseSinks(ctx context.Context, logger *slog.Logger, sinks ...Sink) error {
	if logger == nil {
		logger = slog.Default()
	}
	var errs []error
	for _, s := range sinks {
		if err := s.Close(ctx); err != nil {
			logger.Warn("Failed to close sink", "sink", s.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return stderrors.Join(errs...)
}
