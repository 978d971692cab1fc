// Package pipeline turns queued datagrams into dispatched events. One
// processor exists per stream; its Handle method is the queue's handler.
package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/c360/sensewatch/event"
	"github.com/c360/sensewatch/ingest"
	"github.com/c360/sensewatch/metric"
	"github.com/c360/sensewatch/processor/categorize"
	"github.com/c360/sensewatch/processor/counter"
)

// Decoder turns a payload into an Outcome.
type Decoder interface {
	Decode(payload []byte) (event.Outcome, error)
}

// LogDispatcher delivers log events.
type LogDispatcher interface {
	DispatchLog(ctx context.Context, ev event.LogEvent) error
}

// UserDispatcher delivers user events.
type UserDispatcher interface {
	DispatchUser(ctx context.Context, ev *event.UserEvent) error
}

// Deps holds runtime dependencies shared by both processors. Any may be nil.
type Deps struct {
	Accepted *counter.Accepted
	Metrics  *metric.Metrics
	Logger   *slog.Logger
}

func (d Deps) logger(stream event.Stream) *slog.Logger {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", "pipeline", "stream", string(stream))
}

// LogProcessor handles the log stream.
type LogProcessor struct {
	decoder     Decoder
	categorizer *categorize.Categorizer
	dispatcher  LogDispatcher
	accepted    *counter.Accepted
	metrics     *metric.Metrics
	logger      *slog.Logger

	ruleWarned atomic.Bool
}

// NewLogProcessor creates a LogProcessor. categorizer may be nil.
func NewLogProcessor(decoder Decoder, categorizer *categorize.Categorizer, dispatcher LogDispatcher, deps Deps) *LogProcessor {
	return &LogProcessor{
		decoder:     decoder,
		categorizer: categorizer,
		dispatcher:  dispatcher,
		accepted:    deps.Accepted,
		metrics:     deps.Metrics,
		logger:      deps.logger(event.StreamLog),
	}
}

// Handle decodes, counts, categorises and dispatches one datagram. Only a
// malformed datagram or a delivery failure on every sink is an error.
func (p *LogProcessor) Handle(ctx context.Context, entry ingest.Entry) error {
	out, err := p.decoder.Decode(entry.Payload)
	if err != nil {
		p.metrics.RecordDecodeError(string(event.StreamLog))
		p.logger.Warn("Malformed log datagram", "error", err, "remote", entry.Remote)
		return err
	}

	switch out.Kind {
	case event.KindDrop:
		p.metrics.RecordDropped(string(event.StreamLog), out.Reason)
		return nil
	case event.KindRejectForCount:
		p.metrics.RecordRejected(string(event.StreamLog))
		return nil
	}

	ev := out.Log
	if p.accepted != nil {
		p.accepted.AddLogEvent(ev)
	}

	fields := ev.Fields()
	if fields.Source != event.SourceQixPerf && p.categorizer != nil && p.categorizer.Enabled() {
		res, err := p.categorizer.Categorise(fields.Level, fields.Message)
		switch {
		case err != nil:
			if !p.ruleWarned.Swap(true) {
				p.logger.Warn("Categorization rules are malformed, forwarding events uncategorised", "error", err)
			}
		case res.Dropped():
			p.metrics.RecordDropped(string(event.StreamLog), event.ReasonCategorizerDrop)
			p.logger.Debug("Log event dropped by rule", "source", fields.Source, "host", fields.Host)
			return nil
		default:
			fields.Category = res.Category
		}
	}
	if fields.Category == nil {
		fields.Category = []event.Category{}
	}

	p.metrics.RecordDecoded(string(event.StreamLog), string(fields.Source))
	return p.dispatcher.DispatchLog(ctx, ev)
}

// UserProcessor handles the user stream.
type UserProcessor struct {
	decoder    Decoder
	dispatcher UserDispatcher
	accepted   *counter.Accepted
	metrics    *metric.Metrics
	logger     *slog.Logger
}

// NewUserProcessor creates a UserProcessor.
func NewUserProcessor(decoder Decoder, dispatcher UserDispatcher, deps Deps) *UserProcessor {
	return &UserProcessor{
		decoder:    decoder,
		dispatcher: dispatcher,
		accepted:   deps.Accepted,
		metrics:    deps.Metrics,
		logger:     deps.logger(event.StreamUser),
	}
}

// Handle decodes, counts and dispatches one datagram.
func (p *UserProcessor) Handle(ctx context.Context, entry ingest.Entry) error {
	out, err := p.decoder.Decode(entry.Payload)
	if err != nil {
		p.metrics.RecordDecodeError(string(event.StreamUser))
		p.logger.Warn("Malformed user datagram", "error", err, "remote", entry.Remote)
		return err
	}

	if out.Kind != event.KindForward {
		p.metrics.RecordDropped(string(event.StreamUser), out.Reason)
		return nil
	}

	if p.accepted != nil {
		p.accepted.AddUserEvent(out.User)
	}
	p.metrics.RecordDecoded(string(event.StreamUser), string(out.User.MessageType))
	return p.dispatcher.DispatchUser(ctx, out.User)
}
