package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/c360/sensewatch/appname"
	"github.com/c360/sensewatch/config"
	"github.com/c360/sensewatch/dispatch"
	"github.com/c360/sensewatch/event"
	"github.com/c360/sensewatch/health"
	"github.com/c360/sensewatch/ingest"
	"github.com/c360/sensewatch/input/udp"
	"github.com/c360/sensewatch/metric"
	"github.com/c360/sensewatch/output/promexport"
	"github.com/c360/sensewatch/pipeline"
	"github.com/c360/sensewatch/pkg/sanitize"
	"github.com/c360/sensewatch/processor/categorize"
	"github.com/c360/sensewatch/processor/counter"
	"github.com/c360/sensewatch/processor/decode"
)

// app owns every runtime component. It is assembled by newApp, started
// once and stopped once.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry

	accepted *counter.Accepted
	rejected *counter.Rejected
	sinks    *sinkSet

	managers  []*ingest.Manager
	listeners []*udp.Listener
	exporter  *promexport.StatsExporter
	server    *metric.Server
	monitor   *health.Monitor
}

// newApp wires the pipeline for both streams from cfg.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: metric.NewMetricsRegistry(),
		accepted: counter.NewAccepted(),
		rejected: counter.NewRejected(),
		monitor:  health.NewMonitor(),
	}
	core := a.registry.CoreMetrics()

	sinks, err := buildSinks(ctx, cfg.Sinks, a.registry, logger)
	if err != nil {
		return nil, err
	}
	a.sinks = sinks
	for name, checker := range sinks.checkers {
		a.monitor.Register(name, checker)
	}

	lengths := sanitize.DefaultLengths().WithOverrides(cfg.Sanitize.MaxLengths)
	decodeDeps := decode.Deps{
		AppNames: appname.NewTable(cfg.AppNames),
		Accepted: a.accepted,
		Rejected: a.rejected,
		Logger:   logger,
	}
	pipeDeps := pipeline.Deps{Accepted: a.accepted, Metrics: core, Logger: logger}
	dispatchDeps := dispatch.Deps{Metrics: core, Logger: logger}

	logDispatcher := dispatch.New(event.StreamLog, sinks.byStream[event.StreamLog], cfg.Dispatch.Timeout, dispatchDeps)
	logProcessor := pipeline.NewLogProcessor(
		decode.NewLogDecoder(decode.LogConfig{
			Sources:             cfg.Sources.Log(),
			QixPerf:             cfg.QixPerf.RuleSet,
			TrackRejectedEvents: cfg.QixPerf.TrackRejectedEvents,
			Lengths:             lengths,
		}, decodeDeps),
		categorize.New(cfg.Categorize, logger),
		logDispatcher,
		pipeDeps,
	)

	userDispatcher := dispatch.New(event.StreamUser, sinks.byStream[event.StreamUser], cfg.Dispatch.Timeout, dispatchDeps)
	userProcessor := pipeline.NewUserProcessor(
		decode.NewUserDecoder(decode.UserConfig{
			Sources: cfg.Sources.User(),
			Lengths: lengths,
		}, decodeDeps),
		userDispatcher,
		pipeDeps,
	)

	handlers := map[event.Stream]ingest.Handler{
		event.StreamLog:  logProcessor.Handle,
		event.StreamUser: userProcessor.Handle,
	}
	queues := make([]promexport.QueueSource, 0, len(handlers))
	for _, stream := range []event.Stream{event.StreamLog, event.StreamUser} {
		m, err := ingest.NewManager(stream, cfg.Queue.For(stream), handlers[stream],
			ingest.WithLogger(logger),
			ingest.WithMetricsRegistry(a.registry))
		if err != nil {
			a.closeSinks(ctx)
			return nil, fmt.Errorf("%s queue: %w", stream, err)
		}

		l, err := udp.NewListener(cfg.UDP.For(stream), udp.Deps{
			Stream:          stream,
			Queue:           m,
			MetricsRegistry: a.registry,
			Logger:          logger,
		})
		if err != nil {
			a.closeSinks(ctx)
			return nil, fmt.Errorf("%s listener: %w", stream, err)
		}

		a.managers = append(a.managers, m)
		a.listeners = append(a.listeners, l)
		queues = append(queues, m)
		a.monitor.Register("stream-"+string(stream), streamChecker(m, l))

		logger.Info("Stream configured",
			"stream", string(stream),
			"address", cfg.UDP.For(stream).Address(),
			"sinks", sinkNames(sinks.byStream[stream]))
	}

	if cfg.Metrics.Enable {
		a.exporter, err = promexport.NewStatsExporter(
			promexport.ExporterConfig{Interval: cfg.Metrics.ExportInterval},
			promexport.ExporterDeps{
				Registry: a.registry,
				Queues:   queues,
				Accepted: a.accepted,
				Rejected: a.rejected,
				Logger:   logger,
			})
		if err != nil {
			a.closeSinks(ctx)
			return nil, err
		}
		a.server = metric.NewServer(cfg.Metrics.Address, cfg.Metrics.Path, a.registry, a.health)
	}

	return a, nil
}

// start brings components up from the sinks outwards: queues first, then
// listeners, then the metrics endpoint.
func (a *app) start(ctx context.Context) error {
	for _, m := range a.managers {
		if err := m.Start(ctx); err != nil {
			return err
		}
	}
	for _, l := range a.listeners {
		if err := l.Start(ctx); err != nil {
			return err
		}
	}
	if a.exporter != nil {
		if err := a.exporter.Start(ctx); err != nil {
			return err
		}
	}
	if a.server != nil {
		if err := a.server.Start(); err != nil {
			return err
		}
		a.logger.Info("Metrics endpoint listening", "address", a.server.Address())
	}
	return nil
}

// stop stops listeners, lets queues drain for the configured grace, runs a
// final metrics export and closes the sinks. ctx bounds the sink close and
// the HTTP shutdown.
func (a *app) stop(ctx context.Context) error {
	var errs []error

	for _, l := range a.listeners {
		if err := l.Stop(time.Second); err != nil {
			errs = append(errs, err)
		}
	}

	grace := a.cfg.Shutdown.Grace
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < grace {
			grace = remaining
		}
	}
	for _, m := range a.managers {
		if err := m.Stop(grace); err != nil {
			errs = append(errs, err)
		}
	}

	if a.exporter != nil {
		a.exporter.Stop()
	}

	if err := a.closeSinks(ctx); err != nil {
		errs = append(errs, err)
	}

	if a.server != nil {
		if err := a.server.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func (a *app) closeSinks(ctx context.Context) error {
	if a.sinks == nil {
		return nil
	}
	return dispatch.CloseSinks(ctx, a.logger, a.sinks.all...)
}

func (a *app) health() health.Status {
	return a.monitor.Check(appName)
}

// streamChecker is unhealthy while the listener is unbound and degraded while
// the queue applies backpressure.
func streamChecker(m *ingest.Manager, l *udp.Listener) health.Checker {
	return func() health.Status {
		addr := l.Addr()
		if addr == nil {
			return health.NewUnhealthy("", "listener not running")
		}
		if qm := m.Metrics(); qm.BackpressureActive {
			return health.NewDegraded("", fmt.Sprintf("queue at %.0f%% capacity", qm.QueueUtilizationPct))
		}
		return health.NewHealthy("", "listening on "+addr.String())
	}
}

func sinkNames(sinks []dispatch.Sink) []string {
	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	return names
}

// listenerAddr returns the bound address for stream, or nil.
func (a *app) listenerAddr(stream event.Stream) net.Addr {
	for i, m := range a.managers {
		if m.Stream() == stream {
			return a.listeners[i].Addr()
		}
	}
	return nil
}
