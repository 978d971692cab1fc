package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360/sensewatch/config"
	"github.com/c360/sensewatch/dispatch"
	"github.com/c360/sensewatch/event"
	"github.com/c360/sensewatch/health"
	"github.com/c360/sensewatch/metric"
	"github.com/c360/sensewatch/natsclient"
	"github.com/c360/sensewatch/output/file"
	"github.com/c360/sensewatch/output/httppost"
	"github.com/c360/sensewatch/output/natspub"
	"github.com/c360/sensewatch/output/promexport"
	"github.com/c360/sensewatch/output/s3archive"
)

// sinkSet is every enabled sink plus the routing of each stream.
type sinkSet struct {
	all      []dispatch.Sink
	byStream map[event.Stream][]dispatch.Sink
	checkers map[string]health.Checker
}

func (s *sinkSet) add(sink dispatch.Sink, routing config.SinkRouting) {
	s.all = append(s.all, sink)
	for _, stream := range []event.Stream{event.StreamLog, event.StreamUser} {
		if routing.Receives(stream) {
			s.byStream[stream] = append(s.byStream[stream], sink)
		}
	}
}

// buildSinks creates every enabled sink. On error the sinks built so far
// are closed.
func buildSinks(ctx context.Context, cfg config.SinksConfig, registry *metric.MetricsRegistry,
	logger *slog.Logger) (set *sinkSet, err error) {
	set = &sinkSet{
		byStream: make(map[event.Stream][]dispatch.Sink),
		checkers: make(map[string]health.Checker),
	}
	defer func() {
		if err != nil {
			_ = dispatch.CloseSinks(ctx, logger, set.all...)
			set = nil
		}
	}()

	if cfg.Prometheus.Enable {
		sink, err := promexport.NewSink(registry)
		if err != nil {
			return set, fmt.Errorf("prometheus sink: %w", err)
		}
		set.add(sink, cfg.Prometheus)
	}

	if cfg.HTTPPost.Enable {
		sink, err := httppost.NewOutput(cfg.HTTPPost.Config, logger)
		if err != nil {
			return set, fmt.Errorf("httpPost sink: %w", err)
		}
		set.add(sink, cfg.HTTPPost.SinkRouting)
	}

	if cfg.NATS.Enable {
		sink, client, err := buildNATSSink(ctx, cfg.NATS.Config, registry, logger)
		if err != nil {
			return set, fmt.Errorf("nats sink: %w", err)
		}
		set.add(sink, cfg.NATS.SinkRouting)
		set.checkers["sink-nats"] = natsChecker(client)
	}

	if cfg.File.Enable {
		sink, err := file.NewOutput(cfg.File.Config, logger)
		if err != nil {
			return set, fmt.Errorf("file sink: %w", err)
		}
		set.add(sink, cfg.File.SinkRouting)
	}

	if cfg.S3Archive.Enable {
		client, err := s3archive.NewClient(ctx, cfg.S3Archive.Config)
		if err != nil {
			return set, fmt.Errorf("s3Archive sink: %w", err)
		}
		sink, err := s3archive.NewOutput(cfg.S3Archive.Config, client, registry, s3archive.WithLogger(logger))
		if err != nil {
			return set, fmt.Errorf("s3Archive sink: %w", err)
		}
		set.add(sink, cfg.S3Archive.SinkRouting)
	}

	return set, nil
}

func buildNATSSink(ctx context.Context, cfg natspub.Config, registry *metric.MetricsRegistry,
	logger *slog.Logger) (*natspub.Output, *natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(logger),
		natsclient.WithName(cfg.ClientName),
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
		natsclient.WithMetrics(registry.CoreMetrics()),
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.ReconnectWait))
	}
	if cfg.CircuitBreakerThreshold > 0 {
		opts = append(opts, natsclient.WithCircuitBreakerThreshold(cfg.CircuitBreakerThreshold))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}
	if cfg.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}

	client, err := natsclient.NewClient(cfg.URL, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, nil, err
	}
	out, err := natspub.NewOutput(cfg.SubjectPrefix, client, logger)
	if err != nil {
		_ = client.Close(ctx)
		return nil, nil, err
	}
	return out, client, nil
}

// natsChecker reports a lost broker as degraded. Ingestion and the other sinks
// keep running while the client reconnects.
func natsChecker(client *natsclient.Client) health.Checker {
	return func() health.Status {
		if client.IsHealthy() {
			return health.NewHealthy("", "connected")
		}
		return health.NewDegraded("", "nats "+client.Status().String())
	}
}
