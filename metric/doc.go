// Package metric provides the Prometheus registry and scrape server.
//
// MetricsRegistry wraps a private prometheus.Registry. It pre-registers the
// core pipeline metrics (decoded, dropped and rejected events, sink errors,
// NATS connection state) plus Go runtime and process collectors, and lets
// components register their own collectors under a "service.metric" key so
// duplicates are caught early.
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(":9842", "/metrics", registry, nil)
//	if err := server.Start(); err != nil {
//	    return err
//	}
//	defer server.Stop(ctx)
package metric
