// Package promexport publishes sensewatch data as Prometheus metrics.
//
// Sink is a dispatch sink that counts forwarded events by source, level,
// host, command and category. StatsExporter runs on a timer: it drains the
// queue managers and the accepted and rejected event counters, adds the
// drained values to Prometheus counters and sets gauges from the queue
// state. Sources are reset by the drain, so every datagram is counted once.
// Stop runs a final export so nothing counted before shutdown is lost.
package promexport
