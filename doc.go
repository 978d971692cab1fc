// Package sensewatch ingests Qlik Sense monitoring events sent over UDP and
// forwards them to metrics and archive sinks.
//
// # Streams
//
// Two independent UDP streams are received:
//   - log: tab-delimited records from the engine, proxy, repository and
//     scheduler services plus QIX performance records
//   - user: semicolon-delimited proxy connection and session activity
//
// Each stream has its own listener, bounded queue and worker pool. Nothing is
// shared between the two except the sinks and the counters.
//
// # Data Flow
//
//	UDP socket (input/udp)
//	    -> queue manager (ingest): size check, rate limit, bounded queue
//	    -> worker (pipeline)
//	        -> decoder (processor/decode): sanitize, split, typed event
//	        -> QIX perf filter (processor/qixperf), categorizer (processor/categorize)
//	        -> dispatcher (dispatch): fan out with a per-sink timeout
//	    -> sinks (output/*): prometheus, httppost, nats, file, s3archive
//
// A datagram never fails the process. Oversized, rate-limited and
// overflowing datagrams are counted and dropped at the queue; malformed ones
// are counted as failed by the worker; unknown sources are counted as
// unrecognized.
//
// # Packages
//
//	config               layered YAML configuration with SENSEWATCH_* overrides
//	event                stream, source and event types, the decode Outcome
//	ingest               per-stream queue manager and its counters
//	input/udp            UDP listener
//	processor/decode     log and user datagram decoders
//	processor/qixperf    QIX performance filter rules
//	processor/categorize log message categorization rules
//	processor/counter    accepted and rejected event counters
//	pipeline             per-stream decode, categorize, dispatch handler
//	dispatch             sink fan-out
//	output/...           sinks
//	metric, health       Prometheus registry, /metrics and /health
//	natsclient           NATS connection with a circuit breaker
//
// # Running
//
//	sensewatch --config configs/sensewatch.example.yaml
//	sensewatch -c base.yaml -c site.yaml --validate
package sensewatch
