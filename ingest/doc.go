// Package ingest admits raw UDP datagrams into a bounded per-stream queue.
//
// A Manager applies, in order, a payload size check, an optional token-bucket
// rate limit and the queue capacity, and counts every refusal by reason.
// Admitted datagrams are handed to a worker pool that runs the stream's
// Handler. Backpressure is a hysteresis flag driven by queue utilization:
// it turns on at the high water mark and off below the low one.
//
// The rate limiter is a token bucket refilled at MaxMessagesPerMinute/60
// tokens per second with a default burst of one minute's allowance.
// RateLimitCurrent reports how many datagrams reached the limiter in the
// current one-minute window.
package ingest
